package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lexling/lexling-auth/internal/config"
	"github.com/lexling/lexling-auth/internal/domain"
	pw "github.com/lexling/lexling-auth/internal/password"
	"github.com/lexling/lexling-auth/internal/repository"
	"github.com/lexling/lexling-auth/internal/throttle"
	"github.com/lexling/lexling-auth/internal/token"
)

// errRotationLost marks the loser of a concurrent refresh race inside the
// rotation transaction; it surfaces as SessionNotFound.
var errRotationLost = errors.New("refresh token rotation lost")

// AuthService encapsulates the login, registration, refresh, logout, and
// identity-check flows.
type AuthService struct {
	users     repository.UserRepository
	sessions  repository.SessionRepository
	attempts  repository.AttemptRepository
	tx        repository.TxRunner
	tokens    *token.Issuer
	throttle  *throttle.Throttle
	snowflake *snowflake.Node
	cfg       config.Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewAuthService wires dependencies.
func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	attempts repository.AttemptRepository,
	tx repository.TxRunner,
	tokens *token.Issuer,
	admission *throttle.Throttle,
	node *snowflake.Node,
	cfg config.Config,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		sessions:  sessions,
		attempts:  attempts,
		tx:        tx,
		tokens:    tokens,
		throttle:  admission,
		snowflake: node,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("github.com/lexling/lexling-auth/internal/service"),
	}
}

// Login authenticates with email and password, supersedes any prior
// session for the same device, and returns the user with a fresh token
// pair.
func (s *AuthService) Login(ctx context.Context, creds Credentials, client ClientInfo) (AuthResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	email := normalizeEmail(creds.Email)
	if details := validateCredentials(email, creds.Password); len(details) > 0 {
		return AuthResponse{}, newValidationError(details...)
	}

	if !s.throttle.Admit(ctx, email, client.IP) {
		s.recordFailure(ctx, email, nil, domain.AttemptTooManyAttempts, client)
		return AuthResponse{}, newAuthError(CodeTooManyAttempts, "Too many failed attempts. Try again later.", http.StatusTooManyRequests)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Recorded as UserNotFound internally; the response never
			// distinguishes an unknown email from a wrong password.
			s.recordFailure(ctx, email, nil, domain.AttemptUserNotFound, client)
			return AuthResponse{}, errInvalidCredentials()
		}
		span.RecordError(err)
		return AuthResponse{}, fmt.Errorf("lookup user: %w", err)
	}

	if !user.HasPassword() {
		s.recordFailure(ctx, email, &user.ID, domain.AttemptInvalidCredentials, client)
		return AuthResponse{}, errInvalidCredentials()
	}

	valid, err := pw.Verify(creds.Password, user.PasswordHash)
	if err != nil || !valid {
		s.recordFailure(ctx, email, &user.ID, domain.AttemptInvalidCredentials, client)
		return AuthResponse{}, errInvalidCredentials()
	}

	now := time.Now().UTC()
	if authErr := s.checkAccountState(user, now); authErr != nil {
		reason := domain.AttemptUserInactive
		if authErr.Code == CodeUserBanned {
			reason = domain.AttemptUserBanned
		}
		s.recordFailure(ctx, email, &user.ID, reason, client)
		return AuthResponse{}, authErr
	}

	resp, err := s.openSession(ctx, user, client, now)
	if err != nil {
		span.RecordError(err)
		return AuthResponse{}, err
	}

	s.audit("login.success", "user_id", user.ID, "ip", client.IP)
	return resp, nil
}

// Register creates an account, opens its first session, and returns the
// user with a token pair.
func (s *AuthService) Register(ctx context.Context, reg Registration, client ClientInfo) (AuthResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Register")
	defer span.End()

	email := normalizeEmail(reg.Email)
	if details := validateRegistration(email, reg); len(details) > 0 {
		return AuthResponse{}, newValidationError(details...)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return AuthResponse{}, newAuthError(CodeEmailAlreadyExists, "Email is already registered.", http.StatusConflict)
	} else if !errors.Is(err, repository.ErrNotFound) {
		span.RecordError(err)
		return AuthResponse{}, fmt.Errorf("check existing email: %w", err)
	}

	username := strings.TrimSpace(reg.Username)
	if username != "" {
		if _, err := s.users.GetByUsername(ctx, username); err == nil {
			return AuthResponse{}, newAuthError(CodeUsernameAlreadyExists, "Username is already taken.", http.StatusConflict)
		} else if !errors.Is(err, repository.ErrNotFound) {
			span.RecordError(err)
			return AuthResponse{}, fmt.Errorf("check existing username: %w", err)
		}
	}

	hashed, err := pw.Hash(reg.Password)
	if err != nil {
		span.RecordError(err)
		return AuthResponse{}, fmt.Errorf("hash password: %w", err)
	}

	displayName := strings.TrimSpace(reg.DisplayName)
	if displayName == "" {
		displayName = email[:strings.Index(email, "@")]
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           s.snowflake.Generate().Int64(),
		Email:        email,
		Username:     username,
		PasswordHash: hashed,
		DisplayName:  displayName,
		IsActive:     true,
	}

	sessionID := s.snowflake.Generate().Int64()
	pair, err := s.issuePair(user, sessionID)
	if err != nil {
		span.RecordError(err)
		return AuthResponse{}, err
	}

	var created domain.User
	err = s.tx.WithinTx(ctx, func(st repository.Stores) error {
		var txErr error
		created, txErr = st.Users.Create(ctx, user)
		if txErr != nil {
			return txErr
		}
		if _, txErr = st.Sessions.Create(ctx, domain.Session{
			ID:           sessionID,
			UserID:       created.ID,
			RefreshToken: pair.RefreshToken,
			ExpiresAt:    s.tokens.RefreshExpiry(now),
			IP:           client.IP,
			UserAgent:    client.UserAgent,
		}); txErr != nil {
			return txErr
		}
		return st.Attempts.Record(ctx, domain.AuthAttempt{
			ID:        s.snowflake.Generate().Int64(),
			Email:     email,
			UserID:    &created.ID,
			Success:   true,
			IP:        client.IP,
			UserAgent: client.UserAgent,
		})
	})
	if err != nil {
		span.RecordError(err)
		return AuthResponse{}, fmt.Errorf("register transaction: %w", err)
	}

	s.audit("register.success", "user_id", created.ID, "ip", client.IP)
	return AuthResponse{User: sanitizeUser(created), Tokens: pair}, nil
}

// Refresh redeems a refresh token for a new pair, rotating the stored
// value. Of two concurrent calls with the same token exactly one wins; the
// loser gets SessionNotFound.
func (s *AuthService) Refresh(ctx context.Context, presented string, client ClientInfo) (AuthResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Refresh")
	defer span.End()

	if strings.TrimSpace(presented) == "" {
		return AuthResponse{}, ErrInvalidToken()
	}

	claims, err := s.tokens.VerifyRefresh(presented)
	if err != nil {
		return AuthResponse{}, ErrInvalidToken()
	}

	session, err := s.sessions.GetByRefreshToken(ctx, presented)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return AuthResponse{}, errSessionNotFound()
		}
		span.RecordError(err)
		return AuthResponse{}, fmt.Errorf("lookup session: %w", err)
	}

	now := time.Now().UTC()
	if session.ID != claims.SessionID || session.UserID != claims.UserID || !session.ActiveAt(now) {
		return AuthResponse{}, errSessionNotFound()
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return AuthResponse{}, errSessionNotFound()
		}
		span.RecordError(err)
		return AuthResponse{}, fmt.Errorf("load user: %w", err)
	}
	if authErr := s.checkAccountState(user, now); authErr != nil {
		return AuthResponse{}, authErr
	}

	pair, err := s.issuePair(user, session.ID)
	if err != nil {
		span.RecordError(err)
		return AuthResponse{}, err
	}

	err = s.tx.WithinTx(ctx, func(st repository.Stores) error {
		rotated, txErr := st.Sessions.Rotate(ctx, session.ID, presented, pair.RefreshToken, s.tokens.RefreshExpiry(now), now)
		if txErr != nil {
			return txErr
		}
		if !rotated {
			return errRotationLost
		}
		return st.Users.StampLastLogin(ctx, user.ID, now)
	})
	if err != nil {
		if errors.Is(err, errRotationLost) {
			return AuthResponse{}, errSessionNotFound()
		}
		span.RecordError(err)
		return AuthResponse{}, fmt.Errorf("refresh transaction: %w", err)
	}

	s.audit("refresh.success", "user_id", user.ID, "session_id", session.ID)
	last := now
	user.LastLoginAt = &last
	return AuthResponse{User: sanitizeUser(user), Tokens: pair}, nil
}

// Logout revokes the session behind the presented refresh token. Every
// failure is swallowed: an already-invalid token means there is nothing to
// revoke, and the caller always ends up logged out.
func (s *AuthService) Logout(ctx context.Context, presented string) {
	ctx, span := s.startSpan(ctx, "AuthService.Logout")
	defer span.End()

	if strings.TrimSpace(presented) == "" {
		return
	}

	claims, err := s.tokens.VerifyRefresh(presented)
	if err != nil {
		return
	}

	session, err := s.sessions.GetByRefreshToken(ctx, presented)
	if err != nil || session.ID != claims.SessionID {
		return
	}

	now := time.Now().UTC()
	if err := s.sessions.Revoke(ctx, session.ID, domain.RevokeReasonLogout, now); err != nil {
		s.log().Warn("logout revoke failed", zap.Int64("session_id", session.ID), zap.Error(err))
		return
	}
	s.audit("logout.success", "user_id", session.UserID, "session_id", session.ID)
}

// Me resolves the caller's identity from an access token. It is stateless
// and does not consult session rows, so revocation is only observed on the
// next refresh.
func (s *AuthService) Me(ctx context.Context, accessToken string) (SanitizedUser, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Me")
	defer span.End()

	if strings.TrimSpace(accessToken) == "" {
		return SanitizedUser{}, ErrInvalidToken()
	}
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return SanitizedUser{}, ErrInvalidToken()
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return SanitizedUser{}, newAuthError(CodeUserNotFound, "User no longer exists.", http.StatusNotFound)
		}
		span.RecordError(err)
		return SanitizedUser{}, fmt.Errorf("load user: %w", err)
	}
	if authErr := s.checkAccountState(user, time.Now().UTC()); authErr != nil {
		return SanitizedUser{}, authErr
	}

	return sanitizeUser(user), nil
}

// AccessTTL exposes the access token lifetime for cookie ages.
func (s *AuthService) AccessTTL() time.Duration {
	return s.tokens.AccessTTL()
}

// RefreshTTL exposes the refresh token lifetime for cookie ages.
func (s *AuthService) RefreshTTL() time.Duration {
	return s.tokens.RefreshTTL()
}

// openSession revokes the device's prior session, creates the new one, and
// stamps last login plus the success attempt row, all in one transaction.
func (s *AuthService) openSession(ctx context.Context, user domain.User, client ClientInfo, now time.Time) (AuthResponse, error) {
	sessionID := s.snowflake.Generate().Int64()
	pair, err := s.issuePair(user, sessionID)
	if err != nil {
		return AuthResponse{}, err
	}

	err = s.tx.WithinTx(ctx, func(st repository.Stores) error {
		if txErr := st.Sessions.RevokeActiveForDevice(ctx, user.ID, client.UserAgent, domain.RevokeReasonNewLogin, now); txErr != nil {
			return txErr
		}
		if _, txErr := st.Sessions.Create(ctx, domain.Session{
			ID:           sessionID,
			UserID:       user.ID,
			RefreshToken: pair.RefreshToken,
			ExpiresAt:    s.tokens.RefreshExpiry(now),
			IP:           client.IP,
			UserAgent:    client.UserAgent,
		}); txErr != nil {
			return txErr
		}
		if txErr := st.Users.StampLastLogin(ctx, user.ID, now); txErr != nil {
			return txErr
		}
		return st.Attempts.Record(ctx, domain.AuthAttempt{
			ID:        s.snowflake.Generate().Int64(),
			Email:     user.Email,
			UserID:    &user.ID,
			Success:   true,
			IP:        client.IP,
			UserAgent: client.UserAgent,
		})
	})
	if err != nil {
		return AuthResponse{}, fmt.Errorf("login transaction: %w", err)
	}

	last := now
	user.LastLoginAt = &last
	return AuthResponse{User: sanitizeUser(user), Tokens: pair}, nil
}

func (s *AuthService) issuePair(user domain.User, sessionID int64) (TokenPair, error) {
	access, err := s.tokens.IssueAccess(token.AccessClaims{UserID: user.ID, Email: user.Email})
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefresh(token.RefreshClaims{UserID: user.ID, Email: user.Email, SessionID: sessionID})
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) checkAccountState(user domain.User, now time.Time) *AuthError {
	if user.BannedAt(now) {
		authErr := newAuthError(CodeUserBanned, "Account is banned.", http.StatusForbidden)
		authErr.Meta = map[string]any{}
		if user.BanReason != "" {
			authErr.Meta["banReason"] = user.BanReason
		}
		if user.BanExpiresAt != nil {
			authErr.Meta["banExpiresAt"] = user.BanExpiresAt
		}
		return authErr
	}
	if !user.Usable() {
		return newAuthError(CodeUserInactive, "Account is inactive.", http.StatusForbidden)
	}
	return nil
}

// recordFailure appends a failed attempt row. Audit writes are best effort
// and never block the auth decision.
func (s *AuthService) recordFailure(ctx context.Context, email string, userID *int64, reason string, client ClientInfo) {
	err := s.attempts.Record(ctx, domain.AuthAttempt{
		ID:            s.snowflake.Generate().Int64(),
		Email:         email,
		UserID:        userID,
		Success:       false,
		FailureReason: reason,
		IP:            client.IP,
		UserAgent:     client.UserAgent,
	})
	if err != nil {
		s.log().Warn("record auth attempt failed",
			zap.String("email", email),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}

func validateCredentials(email, password string) []FieldError {
	var details []FieldError
	if !validEmail(email) {
		details = append(details, FieldError{Field: "email", Message: "A valid email is required."})
	}
	if password == "" {
		details = append(details, FieldError{Field: "password", Message: "Password is required."})
	}
	return details
}

func validateRegistration(email string, reg Registration) []FieldError {
	var details []FieldError
	if !validEmail(email) {
		details = append(details, FieldError{Field: "email", Message: "A valid email is required."})
	}
	if reg.Password == "" {
		details = append(details, FieldError{Field: "password", Message: "Password is required."})
	} else {
		strength := pw.ValidateStrength(reg.Password)
		for _, violation := range strength.Errors {
			details = append(details, FieldError{Field: "password", Message: violation})
		}
	}
	if reg.Password != reg.ConfirmPassword {
		details = append(details, FieldError{Field: "confirmPassword", Message: "Passwords do not match."})
	}
	return details
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) audit(event string, attrs ...any) {
	logger := s.log()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
