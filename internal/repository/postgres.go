package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexling/lexling-auth/internal/domain"
)

// Compile-time interface assertions.
var (
	_ UserRepository    = (*PostgresUserRepo)(nil)
	_ SessionRepository = (*PostgresSessionRepo)(nil)
	_ AttemptRepository = (*PostgresAttemptRepo)(nil)
	_ TxRunner          = (*PgxTxRunner)(nil)
)

// querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx,
// so the same repositories serve pooled and transactional calls.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, email, username, password_hash, display_name, is_active, is_banned, ban_reason, ban_expires_at, last_login_at, created_at, updated_at, deleted_at`

// PostgresUserRepo implements UserRepository over pgx.
type PostgresUserRepo struct {
	db querier
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 AND deleted_at IS NULL`, email)
	user, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by email: %w", translate(err))
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1 AND deleted_at IS NULL`, username)
	user, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by username: %w", translate(err))
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, id int64) (domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by id: %w", translate(err))
	}
	return user, nil
}

const insertUserSQL = `INSERT INTO users (id, email, username, password_hash, display_name, is_active, is_banned)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + userColumns

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	row := r.db.QueryRow(ctx, insertUserSQL,
		user.ID,
		user.Email,
		nullString(user.Username),
		nullString(user.PasswordHash),
		user.DisplayName,
		user.IsActive,
		user.IsBanned,
	)
	created, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (r *PostgresUserRepo) StampLastLogin(ctx context.Context, userID int64, at time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`, userID, at); err != nil {
		return fmt.Errorf("stamp last login: %w", err)
	}
	return nil
}

const sessionColumns = `id, user_id, refresh_token, expires_at, created_at, last_active_at, ip, user_agent, revoked_at, revoke_reason`

// PostgresSessionRepo implements SessionRepository over pgx.
type PostgresSessionRepo struct {
	db querier
}

func NewPostgresSessionRepo(pool *pgxpool.Pool) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: pool}
}

const insertSessionSQL = `INSERT INTO sessions (id, user_id, refresh_token, expires_at, ip, user_agent)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + sessionColumns

func (r *PostgresSessionRepo) Create(ctx context.Context, session domain.Session) (domain.Session, error) {
	row := r.db.QueryRow(ctx, insertSessionSQL,
		session.ID,
		session.UserID,
		session.RefreshToken,
		session.ExpiresAt,
		session.IP,
		session.UserAgent,
	)
	created, err := scanSession(row)
	if err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	return created, nil
}

func (r *PostgresSessionRepo) GetByRefreshToken(ctx context.Context, refreshToken string) (domain.Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE refresh_token = $1`, refreshToken)
	session, err := scanSession(row)
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session by refresh token: %w", translate(err))
	}
	return session, nil
}

func (r *PostgresSessionRepo) RevokeActiveForDevice(ctx context.Context, userID int64, userAgent, reason string, at time.Time) error {
	const query = `UPDATE sessions SET revoked_at = $4, revoke_reason = $3
WHERE user_id = $1 AND user_agent = $2 AND revoked_at IS NULL AND expires_at > $4`
	if _, err := r.db.Exec(ctx, query, userID, userAgent, reason, at); err != nil {
		return fmt.Errorf("revoke sessions for device: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepo) Revoke(ctx context.Context, sessionID int64, reason string, at time.Time) error {
	const query = `UPDATE sessions SET revoked_at = $3, revoke_reason = $2 WHERE id = $1 AND revoked_at IS NULL`
	if _, err := r.db.Exec(ctx, query, sessionID, reason, at); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Rotate is a compare-and-swap on the refresh token value: the row updates
// only while it still holds the presented token, so of two concurrent
// rotations exactly one reports true.
func (r *PostgresSessionRepo) Rotate(ctx context.Context, sessionID int64, current, next string, expiresAt, at time.Time) (bool, error) {
	const query = `UPDATE sessions SET refresh_token = $3, expires_at = $4, last_active_at = $5
WHERE id = $1 AND refresh_token = $2 AND revoked_at IS NULL`
	tag, err := r.db.Exec(ctx, query, sessionID, current, next, expiresAt, at)
	if err != nil {
		return false, fmt.Errorf("rotate refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PostgresAttemptRepo implements AttemptRepository over pgx.
type PostgresAttemptRepo struct {
	db querier
}

func NewPostgresAttemptRepo(pool *pgxpool.Pool) *PostgresAttemptRepo {
	return &PostgresAttemptRepo{db: pool}
}

const insertAttemptSQL = `INSERT INTO auth_attempts (id, email, user_id, success, failure_reason, ip, user_agent)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (r *PostgresAttemptRepo) Record(ctx context.Context, attempt domain.AuthAttempt) error {
	var userID sql.NullInt64
	if attempt.UserID != nil {
		userID = sql.NullInt64{Int64: *attempt.UserID, Valid: true}
	}
	if _, err := r.db.Exec(ctx, insertAttemptSQL,
		attempt.ID,
		attempt.Email,
		userID,
		attempt.Success,
		nullString(attempt.FailureReason),
		attempt.IP,
		attempt.UserAgent,
	); err != nil {
		return fmt.Errorf("record auth attempt: %w", err)
	}
	return nil
}

func (r *PostgresAttemptRepo) CountRecentFailures(ctx context.Context, email, ip string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM auth_attempts
WHERE success = FALSE AND created_at >= $3 AND (email = $1 OR ip = $2)`
	var count int
	if err := r.db.QueryRow(ctx, query, email, ip, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count recent failures: %w", err)
	}
	return count, nil
}

// PgxTxRunner runs closures inside a single pgx transaction, handing them
// repositories bound to that transaction.
type PgxTxRunner struct {
	pool *pgxpool.Pool
}

func NewPgxTxRunner(pool *pgxpool.Pool) *PgxTxRunner {
	return &PgxTxRunner{pool: pool}
}

func (r *PgxTxRunner) WithinTx(ctx context.Context, fn func(Stores) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stores := Stores{
		Users:    &PostgresUserRepo{db: tx},
		Sessions: &PostgresSessionRepo{db: tx},
		Attempts: &PostgresAttemptRepo{db: tx},
	}
	if err := fn(stores); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u            domain.User
		username     sql.NullString
		passwordHash sql.NullString
		banReason    sql.NullString
		banExpiresAt sql.NullTime
		lastLoginAt  sql.NullTime
		deletedAt    sql.NullTime
	)
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&username,
		&passwordHash,
		&u.DisplayName,
		&u.IsActive,
		&u.IsBanned,
		&banReason,
		&banExpiresAt,
		&lastLoginAt,
		&u.CreatedAt,
		&u.UpdatedAt,
		&deletedAt,
	); err != nil {
		return domain.User{}, err
	}
	u.Username = username.String
	u.PasswordHash = passwordHash.String
	u.BanReason = banReason.String
	u.BanExpiresAt = nullableTime(banExpiresAt)
	u.LastLoginAt = nullableTime(lastLoginAt)
	u.DeletedAt = nullableTime(deletedAt)
	return u, nil
}

func scanSession(row pgx.Row) (domain.Session, error) {
	var (
		s            domain.Session
		revokedAt    sql.NullTime
		revokeReason sql.NullString
	)
	if err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.RefreshToken,
		&s.ExpiresAt,
		&s.CreatedAt,
		&s.LastActiveAt,
		&s.IP,
		&s.UserAgent,
		&revokedAt,
		&revokeReason,
	); err != nil {
		return domain.Session{}, err
	}
	s.RevokedAt = nullableTime(revokedAt)
	s.RevokeReason = revokeReason.String
	return s, nil
}

func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullableTime(t sql.NullTime) *time.Time {
	if t.Valid {
		return &t.Time
	}
	return nil
}
