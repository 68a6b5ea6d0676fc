// Package token issues and verifies the service's self-signed access and
// refresh tokens. Access and refresh tokens are signed with separate
// secrets so a leaked secret compromises only one token class.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// ErrInvalid is returned for every verification failure. Expiry, bad
// signature, and malformed input are deliberately indistinguishable to the
// caller.
var ErrInvalid = errors.New("invalid token")

// AccessClaims is the identity carried by a short-lived access token.
type AccessClaims struct {
	UserID int64
	Email  string
}

// RefreshClaims additionally binds the token to its backing session row.
// SessionID is the only link from a presented refresh token back to the
// stored session.
type RefreshClaims struct {
	UserID    int64
	Email     string
	SessionID int64
}

type customClaims struct {
	Email     string `json:"email"`
	SessionID string `json:"sid,omitempty"`
}

// Issuer signs and verifies both token classes.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewIssuer constructs an Issuer over the two signing secrets.
func NewIssuer(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// IssueAccess signs a short-lived access token for the user.
func (i *Issuer) IssueAccess(claims AccessClaims) (string, error) {
	return sign(i.accessSecret, claims.UserID, claims.Email, 0, i.accessTTL)
}

// IssueRefresh signs a long-lived refresh token embedding the session id.
func (i *Issuer) IssueRefresh(claims RefreshClaims) (string, error) {
	return sign(i.refreshSecret, claims.UserID, claims.Email, claims.SessionID, i.refreshTTL)
}

// VerifyAccess checks signature and expiry under the access secret.
func (i *Issuer) VerifyAccess(token string) (AccessClaims, error) {
	userID, email, _, err := verify(i.accessSecret, token)
	if err != nil {
		return AccessClaims{}, err
	}
	return AccessClaims{UserID: userID, Email: email}, nil
}

// VerifyRefresh checks signature and expiry under the refresh secret and
// requires a session id claim.
func (i *Issuer) VerifyRefresh(token string) (RefreshClaims, error) {
	userID, email, sessionID, err := verify(i.refreshSecret, token)
	if err != nil {
		return RefreshClaims{}, err
	}
	if sessionID == 0 {
		return RefreshClaims{}, ErrInvalid
	}
	return RefreshClaims{UserID: userID, Email: email, SessionID: sessionID}, nil
}

// AccessTTL exposes the configured access token lifetime, used for cookie
// ages and the client's silent-refresh schedule.
func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// RefreshTTL exposes the configured refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// RefreshExpiry computes the absolute expiry stamped on session rows. It
// uses the same lifetime encoded into issued refresh tokens so the row and
// the token agree.
func (i *Issuer) RefreshExpiry(now time.Time) time.Time {
	return now.Add(i.refreshTTL)
}

func sign(secret []byte, userID int64, email string, sessionID int64, ttl time.Duration) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: secret},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	// The jti keeps consecutive issuances for the same session distinct.
	// Session rotation compares the stored refresh token against the
	// presented one, so two identical tokens would make rotation a no-op.
	now := time.Now().UTC()
	std := gojwt.Claims{
		ID:        uuid.NewString(),
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  gojwt.NewNumericDate(now),
		NotBefore: gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(ttl)),
	}
	custom := customClaims{Email: email}
	if sessionID != 0 {
		custom.SessionID = strconv.FormatInt(sessionID, 10)
	}

	serialized, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}
	return serialized, nil
}

func verify(secret []byte, token string) (int64, string, int64, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return 0, "", 0, ErrInvalid
	}

	var std gojwt.Claims
	var custom customClaims
	if err := parsed.Claims(secret, &std, &custom); err != nil {
		return 0, "", 0, ErrInvalid
	}
	if err := std.Validate(gojwt.Expected{Time: time.Now().UTC()}); err != nil {
		return 0, "", 0, ErrInvalid
	}

	userID, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil || userID == 0 {
		return 0, "", 0, ErrInvalid
	}

	var sessionID int64
	if custom.SessionID != "" {
		sessionID, err = strconv.ParseInt(custom.SessionID, 10, 64)
		if err != nil {
			return 0, "", 0, ErrInvalid
		}
	}
	return userID, custom.Email, sessionID, nil
}
