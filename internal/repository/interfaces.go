package repository

import (
	"context"
	"errors"
	"time"

	"github.com/lexling/lexling-auth/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row. Implementations
// translate their driver's sentinel (pgx.ErrNoRows) into this one so
// callers stay storage-agnostic.
var ErrNotFound = errors.New("record not found")

// UserRepository exposes persistence for user accounts.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
	GetByID(ctx context.Context, id int64) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
	StampLastLogin(ctx context.Context, userID int64, at time.Time) error
}

// SessionRepository manages refresh-token lineages.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) (domain.Session, error)
	// GetByRefreshToken looks a session up by its exact current refresh
	// token value. A token that was rotated away no longer matches.
	GetByRefreshToken(ctx context.Context, refreshToken string) (domain.Session, error)
	// RevokeActiveForDevice revokes every active session for the
	// (user, user agent) pair, stamping the given reason.
	RevokeActiveForDevice(ctx context.Context, userID int64, userAgent, reason string, at time.Time) error
	Revoke(ctx context.Context, sessionID int64, reason string, at time.Time) error
	// Rotate swaps the refresh token value atomically: the update applies
	// only while the stored value still equals current. Returns false when
	// another rotation won the race.
	Rotate(ctx context.Context, sessionID int64, current, next string, expiresAt, at time.Time) (bool, error)
}

// AttemptRepository appends and counts auth attempt audit rows.
type AttemptRepository interface {
	Record(ctx context.Context, attempt domain.AuthAttempt) error
	// CountRecentFailures counts failed attempts since the cutoff matching
	// either the email or the IP.
	CountRecentFailures(ctx context.Context, email, ip string, since time.Time) (int, error)
}

// Stores bundles the repositories bound to one transaction.
type Stores struct {
	Users    UserRepository
	Sessions SessionRepository
	Attempts AttemptRepository
}

// TxRunner executes fn inside a single storage transaction. The Stores
// passed to fn share that transaction; fn returning an error rolls back.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(Stores) error) error
}
