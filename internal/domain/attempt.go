package domain

import "time"

// Failure reasons recorded on auth attempts. AttemptUserNotFound is stored
// for auditing only; it is never surfaced to clients as distinct from
// invalid credentials.
const (
	AttemptInvalidCredentials = "INVALID_CREDENTIALS"
	AttemptUserNotFound       = "USER_NOT_FOUND"
	AttemptTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	AttemptUserBanned         = "USER_BANNED"
	AttemptUserInactive       = "USER_INACTIVE"
)

// AuthAttempt is one append-only audit record per checked login attempt,
// successful or not. Rows are never mutated; the throttle only counts them.
type AuthAttempt struct {
	ID            int64
	Email         string
	UserID        *int64
	Success       bool
	FailureReason string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}
