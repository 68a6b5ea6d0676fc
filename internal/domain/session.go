package domain

import "time"

// Revocation reasons stamped on a session when it stops being usable.
const (
	RevokeReasonNewLogin = "NEW_LOGIN"
	RevokeReasonLogout   = "LOGOUT"
)

// Session anchors one refresh-token lineage to a user and the device that
// opened it. RefreshToken holds the current token value and is replaced on
// every successful rotation; the stored value is the authority for whether
// a presented refresh token is still the live one.
type Session struct {
	ID           int64
	UserID       int64
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	LastActiveAt time.Time
	IP           string
	UserAgent    string
	RevokedAt    *time.Time
	RevokeReason string
}

// ActiveAt reports whether the session is usable at the given instant.
func (s Session) ActiveAt(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
