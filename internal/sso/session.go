// Package sso reads sessions established by the external OAuth sign-in
// front channel. This service never creates them; it only resolves the
// opaque session token from the SSO cookie into an identity.
package sso

import "time"

// Session is the externally-established session payload.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ActiveAt reports whether the session is still usable.
func (s Session) ActiveAt(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}
