package domain

import "time"

// User represents an account that can authenticate against the service.
// PasswordHash is empty for accounts created through an external identity
// provider; such accounts must never pass the password login path.
type User struct {
	ID           int64
	Email        string
	Username     string
	PasswordHash string
	DisplayName  string
	IsActive     bool
	IsBanned     bool
	BanReason    string
	BanExpiresAt *time.Time
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// HasPassword reports whether the account can use the password login path.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

// BannedAt reports whether a ban is in effect at the given instant.
// A ban whose expiry has passed no longer blocks the user.
func (u User) BannedAt(now time.Time) bool {
	if !u.IsBanned {
		return false
	}
	if u.BanExpiresAt != nil && now.After(*u.BanExpiresAt) {
		return false
	}
	return true
}

// Usable reports whether the account may authenticate at all: active and
// not soft-deleted.
func (u User) Usable() bool {
	return u.IsActive && u.DeletedAt == nil
}
