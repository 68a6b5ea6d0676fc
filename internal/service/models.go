package service

import (
	"time"

	"github.com/lexling/lexling-auth/internal/domain"
)

// Credentials is the login input.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the signup input.
type Registration struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Username        string `json:"username,omitempty"`
	DisplayName     string `json:"displayName,omitempty"`
}

// ClientInfo carries per-request client metadata stamped on sessions and
// attempt records.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// SanitizedUser is the user payload safe to leave the server. It never
// carries the password hash or the soft-delete marker.
type SanitizedUser struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username,omitempty"`
	DisplayName  string     `json:"displayName"`
	IsActive     bool       `json:"isActive"`
	IsBanned     bool       `json:"isBanned"`
	BanReason    string     `json:"banReason,omitempty"`
	BanExpiresAt *time.Time `json:"banExpiresAt,omitempty"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// TokenPair bundles the two issued tokens.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthResponse is the body of every successful auth operation.
type AuthResponse struct {
	User   SanitizedUser `json:"user"`
	Tokens TokenPair     `json:"tokens"`
}

func sanitizeUser(user domain.User) SanitizedUser {
	return SanitizedUser{
		ID:           user.ID,
		Email:        user.Email,
		Username:     user.Username,
		DisplayName:  user.DisplayName,
		IsActive:     user.IsActive,
		IsBanned:     user.IsBanned,
		BanReason:    user.BanReason,
		BanExpiresAt: user.BanExpiresAt,
		LastLoginAt:  user.LastLoginAt,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}
