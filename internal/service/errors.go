package service

import "net/http"

// Stable, machine-readable error codes returned to clients. CodeUserNotFound
// is surfaced only by the identity check for a deleted account; the login
// path always collapses it into CodeInvalidCredentials so responses cannot
// be used to enumerate accounts.
const (
	CodeInvalidCredentials    = "InvalidCredentials"
	CodeUserNotFound          = "UserNotFound"
	CodeEmailAlreadyExists    = "EmailAlreadyExists"
	CodeUsernameAlreadyExists = "UsernameAlreadyExists"
	CodeInvalidToken          = "InvalidToken"
	CodeTokenExpired          = "TokenExpired"
	CodeSessionNotFound       = "SessionNotFound"
	CodeUserBanned            = "UserBanned"
	CodeUserInactive          = "UserInactive"
	CodeTooManyAttempts       = "TooManyAttempts"
	CodeValidationError       = "ValidationError"
	CodeInternalError         = "InternalError"
)

// FieldError pins a validation message to the offending input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AuthError is the client-facing failure shape: a stable code, an HTTP
// status, a human-readable message, and optional structured extras
// (validation details, ban metadata).
type AuthError struct {
	Code    string
	Message string
	Status  int
	Details []FieldError
	Meta    map[string]any
}

func (e *AuthError) Error() string {
	return e.Code + ": " + e.Message
}

func newAuthError(code, message string, status int) *AuthError {
	return &AuthError{Code: code, Message: message, Status: status}
}

func newValidationError(details ...FieldError) *AuthError {
	return &AuthError{
		Code:    CodeValidationError,
		Message: "Request validation failed.",
		Status:  http.StatusBadRequest,
		Details: details,
	}
}

func errInvalidCredentials() *AuthError {
	return newAuthError(CodeInvalidCredentials, "Wrong email or password.", http.StatusUnauthorized)
}

// ErrInvalidToken is the uniform rejection for any token the service
// cannot verify. Callers never learn which check failed.
func ErrInvalidToken() *AuthError {
	return newAuthError(CodeInvalidToken, "Invalid or expired token.", http.StatusUnauthorized)
}

func errSessionNotFound() *AuthError {
	return newAuthError(CodeSessionNotFound, "Session is no longer valid.", http.StatusUnauthorized)
}
