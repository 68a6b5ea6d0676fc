package password

import "unicode"

const minLength = 8

// Strength is the outcome of a strength check. Errors lists every violated
// rule, not just the first, so clients can render the full checklist.
type Strength struct {
	IsValid bool
	Errors  []string
}

// ValidateStrength enforces the registration password policy: minimum
// length plus at least one uppercase letter, one lowercase letter, and one
// digit.
func ValidateStrength(password string) Strength {
	var violations []string

	if len(password) < minLength {
		violations = append(violations, "password must be at least 8 characters long")
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper {
		violations = append(violations, "password must contain an uppercase letter")
	}
	if !hasLower {
		violations = append(violations, "password must contain a lowercase letter")
	}
	if !hasDigit {
		violations = append(violations, "password must contain a digit")
	}

	return Strength{IsValid: len(violations) == 0, Errors: violations}
}
