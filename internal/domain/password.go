package domain

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

var weakPasswordFragments = []string{"password", "qwerty", "123456", "letmein"}

// ValidatePassword enforces the account password policy.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return FieldError("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordLength {
		return FieldError("password", fmt.Sprintf("must be at most %d characters", maxPasswordLength))
	}

	var (
		hasUpper bool
		hasLower bool
		hasDigit bool
		hasPunct bool
	)

	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasPunct = true
		}
	}

	if !hasUpper || !hasLower || !hasDigit || !hasPunct {
		return FieldError("password", "must include upper, lower, digit, and symbol")
	}

	lowered := strings.ToLower(password)
	for _, banned := range weakPasswordFragments {
		if strings.Contains(lowered, banned) {
			return FieldError("password", "contains a common weak pattern")
		}
	}

	return nil
}
