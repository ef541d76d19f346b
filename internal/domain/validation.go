package domain

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minFullNameLength = 2
	maxFullNameLength = 100
	minPhoneDigits    = 7
	maxPhoneLength    = 20
	maxEmailLength    = 254
)

// NormalizeEmail trims and lower-cases an address and checks its syntax.
func NormalizeEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return "", FieldError("email", "is required")
	}
	if len(trimmed) > maxEmailLength {
		return "", FieldError("email", "is too long")
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", FieldError("email", "must be a valid email address")
	}
	return trimmed, nil
}

// ValidateFullName accepts letters, spaces, apostrophes, dots and hyphens.
func ValidateFullName(name string) error {
	trimmed := strings.TrimSpace(name)
	n := utf8.RuneCountInString(trimmed)
	if n < minFullNameLength || n > maxFullNameLength {
		return FieldError("fullName", "must be between 2 and 100 characters")
	}
	for _, r := range trimmed {
		if r == ' ' || r == '\'' || r == '-' || r == '.' {
			continue
		}
		if !unicode.IsLetter(r) {
			return FieldError("fullName", "contains invalid characters")
		}
	}
	return nil
}

// ValidatePhone accepts an empty value or a loosely formatted phone number.
func ValidatePhone(phone string) error {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return nil
	}
	if len(trimmed) > maxPhoneLength {
		return FieldError("phone", "is too long")
	}
	digits := 0
	for _, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == '-' || r == ' ' || r == '(' || r == ')':
		default:
			return FieldError("phone", "contains invalid characters")
		}
	}
	if digits < minPhoneDigits {
		return FieldError("phone", "must contain at least 7 digits")
	}
	return nil
}
