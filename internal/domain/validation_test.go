package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	got, err := NormalizeEmail("  Jane.Doe@Example.COM ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "jane.doe@example.com" {
		t.Fatalf("unexpected normalized email %q", got)
	}

	for _, bad := range []string{"", "not-an-email", "Jane <jane@example.com>"} {
		if _, err := NormalizeEmail(bad); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected invalid input for %q, got %v", bad, err)
		}
	}
}

func TestValidateFullNameAndPhone(t *testing.T) {
	t.Parallel()

	if err := ValidateFullName("Ana-María O'Neil"); err != nil {
		t.Fatalf("expected valid name, got %v", err)
	}
	if err := ValidateFullName("x"); err == nil {
		t.Fatalf("expected short name to fail")
	}
	if err := ValidateFullName("Robert'); DROP"); err == nil {
		t.Fatalf("expected punctuation to fail")
	}
	if err := ValidatePhone(""); err != nil {
		t.Fatalf("empty phone is optional, got %v", err)
	}
	if err := ValidatePhone("+1 (555) 010-9999"); err != nil {
		t.Fatalf("expected valid phone, got %v", err)
	}
	if err := ValidatePhone("12ab"); err == nil {
		t.Fatalf("expected invalid phone to fail")
	}
}

func TestValidationErrorAggregatesFields(t *testing.T) {
	t.Parallel()

	verr := &ValidationError{}
	if verr.OrNil() != nil {
		t.Fatalf("empty validation error must collapse to nil")
	}
	verr.Add("email", "is required")
	verr.Add("email", "ignored second message")
	verr.Add("password", "too short")
	if verr.Fields["email"] != "is required" {
		t.Fatalf("first message should win, got %q", verr.Fields["email"])
	}
	if verr.Error() != "invalid input: email: is required; password: too short" {
		t.Fatalf("unexpected message %q", verr.Error())
	}
}

func TestAccountLockPredicates(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	if (Account{}).IsLocked(now) {
		t.Fatalf("account without lock must not be locked")
	}
	if !(Account{LockedUntil: &future}).IsLocked(now) {
		t.Fatalf("future lock must be active")
	}
	locked := Account{LockedUntil: &past}
	if locked.IsLocked(now) || !locked.LockExpired(now) {
		t.Fatalf("past lock must be reported as expired")
	}

	var lockErr error = &LockedError{Until: future}
	if !errors.Is(lockErr, ErrAccountLocked) {
		t.Fatalf("LockedError must unwrap to ErrAccountLocked")
	}
}
