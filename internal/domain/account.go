package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account is the aggregate root for authentication state.
// Token and audit records reference it by id only.
type Account struct {
	AccountID        uuid.UUID
	FullName         string
	Email            string
	Phone            string
	PasswordHash     string
	Role             string
	IsActive         bool
	EmailVerified    bool
	FailedLoginCount int
	LockedUntil      *time.Time
	LastLoginAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsLocked reports whether the lockout window is still open at now.
func (a Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// LockExpired reports a lock that has elapsed but has not been reset yet.
func (a Account) LockExpired(now time.Time) bool {
	return a.LockedUntil != nil && !a.LockedUntil.After(now)
}

// RefreshToken is the persisted half of a session. Only the digest is stored.
type RefreshToken struct {
	TokenHash  string
	AccountID  uuid.UUID
	RememberMe bool
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

func (t RefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// EphemeralToken is a single-use email verification or password reset token.
type EphemeralToken struct {
	TokenHash string
	AccountID uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
}
