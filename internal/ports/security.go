package ports

import (
	"time"

	"github.com/google/uuid"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// AccessClaims are the self-describing contents of an access token.
type AccessClaims struct {
	AccountID uuid.UUID `json:"account_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	TokenID   string    `json:"jti"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type TokenSigner interface {
	Sign(claims AccessClaims) (string, error)
	ParseAndValidate(token string) (AccessClaims, error)
}

// TokenDigester derives the at-rest lookup key of an opaque token.
type TokenDigester interface {
	Digest(token string) string
}
