package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/calchub/auth-service/internal/domain"
	"github.com/calchub/auth-service/internal/ports"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	accessTokenIssuer   = "calchub-auth"
	accessTokenAudience = "calchub"
	minSecretLength     = 32
)

// JWTSigner implements HS256 access-token signing and verification.
type JWTSigner struct {
	secret []byte
	leeway time.Duration
}

// NewJWTSigner builds a signer from the configured shared secret.
func NewJWTSigner(secret string) (*JWTSigner, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("jwt access secret must be at least %d bytes", minSecretLength)
	}
	return &JWTSigner{secret: []byte(secret), leeway: 5 * time.Second}, nil
}

type accessJWTClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func (s *JWTSigner) Sign(claims ports.AccessClaims) (string, error) {
	tokenID := claims.TokenID
	if tokenID == "" {
		tokenID = uuid.NewString()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessJWTClaims{
		Email: claims.Email,
		Role:  claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.AccountID.String(),
			Issuer:    accessTokenIssuer,
			Audience:  jwt.ClaimStrings{accessTokenAudience},
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	return token.SignedString(s.secret)
}

func (s *JWTSigner) ParseAndValidate(raw string) (ports.AccessClaims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &accessJWTClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(accessTokenIssuer),
		jwt.WithAudience(accessTokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ports.AccessClaims{}, fmt.Errorf("%w: %w", domain.ErrTokenExpired, err)
		}
		return ports.AccessClaims{}, fmt.Errorf("%w: %w", domain.ErrTokenInvalid, err)
	}
	claims, ok := parsed.Claims.(*accessJWTClaims)
	if !ok || !parsed.Valid {
		return ports.AccessClaims{}, fmt.Errorf("%w: invalid token claims", domain.ErrTokenInvalid)
	}

	accountID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ports.AccessClaims{}, fmt.Errorf("%w: parse subject: %v", domain.ErrTokenInvalid, err)
	}

	out := ports.AccessClaims{
		AccountID: accountID,
		Email:     claims.Email,
		Role:      claims.Role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	return out, nil
}

// IsExpired reports whether a parse error was caused by the exp claim.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}
