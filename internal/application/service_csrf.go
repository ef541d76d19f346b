package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/calchub/auth-service/internal/domain"
)

const csrfTokenBytes = 32

// IssueCSRFToken stores and returns a single-use anti-forgery token.
func (s *Service) IssueCSRFToken(ctx context.Context) (string, time.Time, error) {
	token, err := randomHex(csrfTokenBytes)
	if err != nil {
		return "", time.Time{}, err
	}
	now := s.now()
	expiresAt := now.Add(s.cfg.CSRFTokenTTL)
	if err := s.csrf.Put(ctx, token, now, expiresAt); err != nil {
		return "", time.Time{}, fmt.Errorf("store csrf token: %w", err)
	}
	return token, expiresAt, nil
}

// ValidateCSRFToken consumes token. A token passes at most once.
func (s *Service) ValidateCSRFToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrCSRFTokenMissing
	}
	ok, err := s.csrf.Consume(ctx, token, s.now())
	if err != nil {
		return fmt.Errorf("consume csrf token: %w", err)
	}
	if !ok {
		return domain.ErrCSRFTokenInvalid
	}
	return nil
}
