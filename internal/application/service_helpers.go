package application

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/calchub/auth-service/internal/domain"
	"github.com/calchub/auth-service/internal/ports"
	"github.com/google/uuid"
)

// randomURLToken returns n random bytes as unpadded base64url.
func randomURLToken(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func randomHex(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

func (s *Service) digest(token string) string {
	return s.digester.Digest(token)
}

// enforceRateLimit records a hit against key and fails with a RateLimitError
// once the window is full. Limiter outages fail open.
func (s *Service) enforceRateLimit(ctx context.Context, key string, limit RateLimit) error {
	if s.limiter == nil || !limit.enabled() || strings.TrimSpace(key) == "" {
		return nil
	}
	decision, err := s.limiter.Hit(ctx, key, limit.Limit, limit.Window, s.now())
	if err != nil {
		s.logger.WarnContext(ctx, "rate-limit state unavailable",
			"operation", "rate_limit",
			"outcome", "warning",
			"limit_scope", limitScope(key),
			"error", err,
		)
		return nil
	}
	if !decision.Allowed {
		return &domain.RateLimitError{RetryAfter: decision.RetryAfter}
	}
	return nil
}

// limitScope is the key up to its first separator; the rest may be an email.
func limitScope(key string) string {
	scope, _, _ := strings.Cut(key, ":")
	return scope
}

func (s *Service) enqueueEvent(ctx context.Context, eventType string, accountID uuid.UUID, payload map[string]any) {
	if s.outbox == nil {
		return
	}
	now := s.now()
	payload["account_id"] = accountID.String()
	payload["occurred_at"] = now
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.ErrorContext(ctx, "encode outbox payload failed",
			"operation", "enqueue_event",
			"outcome", "failure",
			"event_type", eventType,
			"error", err,
		)
		return
	}
	if err := s.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventType,
		PartitionKey: accountID.String(),
		Payload:      raw,
		OccurredAt:   now,
	}); err != nil {
		s.logger.ErrorContext(ctx, "enqueue outbox event failed",
			"operation", "enqueue_event",
			"outcome", "failure",
			"event_type", eventType,
			"account_id", accountID,
			"error", err,
		)
	}
}

// sendMail delivers best-effort; a failure is logged and never returned.
func (s *Service) sendMail(ctx context.Context, to, template string, data map[string]any) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.Send(ctx, to, template, data); err != nil {
		s.logger.WarnContext(ctx, "mail delivery failed",
			"operation", "send_mail",
			"outcome", "failure",
			"template", template,
			"error", err,
		)
	}
}

// link builds an absolute frontend URL carrying token as a query parameter.
func (s *Service) link(path, token string) string {
	base := strings.TrimRight(s.cfg.AppBaseURL, "/")
	if token == "" {
		return base + path
	}
	return base + path + "?token=" + url.QueryEscape(token)
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "24 hours"
		}
		return fmt.Sprintf("%d days", days)
	case d >= time.Hour && d%time.Hour == 0:
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	default:
		return fmt.Sprintf("%d minutes", int(d.Round(time.Minute)/time.Minute))
	}
}

// dummyPasswordHash returns a hash for timing-equalization comparisons on
// unknown accounts. It is computed once per service with the configured cost.
func (s *Service) dummyPasswordHash() string {
	s.dummyHashOnce.Do(func() {
		seed, err := randomHex(16)
		if err != nil {
			seed = "unused-account-placeholder"
		}
		hash, err := s.hasher.Hash(seed)
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}
