package application

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/calchub/auth-service/internal/domain"
	"github.com/calchub/auth-service/internal/ports"
)

type unavailableLimiter struct{}

func (unavailableLimiter) Hit(context.Context, string, int, time.Duration, time.Time) (ports.RateDecision, error) {
	return ports.RateDecision{}, errors.New("redis: connection refused")
}

func (unavailableLimiter) Reset(context.Context, string) error { return nil }

func TestRateLimitOutageFailsOpenWithoutLoggingIdentifiers(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(c *Config) {
		c.ForgotPasswordRateLimit = RateLimit{Limit: 1, Window: time.Hour}
		c.LoginRateLimit = RateLimit{Limit: 1, Window: time.Hour}
	})
	var logs bytes.Buffer
	env.svc.limiter = unavailableLimiter{}
	env.svc.logger = slog.New(slog.NewJSONHandler(&logs, nil))

	if err := env.svc.ForgotPassword(context.Background(), "secret.person@example.com", testClient); err != nil {
		t.Fatalf("forgot-password should fail open on limiter outage: %v", err)
	}
	_, err := env.svc.Login(context.Background(), LoginRequest{Email: "secret.person@example.com", Password: "Wr0ng-Horse!"}, testClient)
	var credErr *domain.CredentialsError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected credentials error, got %v", err)
	}

	out := logs.String()
	if !strings.Contains(out, `"limit_scope":"forgot"`) || !strings.Contains(out, `"limit_scope":"login"`) {
		t.Fatalf("expected limiter warnings with scopes, got %s", out)
	}
	if strings.Contains(out, "secret.person") || strings.Contains(out, testClient.IPAddress) {
		t.Fatalf("limiter warning leaked the identifier: %s", out)
	}
}

func TestThrottleClientPerIP(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(c *Config) {
		c.RequestRateLimit = RateLimit{Limit: 2, Window: time.Minute}
	})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := env.svc.ThrottleClient(ctx, "198.51.100.1"); err != nil {
			t.Fatalf("hit %d: %v", i, err)
		}
	}
	var rl *domain.RateLimitError
	if err := env.svc.ThrottleClient(ctx, "198.51.100.1"); !errors.As(err, &rl) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if err := env.svc.ThrottleClient(ctx, "198.51.100.2"); err != nil {
		t.Fatalf("other address must have its own budget: %v", err)
	}
}
