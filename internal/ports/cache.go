package ports

import (
	"context"
	"time"
)

// CSRFStore keeps single-use anti-forgery tokens.
type CSRFStore interface {
	// Put stores token until expiresAt; now is the caller's clock.
	Put(ctx context.Context, token string, now, expiresAt time.Time) error
	// Consume deletes the token and reports whether it existed unexpired.
	Consume(ctx context.Context, token string, now time.Time) (bool, error)
}

// RateDecision is the outcome of one sliding-window hit.
type RateDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter is a sliding-window counter. A hit is recorded only when allowed.
type RateLimiter interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (RateDecision, error)
	Reset(ctx context.Context, key string) error
}
