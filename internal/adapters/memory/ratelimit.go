package memory

import (
	"context"
	"sync"
	"time"

	"github.com/calchub/auth-service/internal/ports"
)

type slidingWindow struct {
	hits   []time.Time
	window time.Duration
}

// RateLimiter keeps a sliding window of hit timestamps per key.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
	calls   int
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windows: map[string]*slidingWindow{}}
}

func (l *RateLimiter) Hit(_ context.Context, key string, limit int, window time.Duration, now time.Time) (ports.RateDecision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%1024 == 0 {
		l.compactLocked(now)
	}

	w, ok := l.windows[key]
	if !ok {
		w = &slidingWindow{}
		l.windows[key] = w
	}
	w.window = window

	cutoff := now.Add(-window)
	kept := w.hits[:0]
	for _, ts := range w.hits {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.hits = kept

	if len(w.hits) >= limit {
		retry := w.hits[0].Add(window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return ports.RateDecision{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
	}

	w.hits = append(w.hits, now)
	return ports.RateDecision{Allowed: true, Remaining: limit - len(w.hits)}, nil
}

func (l *RateLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.windows, key)
	return nil
}

// compactLocked drops keys whose newest hit has left their window.
func (l *RateLimiter) compactLocked(now time.Time) {
	for key, w := range l.windows {
		if len(w.hits) == 0 || !w.hits[len(w.hits)-1].After(now.Add(-w.window)) {
			delete(l.windows, key)
		}
	}
}
