package memory

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestCSRFStoreSingleUse(t *testing.T) {
	t.Parallel()

	s := NewCSRFStore(10)
	ctx := context.Background()
	now := time.Now()
	_ = s.Put(ctx, "tok", now, now.Add(time.Hour))

	ok, _ := s.Consume(ctx, "tok", now)
	if !ok {
		t.Fatalf("expected first consume to succeed")
	}
	ok, _ = s.Consume(ctx, "tok", now)
	if ok {
		t.Fatalf("expected reuse to fail")
	}

	_ = s.Put(ctx, "old", now, now.Add(-time.Second))
	if ok, _ := s.Consume(ctx, "old", now); ok {
		t.Fatalf("expected expired token to fail")
	}
}

func TestCSRFStoreSweepsAtCapacity(t *testing.T) {
	t.Parallel()

	s := NewCSRFStore(4)
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 3; i++ {
		_ = s.Put(ctx, fmt.Sprintf("expired-%d", i), now, now.Add(-time.Minute))
	}
	_ = s.Put(ctx, "live-0", now, now.Add(time.Hour))
	_ = s.Put(ctx, "live-1", now, now.Add(time.Hour))

	if s.Len() != 2 {
		t.Fatalf("expected expired entries swept, have %d", s.Len())
	}
	for i := 2; i < 10; i++ {
		_ = s.Put(ctx, fmt.Sprintf("live-%d", i), now, now.Add(time.Duration(i)*time.Minute))
	}
	if s.Len() > 4 {
		t.Fatalf("store exceeded capacity: %d", s.Len())
	}
}

func TestCSRFStoreUsesCallerClock(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	s := NewCSRFStore(2)
	s.logger = slog.New(slog.NewTextHandler(&logs, nil))
	ctx := context.Background()
	// A clock far behind the wall clock: nothing here is expired for the caller.
	now := time.Date(2020, time.January, 1, 12, 0, 0, 0, time.UTC)

	_ = s.Put(ctx, "first", now, now.Add(time.Hour))
	_ = s.Put(ctx, "second", now, now.Add(2*time.Hour))
	_ = s.Put(ctx, "third", now, now.Add(3*time.Hour))

	if s.Len() != 2 {
		t.Fatalf("expected capacity-bound eviction of one live token, have %d", s.Len())
	}
	if ok, _ := s.Consume(ctx, "first", now); ok {
		t.Fatalf("expected the soonest-expiring token to be evicted")
	}
	for _, tok := range []string{"second", "third"} {
		if ok, _ := s.Consume(ctx, tok, now); !ok {
			t.Fatalf("expected %s to survive", tok)
		}
	}
	if !strings.Contains(logs.String(), "evicted a live token") {
		t.Fatalf("expected a warning for the evicted live token, got %q", logs.String())
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	t.Parallel()

	l := NewRateLimiter()
	ctx := context.Background()
	start := time.Now()

	for i := 0; i < 3; i++ {
		d, _ := l.Hit(ctx, "ip:1", 3, time.Minute, start.Add(time.Duration(i)*time.Second))
		if !d.Allowed || d.Remaining != 2-i {
			t.Fatalf("hit %d: unexpected decision %+v", i, d)
		}
	}
	d, _ := l.Hit(ctx, "ip:1", 3, time.Minute, start.Add(10*time.Second))
	if d.Allowed || d.RetryAfter != 50*time.Second {
		t.Fatalf("expected denial with 50s retry, got %+v", d)
	}
	d, _ = l.Hit(ctx, "ip:1", 3, time.Minute, start.Add(61*time.Second))
	if !d.Allowed {
		t.Fatalf("expected oldest hit to leave the window, got %+v", d)
	}
	d, _ = l.Hit(ctx, "ip:2", 3, time.Minute, start)
	if !d.Allowed || d.Remaining != 2 {
		t.Fatalf("keys must be independent, got %+v", d)
	}
	_ = l.Reset(ctx, "ip:1")
	d, _ = l.Hit(ctx, "ip:1", 3, time.Minute, start.Add(62*time.Second))
	if d.Remaining != 2 {
		t.Fatalf("expected reset window, got %+v", d)
	}
}
