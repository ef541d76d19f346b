package mail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type slowMailer struct {
	delay time.Duration
	mu    sync.Mutex
	sent  []string
	errs  []error
}

func (m *slowMailer) Send(ctx context.Context, to, _ string, _ map[string]any) error {
	select {
	case <-time.After(m.delay):
	case <-ctx.Done():
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	m.errs = append(m.errs, ctx.Err())
	return nil
}

func (m *slowMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherSendDoesNotWaitForDelivery(t *testing.T) {
	t.Parallel()

	inner := &slowMailer{delay: 200 * time.Millisecond}
	d := NewDispatcher(inner, quietLogger(), DispatcherConfig{Workers: 2})

	start := time.Now()
	for i := 0; i < 4; i++ {
		if err := d.Send(context.Background(), "ada@example.com", TemplatePasswordReset, map[string]any{"link": "x"}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("send blocked on delivery for %s", elapsed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := inner.count(); got != 4 {
		t.Fatalf("expected queue drained on close, delivered %d", got)
	}
}

func TestDispatcherDetachesFromRequestContext(t *testing.T) {
	t.Parallel()

	inner := &slowMailer{delay: 20 * time.Millisecond}
	d := NewDispatcher(inner, quietLogger(), DispatcherConfig{Workers: 1})

	reqCtx, cancelReq := context.WithCancel(context.Background())
	if err := d.Send(reqCtx, "ada@example.com", TemplateVerifyEmail, nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	cancelReq()

	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if inner.count() != 1 || inner.errs[0] != nil {
		t.Fatalf("delivery should outlive the request, got %v", inner.errs)
	}
}

func TestDispatcherQueueBounds(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	inner := mailerFunc(func(context.Context, string, string, map[string]any) error {
		<-block
		return nil
	})
	d := NewDispatcher(inner, quietLogger(), DispatcherConfig{QueueSize: 1, Workers: 1})

	var full error
	for i := 0; i < 3 && full == nil; i++ {
		full = d.Send(context.Background(), "ada@example.com", TemplateVerifyEmail, nil)
	}
	if !errors.Is(full, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull once worker and queue are busy, got %v", full)
	}

	close(block)
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := d.Send(context.Background(), "ada@example.com", TemplateVerifyEmail, nil); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("expected ErrDispatcherClosed after close, got %v", err)
	}
}

type mailerFunc func(ctx context.Context, to, template string, data map[string]any) error

func (f mailerFunc) Send(ctx context.Context, to, template string, data map[string]any) error {
	return f(ctx, to, template, data)
}
