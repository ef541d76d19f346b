package mail

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/calchub/auth-service/internal/ports"
)

var (
	ErrQueueFull        = errors.New("mail queue full")
	ErrDispatcherClosed = errors.New("mail dispatcher closed")
)

// DispatcherConfig bounds the delivery queue. Zero values take defaults.
type DispatcherConfig struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

type mailJob struct {
	ctx      context.Context
	to       string
	template string
	data     map[string]any
}

// Dispatcher hands messages to a fixed pool of workers so request latency
// never depends on the relay. Send only enqueues.
type Dispatcher struct {
	next    ports.Mailer
	logger  *slog.Logger
	timeout time.Duration
	jobs    chan mailJob

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(next ports.Mailer, logger *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 45 * time.Second
	}
	d := &Dispatcher{
		next:    next,
		logger:  logger.With("module", "mail", "layer", "adapter"),
		timeout: cfg.SendTimeout,
		jobs:    make(chan mailJob, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

// Send queues the message. The request context only contributes its values;
// its cancellation does not abort delivery.
func (d *Dispatcher) Send(ctx context.Context, to, template string, data map[string]any) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	job := mailJob{
		ctx:      context.WithoutCancel(ctx),
		to:       to,
		template: template,
		data:     maps.Clone(data),
	}
	select {
	case d.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting mail and waits for the queue to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.logger.Warn("mail queue not drained before shutdown",
			"operation", "close",
			"outcome", "failure",
			"pending", len(d.jobs),
		)
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for job := range d.jobs {
		ctx, cancel := context.WithTimeout(job.ctx, d.timeout)
		if err := d.next.Send(ctx, job.to, job.template, job.data); err != nil {
			d.logger.WarnContext(ctx, "queued mail delivery failed",
				"operation", "dispatch",
				"outcome", "failure",
				"template", job.template,
				"error", err,
			)
		}
		cancel()
	}
}
