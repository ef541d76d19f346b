package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/calchub/auth-service/internal/ports"
	"github.com/google/uuid"
)

// OutboxWorker drains the auth outbox into the configured publisher. Records
// are leased with a claim token so several workers can run side by side.
type OutboxWorker struct {
	logger     *slog.Logger
	outbox     ports.OutboxRepository
	publisher  ports.EventPublisher
	interval   time.Duration
	batchSize  int
	claimTTL   time.Duration
	maxRetries int
	nowFn      func() time.Time
}

type OutboxWorkerConfig struct {
	Interval   time.Duration
	BatchSize  int
	ClaimTTL   time.Duration
	MaxRetries int
}

type batchStats struct {
	published    int
	failed       int
	deadLettered int
}

func NewOutboxWorker(logger *slog.Logger, outbox ports.OutboxRepository, publisher ports.EventPublisher, cfg OutboxWorkerConfig) *OutboxWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &OutboxWorker{
		logger:     logger.With("module", "events.outbox_worker", "layer", "adapter"),
		outbox:     outbox,
		publisher:  publisher,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		claimTTL:   cfg.ClaimTTL,
		maxRetries: cfg.MaxRetries,
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
}

// Run publishes one batch per tick until ctx is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) error {
	return runTicker(ctx, w.interval, func(ctx context.Context) {
		if err := w.ProcessOnce(ctx); err != nil {
			w.logger.ErrorContext(ctx, "outbox iteration failed",
				"operation", "outbox_process_once",
				"outcome", "failure",
				"error", err,
			)
		}
	})
}

// ProcessOnce claims and settles a single batch.
func (w *OutboxWorker) ProcessOnce(ctx context.Context) error {
	claimToken := uuid.NewString()
	records, err := w.outbox.ClaimUnpublished(ctx, w.batchSize, claimToken, w.nowFn().Add(w.claimTTL))
	if err != nil {
		return err
	}

	var stats batchStats
	for _, rec := range records {
		w.settle(ctx, claimToken, rec, &stats)
	}
	if len(records) > 0 {
		w.logger.InfoContext(ctx, "outbox batch processed",
			"operation", "outbox_process_once",
			"outcome", "success",
			"batch_size", len(records),
			"published_count", stats.published,
			"failed_count", stats.failed,
			"dead_lettered_count", stats.deadLettered,
		)
	}
	return nil
}

func (w *OutboxWorker) settle(ctx context.Context, claimToken string, rec ports.OutboxRecord, stats *batchStats) {
	now := w.nowFn()
	if rec.RetryCount >= w.maxRetries {
		stats.deadLettered++
		w.mark(ctx, rec, w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, "retry threshold reached before publish", now))
		return
	}

	pubErr := w.publisher.Publish(ctx, rec.EventType, rec.Payload, rec.PartitionKey)
	if pubErr == nil {
		stats.published++
		w.mark(ctx, rec, w.outbox.MarkPublished(ctx, rec.OutboxID, claimToken, now))
		return
	}

	stats.failed++
	attempts := rec.RetryCount + 1
	fields := []any{
		"operation", "publish_event",
		"outcome", "failure",
		"outbox_id", rec.OutboxID,
		"event_type", rec.EventType,
		"payload_bytes", len(rec.Payload),
		"retry_count", attempts,
		"error", pubErr,
	}
	if attempts >= w.maxRetries {
		stats.deadLettered++
		w.logger.ErrorContext(ctx, "outbox message moved to dlq", fields...)
		w.mark(ctx, rec, w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, pubErr.Error(), now))
		return
	}
	w.logger.WarnContext(ctx, "outbox publish failed; retry scheduled", fields...)
	w.mark(ctx, rec, w.outbox.MarkFailed(ctx, rec.OutboxID, claimToken, pubErr.Error(), now))
}

func (w *OutboxWorker) mark(ctx context.Context, rec ports.OutboxRecord, err error) {
	if err == nil {
		return
	}
	w.logger.ErrorContext(ctx, "outbox state update failed",
		"operation", "mark_outbox",
		"outcome", "failure",
		"outbox_id", rec.OutboxID,
		"error", err,
	)
}

// runTicker invokes fn immediately and then on every tick.
func runTicker(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		fn(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
