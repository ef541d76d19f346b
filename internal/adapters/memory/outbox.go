package memory

import (
	"context"
	"errors"
	"time"

	"github.com/calchub/auth-service/internal/ports"
	"github.com/google/uuid"
)

func (s *Store) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enqueueLocked(event)
	return nil
}

func (s *Store) enqueueLocked(event ports.OutboxEvent) {
	s.outbox = append(s.outbox, ports.OutboxRecord{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      append([]byte(nil), event.Payload...),
		CreatedAt:    event.OccurredAt,
		FirstSeenAt:  event.OccurredAt,
	})
}

func (s *Store) ClaimUnpublished(_ context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.OutboxRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	if claimToken == "" {
		return nil, errors.New("claim token is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	out := make([]ports.OutboxRecord, 0, limit)
	for i := range s.outbox {
		rec := &s.outbox[i]
		if rec.PublishedAt != nil || rec.DeadLetteredAt != nil {
			continue
		}
		if rec.ClaimUntil != nil && !rec.ClaimUntil.Before(now) {
			continue
		}
		token := claimToken
		until := claimUntil
		rec.ClaimToken = &token
		rec.ClaimUntil = &until
		out = append(out, *rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkPublished(_ context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec := s.claimedLocked(outboxID, claimToken); rec != nil {
		rec.PublishedAt = &at
		rec.ClaimToken, rec.ClaimUntil = nil, nil
	}
	return nil
}

func (s *Store) MarkFailed(_ context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec := s.claimedLocked(outboxID, claimToken); rec != nil {
		rec.RetryCount++
		rec.LastError = &errMsg
		rec.LastErrorAt = &at
		rec.ClaimToken, rec.ClaimUntil = nil, nil
	}
	return nil
}

func (s *Store) MarkDeadLettered(_ context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec := s.claimedLocked(outboxID, claimToken); rec != nil {
		rec.RetryCount++
		rec.LastError = &errMsg
		rec.LastErrorAt = &at
		rec.DeadLetteredAt = &at
		rec.ClaimToken, rec.ClaimUntil = nil, nil
	}
	return nil
}

// OutboxEvents returns a snapshot of the outbox in insertion order.
func (s *Store) OutboxEvents() []ports.OutboxRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]ports.OutboxRecord(nil), s.outbox...)
}

func (s *Store) claimedLocked(outboxID uuid.UUID, claimToken string) *ports.OutboxRecord {
	for i := range s.outbox {
		rec := &s.outbox[i]
		if rec.OutboxID == outboxID && rec.ClaimToken != nil && *rec.ClaimToken == claimToken {
			return rec
		}
	}
	return nil
}
