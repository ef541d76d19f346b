package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultCSRFCapacity = 10000

// CSRFStore is a capacity-bounded single-use token map.
type CSRFStore struct {
	mu       sync.Mutex
	tokens   map[string]time.Time
	capacity int
	logger   *slog.Logger
}

func NewCSRFStore(capacity int) *CSRFStore {
	if capacity <= 0 {
		capacity = defaultCSRFCapacity
	}
	return &CSRFStore{tokens: map[string]time.Time{}, capacity: capacity, logger: slog.Default()}
}

// Put sweeps expired tokens against now once the store is full, and evicts
// the token closest to expiry if that frees nothing.
func (s *CSRFStore) Put(_ context.Context, token string, now, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tokens) >= s.capacity {
		s.sweepLocked(now)
	}
	if len(s.tokens) >= s.capacity {
		s.evictSoonestLocked(now)
	}
	s.tokens[token] = expiresAt
	return nil
}

func (s *CSRFStore) Consume(_ context.Context, token string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.tokens[token]
	if !ok {
		return false, nil
	}
	delete(s.tokens, token)
	return expiresAt.After(now), nil
}

// Len reports the number of stored tokens, expired ones included.
func (s *CSRFStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func (s *CSRFStore) sweepLocked(now time.Time) {
	for token, expiresAt := range s.tokens {
		if !expiresAt.After(now) {
			delete(s.tokens, token)
		}
	}
}

func (s *CSRFStore) evictSoonestLocked(now time.Time) {
	var (
		victim  string
		soonest time.Time
	)
	for token, expiresAt := range s.tokens {
		if victim == "" || expiresAt.Before(soonest) {
			victim, soonest = token, expiresAt
		}
	}
	delete(s.tokens, victim)
	// Only expired entries are swept first, so the victim is still live: a
	// client holding it will see CSRF_TOKEN_INVALID.
	s.logger.Warn("csrf store full, evicted a live token",
		"module", "memory",
		"layer", "adapter",
		"operation", "csrf_put",
		"outcome", "evicted",
		"capacity", s.capacity,
		"remaining_ttl", soonest.Sub(now).String(),
	)
}
