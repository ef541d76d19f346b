package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/calchub/auth-service/internal/ports"
)

// TokenSweeper periodically deletes lapsed refresh tokens together with
// expired or spent verification and reset tokens.
type TokenSweeper struct {
	logger   *slog.Logger
	refresh  ports.RefreshTokenRepository
	recovery ports.RecoveryRepository
	interval time.Duration
	nowFn    func() time.Time
}

func NewTokenSweeper(logger *slog.Logger, refresh ports.RefreshTokenRepository, recovery ports.RecoveryRepository, interval time.Duration) *TokenSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &TokenSweeper{
		logger:   logger.With("module", "events.token_sweeper", "layer", "adapter"),
		refresh:  refresh,
		recovery: recovery,
		interval: interval,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *TokenSweeper) Run(ctx context.Context) error {
	return runTicker(ctx, s.interval, func(ctx context.Context) {
		if _, err := s.SweepOnce(ctx); err != nil {
			s.logger.ErrorContext(ctx, "token sweep failed",
				"operation", "sweep_tokens",
				"outcome", "failure",
				"error", err,
			)
		}
	})
}

// SweepOnce returns the number of rows removed across both stores.
func (s *TokenSweeper) SweepOnce(ctx context.Context) (int64, error) {
	now := s.nowFn()
	sessions, err := s.refresh.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	recovery, err := s.recovery.PurgeExpired(ctx, now)
	if err != nil {
		return sessions, err
	}
	if total := sessions + recovery; total > 0 {
		s.logger.InfoContext(ctx, "expired tokens swept",
			"operation", "sweep_tokens",
			"outcome", "success",
			"expired_sessions", sessions,
			"expired_recovery", recovery,
		)
	}
	return sessions + recovery, nil
}
