package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/calchub/auth-service/internal/domain"
	"github.com/calchub/auth-service/internal/ports"
	"github.com/google/uuid"
)

func seedAccount(t *testing.T, s *Store, email string) domain.Account {
	t.Helper()
	acc, err := s.CreateWithOutboxTx(context.Background(), domain.Account{
		FullName: "Test User",
		Email:    email,
		Role:     domain.RoleUser,
		IsActive: true,
	}, ports.OutboxEvent{})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return acc
}

func TestCreateRejectsDuplicateEmail(t *testing.T) {
	t.Parallel()

	s := NewStore()
	seedAccount(t, s, "dup@example.com")
	_, err := s.CreateWithOutboxTx(context.Background(), domain.Account{Email: "dup@example.com"}, ports.OutboxEvent{})
	if !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
}

func TestRecordFailedLoginConcurrentCountsEveryFailure(t *testing.T) {
	t.Parallel()

	s := NewStore()
	acc := seedAccount(t, s, "race@example.com")
	now := time.Now().UTC()

	const threshold = 5
	var applied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.RecordFailedLogin(context.Background(), acc.AccountID, now, threshold, time.Minute)
			if err != nil {
				t.Errorf("record failed login: %v", err)
				return
			}
			if res.Applied {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	if applied.Load() != threshold {
		t.Fatalf("expected exactly %d applied increments, got %d", threshold, applied.Load())
	}
	got, _ := s.GetByID(context.Background(), acc.AccountID)
	if got.FailedLoginCount != threshold || !got.IsLocked(now) {
		t.Fatalf("expected locked account with count %d, got %+v", threshold, got)
	}
}

func TestRecordFailedLoginRestartsAfterElapsedLock(t *testing.T) {
	t.Parallel()

	s := NewStore()
	acc := seedAccount(t, s, "elapsed@example.com")
	start := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if _, err := s.RecordFailedLogin(context.Background(), acc.AccountID, start, 3, time.Minute); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	later := start.Add(2 * time.Minute)
	res, err := s.RecordFailedLogin(context.Background(), acc.AccountID, later, 3, time.Minute)
	if err != nil {
		t.Fatalf("record after lock: %v", err)
	}
	if !res.Applied || res.FailedLoginCount != 1 || res.LockedUntil != nil {
		t.Fatalf("expected fresh count after elapsed lock, got %+v", res)
	}
}

func TestRotateSucceedsOnceUnderConcurrency(t *testing.T) {
	t.Parallel()

	s := NewStore()
	acc := seedAccount(t, s, "rotate@example.com")
	now := time.Now().UTC()
	if err := s.Create(context.Background(), domain.RefreshToken{
		TokenHash: "old", AccountID: acc.AccountID, RememberMe: true, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, err := s.Rotate(context.Background(), ports.RotateParams{
				OldHash: "old", NewHash: uuid.NewString(), SessionTTL: time.Hour, RememberTTL: 30 * 24 * time.Hour, Now: now,
			})
			if err == nil {
				wins.Add(1)
				if !next.RememberMe || !next.ExpiresAt.Equal(now.Add(30*24*time.Hour)) {
					t.Errorf("rotation %d lost remember-me class: %+v", i, next)
				}
				return
			}
			if !errors.Is(err, domain.ErrNotFound) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected one successful rotation, got %d", wins.Load())
	}
}

func TestRotateDeletesExpiredToken(t *testing.T) {
	t.Parallel()

	s := NewStore()
	acc := seedAccount(t, s, "expired@example.com")
	now := time.Now().UTC()
	_ = s.Create(context.Background(), domain.RefreshToken{TokenHash: "stale", AccountID: acc.AccountID, ExpiresAt: now.Add(-time.Second)})

	_, err := s.Rotate(context.Background(), ports.RotateParams{OldHash: "stale", NewHash: "n", Now: now})
	if !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	_, err = s.Rotate(context.Background(), ports.RotateParams{OldHash: "stale", NewHash: "n", Now: now})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected expired row to be deleted, got %v", err)
	}
}

func TestVerificationTokenSingleUseAndReplacement(t *testing.T) {
	t.Parallel()

	s := NewStore()
	acc := seedAccount(t, s, "verify@example.com")
	now := time.Now().UTC()
	ctx := context.Background()

	_ = s.ReplaceEmailVerificationToken(ctx, domain.EphemeralToken{TokenHash: "first", AccountID: acc.AccountID, ExpiresAt: now.Add(time.Hour)})
	_ = s.ReplaceEmailVerificationToken(ctx, domain.EphemeralToken{TokenHash: "second", AccountID: acc.AccountID, ExpiresAt: now.Add(time.Hour)})

	if _, err := s.ConsumeEmailVerificationToken(ctx, "first", now); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("superseded token must be gone, got %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ConsumeEmailVerificationToken(ctx, "second", now); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one consumption, got %d", wins.Load())
	}
	got, _ := s.GetByID(ctx, acc.AccountID)
	if !got.EmailVerified {
		t.Fatalf("expected email verified")
	}
}

func TestResetPasswordWithTokenRevokesSessions(t *testing.T) {
	t.Parallel()

	s := NewStore()
	acc := seedAccount(t, s, "reset@example.com")
	now := time.Now().UTC()
	ctx := context.Background()

	_ = s.Create(ctx, domain.RefreshToken{TokenHash: "r1", AccountID: acc.AccountID, ExpiresAt: now.Add(time.Hour)})
	_ = s.Create(ctx, domain.RefreshToken{TokenHash: "r2", AccountID: acc.AccountID, ExpiresAt: now.Add(time.Hour)})
	_, _ = s.RecordFailedLogin(ctx, acc.AccountID, now, 1, time.Hour)

	_ = s.ReplacePasswordResetToken(ctx, domain.EphemeralToken{TokenHash: "old-reset", AccountID: acc.AccountID, ExpiresAt: now.Add(time.Hour)})
	_ = s.ReplacePasswordResetToken(ctx, domain.EphemeralToken{TokenHash: "reset", AccountID: acc.AccountID, ExpiresAt: now.Add(time.Hour)})

	if _, err := s.ResetPasswordWithToken(ctx, "old-reset", "h", now); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("superseded reset token must fail, got %v", err)
	}
	if _, err := s.ResetPasswordWithToken(ctx, "reset", "new-hash", now); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := s.ResetPasswordWithToken(ctx, "reset", "again", now); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("used reset token must fail, got %v", err)
	}

	got, _ := s.GetByID(ctx, acc.AccountID)
	if got.PasswordHash != "new-hash" || got.FailedLoginCount != 0 || got.LockedUntil != nil {
		t.Fatalf("unexpected account after reset: %+v", got)
	}
	if n := len(s.RefreshTokens(acc.AccountID)); n != 0 {
		t.Fatalf("expected all refresh tokens revoked, %d left", n)
	}
	if n, _ := s.PurgeExpired(ctx, now); n != 1 {
		t.Fatalf("expected used reset token to be purged, got %d", n)
	}
}

func TestOutboxClaimAndMark(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		_ = s.Enqueue(ctx, ports.OutboxEvent{EventID: uuid.New(), EventType: "account.locked", OccurredAt: now})
	}

	claimed, err := s.ClaimUnpublished(ctx, 2, "claim-a", now.Add(time.Minute))
	if err != nil || len(claimed) != 2 {
		t.Fatalf("expected 2 claimed, got %d (%v)", len(claimed), err)
	}
	again, _ := s.ClaimUnpublished(ctx, 10, "claim-b", now.Add(time.Minute))
	if len(again) != 1 {
		t.Fatalf("claimed rows must not be handed out twice, got %d", len(again))
	}

	_ = s.MarkPublished(ctx, claimed[0].OutboxID, "claim-a", now)
	_ = s.MarkDeadLettered(ctx, claimed[1].OutboxID, "claim-a", "boom", now)
	_ = s.MarkPublished(ctx, again[0].OutboxID, "wrong-claim", now)

	events := s.OutboxEvents()
	if events[0].PublishedAt == nil || events[1].DeadLetteredAt == nil || events[2].PublishedAt != nil {
		t.Fatalf("unexpected outbox state: %+v", events)
	}
}
