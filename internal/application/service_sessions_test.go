package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/calchub/auth-service/internal/domain"
)

func TestRefreshRotatesAndRejectsReuse(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.register(t, "ada@example.com")
	ctx := context.Background()

	login, err := env.svc.Login(ctx, LoginRequest{Email: "ada@example.com", Password: testPassword, RememberMe: true}, testClient)
	if err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(time.Hour)

	rotated, err := env.svc.Refresh(ctx, login.RefreshToken, testClient)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == login.RefreshToken || !rotated.RememberMe {
		t.Fatalf("unexpected rotation result: %+v", rotated)
	}
	if got := rotated.RefreshExpiresAt.Sub(env.clock.Now()); got != 30*24*time.Hour {
		t.Fatalf("remember-me class lost, ttl = %s", got)
	}

	if _, err := env.svc.Refresh(ctx, login.RefreshToken, testClient); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("reused refresh token should be invalid, got %v", err)
	}
	if _, err := env.svc.Refresh(ctx, rotated.RefreshToken, testClient); err != nil {
		t.Fatalf("rotated token should work once: %v", err)
	}
}

func TestRefreshConcurrentRotationSucceedsOnce(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	res := env.register(t, "ada@example.com")

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.Refresh(context.Background(), res.RefreshToken, testClient); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if successes != 1 {
		t.Fatalf("expected exactly one rotation, got %d", successes)
	}
}

func TestRefreshExpiredTokenIsDeleted(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	res := env.register(t, "ada@example.com")
	ctx := context.Background()

	env.clock.Advance(8 * 24 * time.Hour)
	if _, err := env.svc.Refresh(ctx, res.RefreshToken, testClient); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if _, err := env.svc.Refresh(ctx, res.RefreshToken, testClient); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expired token should be gone, got %v", err)
	}
	if env.countLogs(domain.ActionTokenRefresh, domain.StatusFailed) != 2 {
		t.Fatal("expected failed TOKEN_REFRESH audits")
	}
}

func TestRefreshDeactivatedAccountRevokesEverything(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	res := env.register(t, "ada@example.com")
	ctx := context.Background()
	if _, err := env.svc.Login(ctx, LoginRequest{Email: "ada@example.com", Password: testPassword}, testClient); err != nil {
		t.Fatal(err)
	}
	if err := env.store.SetActive(res.Account.AccountID, false); err != nil {
		t.Fatal(err)
	}

	if _, err := env.svc.Refresh(ctx, res.RefreshToken, testClient); !errors.Is(err, domain.ErrAccountDeactivated) {
		t.Fatalf("expected deactivated, got %v", err)
	}
	if n := len(env.store.RefreshTokens(res.Account.AccountID)); n != 0 {
		t.Fatalf("expected all sessions revoked, %d left", n)
	}
}

func TestRefreshRequiresToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	if _, err := env.svc.Refresh(context.Background(), "  ", testClient); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestLogoutAndLogoutAll(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	first := env.register(t, "ada@example.com")
	ctx := context.Background()
	id := first.Account.AccountID

	second, err := env.svc.Login(ctx, LoginRequest{Email: "ada@example.com", Password: testPassword}, testClient)
	if err != nil {
		t.Fatal(err)
	}
	third, err := env.svc.Login(ctx, LoginRequest{Email: "ada@example.com", Password: testPassword}, testClient)
	if err != nil {
		t.Fatal(err)
	}

	if err := env.svc.Logout(ctx, first.RefreshToken, &id, testClient); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := env.svc.Logout(ctx, first.RefreshToken, nil, testClient); err != nil {
		t.Fatalf("logout must be idempotent: %v", err)
	}
	if _, err := env.svc.Refresh(ctx, first.RefreshToken, testClient); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("logged-out token should be invalid, got %v", err)
	}

	n, err := env.svc.LogoutAll(ctx, id, testClient)
	if err != nil || n != 2 {
		t.Fatalf("logout all: n=%d err=%v", n, err)
	}
	for _, tok := range []string{second.RefreshToken, third.RefreshToken} {
		if _, err := env.svc.Refresh(ctx, tok, testClient); !errors.Is(err, domain.ErrTokenInvalid) {
			t.Fatalf("expected invalid after logout-all, got %v", err)
		}
	}
	if env.countLogs(domain.ActionLogoutAll, domain.StatusSuccess) != 1 {
		t.Fatal("expected LOGOUT_ALL audit")
	}
}

func TestValidateAccessToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	res := env.register(t, "ada@example.com")
	ctx := context.Background()

	acc, claims, err := env.svc.ValidateAccessToken(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if acc.AccountID != res.Account.AccountID || claims.Role != domain.RoleUser || claims.Email != "ada@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, _, err := env.svc.ValidateAccessToken(ctx, ""); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("empty token: %v", err)
	}
	if _, _, err := env.svc.ValidateAccessToken(ctx, "not.a.jwt"); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("garbage token: %v", err)
	}

	// The signer checks expiry against the wall clock.
	env.clock.Advance(-time.Hour)
	stale, _, err := env.svc.IssueAccessToken(res.Account)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.svc.ValidateAccessToken(ctx, stale); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}

func TestMe(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	res := env.register(t, "ada@example.com")

	view, err := env.svc.Me(context.Background(), res.Account.AccountID)
	if err != nil {
		t.Fatal(err)
	}
	if view.Email != "ada@example.com" || view.FullName != "Ada Lovelace" {
		t.Fatalf("unexpected view: %+v", view)
	}
}
