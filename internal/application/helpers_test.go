package application

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/calchub/auth-service/internal/adapters/memory"
	"github.com/calchub/auth-service/internal/adapters/security"
	"github.com/calchub/auth-service/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword = "Corr3ct-Horse!"
	testSecret   = "test-access-secret-0123456789abcdef"
)

var testClient = ClientInfo{
	IPAddress: "203.0.113.7",
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMail struct {
	To       string
	Template string
	Data     map[string]any
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) Send(_ context.Context, to, template string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Template: template, Data: data})
	return nil
}

func (m *recordingMailer) byTemplate(template string) []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMail
	for _, s := range m.sent {
		if s.Template == template {
			out = append(out, s)
		}
	}
	return out
}

// lastToken extracts the token query parameter from the newest mail of template.
func (m *recordingMailer) lastToken(t *testing.T, template string) string {
	t.Helper()
	mails := m.byTemplate(template)
	if len(mails) == 0 {
		t.Fatalf("no %s mail sent", template)
	}
	link, _ := mails[len(mails)-1].Data["link"].(string)
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link %q: %v", link, err)
	}
	token := u.Query().Get("token")
	if token == "" {
		t.Fatalf("link %q carries no token", link)
	}
	return token
}

type testEnv struct {
	svc     *Service
	store   *memory.Store
	mailer  *recordingMailer
	clock   *fakeClock
	limiter *memory.RateLimiter
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	signer, err := security.NewJWTSigner(testSecret)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	cfg := Config{
		MaxLoginAttempts: 5,
		LockoutDuration:  30 * time.Minute,
		AppBaseURL:       "https://app.example.com",
	}
	for _, m := range mutate {
		m(&cfg)
	}
	env := &testEnv{
		store:   memory.NewStore(),
		mailer:  &recordingMailer{},
		clock:   &fakeClock{now: time.Now().UTC().Truncate(time.Second)},
		limiter: memory.NewRateLimiter(),
	}
	env.svc = NewService(Dependencies{
		Config:        cfg,
		Accounts:      env.store,
		RefreshTokens: env.store,
		Recovery:      env.store,
		Audit:         env.store,
		Outbox:        env.store,
		CSRF:          memory.NewCSRFStore(0),
		RateLimiter:   env.limiter,
		Mailer:        env.mailer,
		Hasher:        security.NewBcryptHasher(bcrypt.MinCost),
		TokenSigner:   signer,
		Digester:      security.NewHMACDigester("test-refresh-secret"),
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:           env.clock.Now,
	})
	return env
}

func (e *testEnv) register(t *testing.T, email string) AuthResult {
	t.Helper()
	res, err := e.svc.Register(context.Background(), RegisterRequest{
		FullName: "Ada Lovelace",
		Email:    email,
		Password: testPassword,
	}, testClient)
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return res
}

func (e *testEnv) account(t *testing.T, email string) domain.Account {
	t.Helper()
	acc, err := e.store.GetByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("get %s: %v", email, err)
	}
	return acc
}

func (e *testEnv) countLogs(action domain.AuditAction, status domain.AuditStatus) int {
	n := 0
	for _, entry := range e.store.SecurityLogs() {
		if entry.Action == action && entry.Status == status {
			n++
		}
	}
	return n
}
