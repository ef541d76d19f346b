package application

import (
	"log/slog"
	"sync"
	"time"

	"github.com/calchub/auth-service/internal/ports"
)

// Service implements the account, session, recovery, CSRF and audit use cases.
// HTTP and gRPC adapters call it; it only talks to the world through ports.
type Service struct {
	cfg           Config
	accounts      ports.AccountRepository
	refreshTokens ports.RefreshTokenRepository
	recovery      ports.RecoveryRepository
	audit         ports.AuditRepository
	outbox        ports.OutboxRepository
	csrf          ports.CSRFStore
	limiter       ports.RateLimiter
	mailer        ports.Mailer
	hasher        ports.PasswordHasher
	tokenSigner   ports.TokenSigner
	digester      ports.TokenDigester
	logger        *slog.Logger
	nowFn         func() time.Time

	dummyHashOnce sync.Once
	dummyHash     string
}

type Dependencies struct {
	Config        Config
	Accounts      ports.AccountRepository
	RefreshTokens ports.RefreshTokenRepository
	Recovery      ports.RecoveryRepository
	Audit         ports.AuditRepository
	Outbox        ports.OutboxRepository
	CSRF          ports.CSRFStore
	RateLimiter   ports.RateLimiter
	Mailer        ports.Mailer
	Hasher        ports.PasswordHasher
	TokenSigner   ports.TokenSigner
	Digester      ports.TokenDigester
	Logger        *slog.Logger
	// Now overrides the clock; tests use it to step past expiries.
	Now func() time.Time
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := deps.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:           deps.Config.withDefaults(),
		accounts:      deps.Accounts,
		refreshTokens: deps.RefreshTokens,
		recovery:      deps.Recovery,
		audit:         deps.Audit,
		outbox:        deps.Outbox,
		csrf:          deps.CSRF,
		limiter:       deps.RateLimiter,
		mailer:        deps.Mailer,
		hasher:        deps.Hasher,
		tokenSigner:   deps.TokenSigner,
		digester:      deps.Digester,
		logger: logger.With(
			"service", serviceName,
			"module", "application",
			"layer", "application",
		),
		nowFn: nowFn,
	}
}

func (s *Service) now() time.Time {
	return s.nowFn().UTC()
}

// Config exposes the effective settings, including defaults.
func (s *Service) Config() Config {
	return s.cfg
}
