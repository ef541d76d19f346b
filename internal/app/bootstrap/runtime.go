package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/calchub/auth-service/internal/adapters/cache"
	eventadapter "github.com/calchub/auth-service/internal/adapters/events"
	grpcadapter "github.com/calchub/auth-service/internal/adapters/grpc"
	httpadapter "github.com/calchub/auth-service/internal/adapters/http"
	mailadapter "github.com/calchub/auth-service/internal/adapters/mail"
	"github.com/calchub/auth-service/internal/adapters/memory"
	"github.com/calchub/auth-service/internal/adapters/postgres"
	"github.com/calchub/auth-service/internal/adapters/security"
	"github.com/calchub/auth-service/internal/application"
	"github.com/calchub/auth-service/internal/ports"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server
	outbox     *eventadapter.OutboxWorker
	sweeper    *eventadapter.TokenSweeper
	cleanupFn  func(context.Context)
}

// storage is the set of repositories plus its readiness probe.
type storage struct {
	accounts      ports.AccountRepository
	refreshTokens ports.RefreshTokenRepository
	recovery      ports.RecoveryRepository
	audit         ports.AuditRepository
	outbox        ports.OutboxRepository
	ping          func(context.Context) error
	close         func()
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	logger = logger.With("service", cfg.ServiceID)
	logger.Info("bootstrapping auth service",
		"env", cfg.Env,
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
		"csrf_enabled", cfg.CSRFEnabled,
		"trusted_proxies", len(cfg.TrustedProxies),
	)

	var cleanups []func()
	cleanup := func(context.Context) {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Runtime, error) {
		cleanup(ctx)
		return nil, err
	}

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, store.close)

	csrf, limiter, pingCache, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, closeCache)

	accessSecret, refreshSecret := cfg.JWTAccessSecret, cfg.JWTRefreshSecret
	if accessSecret == "" || refreshSecret == "" {
		logger.Warn("using ephemeral signing secrets; sessions will not survive a restart")
		if accessSecret == "" {
			accessSecret = ephemeralSecret()
		}
		if refreshSecret == "" {
			refreshSecret = ephemeralSecret()
		}
	}
	tokenSigner, err := security.NewJWTSigner(accessSecret)
	if err != nil {
		return fail(fmt.Errorf("init jwt signer: %w", err))
	}

	var mailer ports.Mailer = mailadapter.NewLoggingMailer(logger)
	if cfg.SMTPHost != "" {
		mailer = mailadapter.NewSMTPMailer(mailadapter.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger)
	} else {
		logger.Warn("SMTP_HOST not set; outgoing mail is only logged")
	}

	dispatcher := mailadapter.NewDispatcher(mailer, logger, mailadapter.DispatcherConfig{})
	cleanups = append(cleanups, func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = dispatcher.Close(drainCtx)
	})

	var publisher ports.EventPublisher = eventadapter.NewLoggingPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix)
		if err != nil {
			return fail(fmt.Errorf("init kafka publisher: %w", err))
		}
		publisher = kafka
		cleanups = append(cleanups, func() { _ = kafka.Close() })
	}

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			AccessTokenTTL:          cfg.AccessTokenTTL,
			RefreshTokenTTL:         cfg.RefreshTokenTTL,
			RememberMeTTL:           cfg.RememberMeTTL,
			MaxLoginAttempts:        cfg.MaxLoginAttempts,
			LockoutDuration:         cfg.LockoutDuration,
			VerificationTokenTTL:    cfg.VerificationTokenTTL,
			ResetTokenTTL:           cfg.ResetTokenTTL,
			CSRFTokenTTL:            cfg.CSRFTokenTTL,
			AppBaseURL:              cfg.AppBaseURL,
			RequestRateLimit:        application.RateLimit(cfg.RequestRateLimit),
			LoginRateLimit:          application.RateLimit(cfg.LoginRateLimit),
			ForgotPasswordRateLimit: application.RateLimit(cfg.ForgotPasswordRateLimit),
			ResendRateLimit:         application.RateLimit(cfg.ResendRateLimit),
		},
		Accounts:      store.accounts,
		RefreshTokens: store.refreshTokens,
		Recovery:      store.recovery,
		Audit:         store.audit,
		Outbox:        store.outbox,
		CSRF:          csrf,
		RateLimiter:   limiter,
		Mailer:        dispatcher,
		Hasher:        security.NewBcryptHasher(cfg.BcryptCost),
		TokenSigner:   tokenSigner,
		Digester:      security.NewHMACDigester(refreshSecret),
		Logger:        logger,
	})

	ready := func(ctx context.Context) error {
		if err := store.ping(ctx); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		if err := pingCache(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		return nil
	}
	handler := httpadapter.NewHandler(svc, httpadapter.Options{
		Production:     cfg.Production(),
		CSRFEnabled:    cfg.CSRFEnabled,
		Ready:          ready,
		TrustedProxies: cfg.TrustedProxies,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(grpcadapter.LoggingInterceptor(logger)))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	grpcadapter.Register(grpcServer, grpcadapter.NewAuthInternalServer(svc))

	outbox := eventadapter.NewOutboxWorker(logger, store.outbox, publisher, eventadapter.OutboxWorkerConfig{
		Interval:   cfg.OutboxPollInterval,
		BatchSize:  cfg.OutboxBatchSize,
		ClaimTTL:   cfg.OutboxClaimTTL,
		MaxRetries: cfg.OutboxMaxRetries,
	})
	sweeper := eventadapter.NewTokenSweeper(logger, store.refreshTokens, store.recovery, cfg.SweepInterval)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		health:     healthSrv,
		outbox:     outbox,
		sweeper:    sweeper,
		cleanupFn:  cleanup,
	}, nil
}

func openStorage(ctx context.Context, cfg Config, logger *slog.Logger) (storage, error) {
	if cfg.DatabaseURL == MemoryDatabaseURL {
		logger.Warn("using the in-process store; data is lost on exit")
		store := memory.NewStore()
		return storage{
			accounts:      store,
			refreshTokens: store,
			recovery:      store,
			audit:         store,
			outbox:        store,
			ping:          func(context.Context) error { return nil },
			close:         func() {},
		}, nil
	}

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return storage{}, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return storage{}, fmt.Errorf("gorm sql db: %w", err)
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		_ = sqlDB.Close()
		return storage{}, fmt.Errorf("run migrations: %w", err)
	}
	repos := postgres.NewRepositories(db)
	return storage{
		accounts:      repos.Accounts,
		refreshTokens: repos.RefreshTokens,
		recovery:      repos.Recovery,
		audit:         repos.Audit,
		outbox:        repos.Outbox,
		ping:          sqlDB.PingContext,
		close:         func() { _ = sqlDB.Close() },
	}, nil
}

// openCache returns the CSRF store and rate limiter: Redis-backed when
// REDIS_URL is set so several API instances share them, in-process otherwise.
func openCache(ctx context.Context, cfg Config, logger *slog.Logger) (ports.CSRFStore, ports.RateLimiter, func(context.Context) error, func(), error) {
	if cfg.RedisURL == "" {
		if cfg.Production() {
			logger.Warn("REDIS_URL not set; CSRF tokens and rate limits are per instance")
		}
		noop := func(context.Context) error { return nil }
		return memory.NewCSRFStore(cfg.CSRFMaxTokens), memory.NewRateLimiter(), noop, func() {}, nil
	}

	client, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return cache.NewRedisCSRFStore(client), cache.NewRedisRateLimiter(client), ping, func() { _ = client.Close() }, nil
}

func ephemeralSecret() string {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		panic(fmt.Sprintf("read random: %v", err))
	}
	return hex.EncodeToString(raw)
}

// RunAPI serves HTTP and gRPC until a signal arrives. With the in-process
// store the background jobs run here too, since no worker can reach it.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		r.cleanupFn(ctx)
		return fmt.Errorf("listen gRPC: %w", err)
	}
	r.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var wg sync.WaitGroup
	if r.cfg.DatabaseURL == MemoryDatabaseURL {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.runJobs(ctx); err != nil {
				r.logger.Error("background jobs stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", lis.Addr().String())
		if err := r.grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", "error", runErr)
		stop()
	}

	r.health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	wg.Wait()
	r.cleanupFn(shutdownCtx)
	return runErr
}

// RunWorker publishes outbox events and sweeps expired tokens until a signal arrives.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if r.cfg.DatabaseURL == MemoryDatabaseURL {
		r.logger.Warn("worker started against the in-process store; it only sees its own empty state")
	}
	err := r.runJobs(ctx)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	return err
}

func (r *Runtime) runJobs(ctx context.Context) error {
	r.logger.Info("background jobs started",
		"outbox_interval", r.cfg.OutboxPollInterval,
		"sweep_interval", r.cfg.SweepInterval,
	)
	errCh := make(chan error, 2)
	go func() { errCh <- r.outbox.Run(ctx) }()
	go func() { errCh <- r.sweeper.Run(ctx) }()

	var errs []error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
