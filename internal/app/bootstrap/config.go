package bootstrap

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/calchub/auth-service/internal/adapters/security"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const (
	envProduction = "production"
	// MemoryDatabaseURL selects the in-process store instead of Postgres.
	MemoryDatabaseURL = "memory"
	minSecretLength   = 32
)

// RateLimitConfig is one sliding-window allowance.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

// Config is the resolved runtime configuration.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID  string
	Env        string
	LogLevel   string
	AppBaseURL string

	HTTPPort int
	GRPCPort int
	// TrustedProxies are the peers allowed to set X-Forwarded-For / X-Real-IP.
	TrustedProxies []netip.Prefix

	DatabaseURL string
	MaxDBConns  int32
	RedisURL    string

	JWTAccessSecret  string
	JWTRefreshSecret string

	BcryptCost           int
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	RememberMeTTL        time.Duration
	MaxLoginAttempts     int
	LockoutDuration      time.Duration
	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration

	CSRFEnabled   bool
	CSRFTokenTTL  time.Duration
	CSRFMaxTokens int

	RequestRateLimit        RateLimitConfig
	LoginRateLimit          RateLimitConfig
	ForgotPasswordRateLimit RateLimitConfig
	ResendRateLimit         RateLimitConfig

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	KafkaBrokers     []string
	KafkaTopicPrefix string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int
	SweepInterval      time.Duration
}

// Production reports whether the service runs with production hardening.
func (c Config) Production() bool {
	return c.Env == envProduction
}

type rateLimitFile struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"`
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// Secrets are only read from the environment.
type configFile struct {
	Service struct {
		ID         string `yaml:"id"`
		Env        string `yaml:"env"`
		LogLevel   string `yaml:"log_level"`
		HTTPPort   int    `yaml:"http_port"`
		GRPCPort   int    `yaml:"grpc_port"`
		AppBaseURL string `yaml:"app_base_url"`
		// TrustedProxies holds CIDRs or bare addresses.
		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL      string   `yaml:"postgres_url"`
		MaxDBConns       int32    `yaml:"max_db_conns"`
		RedisURL         string   `yaml:"redis_url"`
		KafkaBrokers     []string `yaml:"kafka_brokers"`
		KafkaTopicPrefix string   `yaml:"kafka_topic_prefix"`
	} `yaml:"dependencies"`
	Auth struct {
		BcryptRounds            int    `yaml:"bcrypt_rounds"`
		AccessTokenExpiry       string `yaml:"access_token_expiry"`
		RefreshTokenExpiry      string `yaml:"refresh_token_expiry"`
		RememberMeExpiry        string `yaml:"remember_me_expiry"`
		MaxLoginAttempts        int    `yaml:"max_login_attempts"`
		LockoutDuration         string `yaml:"lockout_duration"`
		VerificationTokenExpiry string `yaml:"verification_token_expiry"`
		ResetTokenExpiry        string `yaml:"reset_token_expiry"`
	} `yaml:"auth"`
	CSRF struct {
		Enabled   *bool  `yaml:"enabled"`
		TokenTTL  string `yaml:"token_ttl"`
		MaxTokens int    `yaml:"max_tokens"`
	} `yaml:"csrf"`
	RateLimits struct {
		Requests           rateLimitFile `yaml:"requests"`
		Login              rateLimitFile `yaml:"login"`
		ForgotPassword     rateLimitFile `yaml:"forgot_password"`
		ResendVerification rateLimitFile `yaml:"resend_verification"`
	} `yaml:"rate_limits"`
	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`
	Worker struct {
		OutboxPollInterval string `yaml:"outbox_poll_interval"`
		OutboxBatchSize    int    `yaml:"outbox_batch_size"`
		OutboxClaimTTL     string `yaml:"outbox_claim_ttl"`
		OutboxMaxRetries   int    `yaml:"outbox_max_retries"`
		SweepInterval      string `yaml:"sweep_interval"`
	} `yaml:"worker"`
}

func defaultConfig() Config {
	return Config{
		ServiceID:               "auth-service",
		Env:                     "development",
		LogLevel:                "info",
		AppBaseURL:              "http://localhost:3000",
		HTTPPort:                8080,
		GRPCPort:                9090,
		MaxDBConns:              20,
		BcryptCost:              12,
		AccessTokenTTL:          15 * time.Minute,
		RefreshTokenTTL:         7 * 24 * time.Hour,
		RememberMeTTL:           30 * 24 * time.Hour,
		MaxLoginAttempts:        5,
		LockoutDuration:         30 * time.Minute,
		VerificationTokenTTL:    24 * time.Hour,
		ResetTokenTTL:           time.Hour,
		CSRFEnabled:             true,
		CSRFTokenTTL:            time.Hour,
		CSRFMaxTokens:           10000,
		RequestRateLimit:        RateLimitConfig{Limit: 100, Window: time.Minute},
		LoginRateLimit:          RateLimitConfig{Limit: 10, Window: 15 * time.Minute},
		ForgotPasswordRateLimit: RateLimitConfig{Limit: 3, Window: time.Hour},
		ResendRateLimit:         RateLimitConfig{Limit: 3, Window: time.Hour},
		SMTPPort:                587,
		KafkaTopicPrefix:        "calchub.auth",
		OutboxPollInterval:      2 * time.Second,
		OutboxBatchSize:         100,
		OutboxClaimTTL:          30 * time.Second,
		OutboxMaxRetries:        5,
		SweepInterval:           time.Hour,
	}
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// A missing file is not an error; a malformed one is.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	var errs []error

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		errs = append(errs, applyFile(&cfg, f)...)
	case !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	errs = append(errs, applyEnv(&cfg)...)
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, f configFile) []error {
	var errs []error
	setString(&cfg.ServiceID, f.Service.ID)
	setString(&cfg.Env, strings.ToLower(strings.TrimSpace(f.Service.Env)))
	setString(&cfg.LogLevel, f.Service.LogLevel)
	setString(&cfg.AppBaseURL, f.Service.AppBaseURL)
	setInt(&cfg.HTTPPort, f.Service.HTTPPort)
	setInt(&cfg.GRPCPort, f.Service.GRPCPort)
	if len(f.Service.TrustedProxies) > 0 {
		prefixes, err := ParseTrustedProxies(f.Service.TrustedProxies)
		if err != nil {
			errs = append(errs, fmt.Errorf("service.trusted_proxies: %w", err))
		} else {
			cfg.TrustedProxies = prefixes
		}
	}

	setString(&cfg.DatabaseURL, f.Dependencies.PostgresURL)
	if f.Dependencies.MaxDBConns > 0 {
		cfg.MaxDBConns = f.Dependencies.MaxDBConns
	}
	setString(&cfg.RedisURL, f.Dependencies.RedisURL)
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
	}
	setString(&cfg.KafkaTopicPrefix, f.Dependencies.KafkaTopicPrefix)

	setInt(&cfg.BcryptCost, f.Auth.BcryptRounds)
	setInt(&cfg.MaxLoginAttempts, f.Auth.MaxLoginAttempts)
	errs = appendErr(errs, setDuration(&cfg.AccessTokenTTL, "auth.access_token_expiry", f.Auth.AccessTokenExpiry))
	errs = appendErr(errs, setDuration(&cfg.RefreshTokenTTL, "auth.refresh_token_expiry", f.Auth.RefreshTokenExpiry))
	errs = appendErr(errs, setDuration(&cfg.RememberMeTTL, "auth.remember_me_expiry", f.Auth.RememberMeExpiry))
	errs = appendErr(errs, setDuration(&cfg.LockoutDuration, "auth.lockout_duration", f.Auth.LockoutDuration))
	errs = appendErr(errs, setDuration(&cfg.VerificationTokenTTL, "auth.verification_token_expiry", f.Auth.VerificationTokenExpiry))
	errs = appendErr(errs, setDuration(&cfg.ResetTokenTTL, "auth.reset_token_expiry", f.Auth.ResetTokenExpiry))

	if f.CSRF.Enabled != nil {
		cfg.CSRFEnabled = *f.CSRF.Enabled
	}
	errs = appendErr(errs, setDuration(&cfg.CSRFTokenTTL, "csrf.token_ttl", f.CSRF.TokenTTL))
	setInt(&cfg.CSRFMaxTokens, f.CSRF.MaxTokens)

	errs = appendErr(errs, setRateLimit(&cfg.RequestRateLimit, "rate_limits.requests", f.RateLimits.Requests))
	errs = appendErr(errs, setRateLimit(&cfg.LoginRateLimit, "rate_limits.login", f.RateLimits.Login))
	errs = appendErr(errs, setRateLimit(&cfg.ForgotPasswordRateLimit, "rate_limits.forgot_password", f.RateLimits.ForgotPassword))
	errs = appendErr(errs, setRateLimit(&cfg.ResendRateLimit, "rate_limits.resend_verification", f.RateLimits.ResendVerification))

	setString(&cfg.SMTPHost, f.SMTP.Host)
	setInt(&cfg.SMTPPort, f.SMTP.Port)
	setString(&cfg.SMTPUsername, f.SMTP.Username)
	setString(&cfg.SMTPFrom, f.SMTP.From)

	errs = appendErr(errs, setDuration(&cfg.OutboxPollInterval, "worker.outbox_poll_interval", f.Worker.OutboxPollInterval))
	setInt(&cfg.OutboxBatchSize, f.Worker.OutboxBatchSize)
	errs = appendErr(errs, setDuration(&cfg.OutboxClaimTTL, "worker.outbox_claim_ttl", f.Worker.OutboxClaimTTL))
	setInt(&cfg.OutboxMaxRetries, f.Worker.OutboxMaxRetries)
	errs = appendErr(errs, setDuration(&cfg.SweepInterval, "worker.sweep_interval", f.Worker.SweepInterval))
	return errs
}

func applyEnv(cfg *Config) []error {
	var errs []error
	cfg.Env = strings.ToLower(strings.TrimSpace(envOrDefault("APP_ENV", cfg.Env)))
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.AppBaseURL = envOrDefault("APP_BASE_URL", cfg.AppBaseURL)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	if proxies := envCSV("TRUSTED_PROXIES", nil); proxies != nil {
		prefixes, err := ParseTrustedProxies(proxies)
		if err != nil {
			errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
		} else {
			cfg.TrustedProxies = prefixes
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopicPrefix = envOrDefault("KAFKA_TOPIC_PREFIX", cfg.KafkaTopicPrefix)

	cfg.JWTAccessSecret = envOrDefault("JWT_ACCESS_SECRET", cfg.JWTAccessSecret)
	cfg.JWTRefreshSecret = envOrDefault("JWT_REFRESH_SECRET", cfg.JWTRefreshSecret)
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)
	cfg.MaxLoginAttempts = envInt("MAX_LOGIN_ATTEMPTS", cfg.MaxLoginAttempts)
	errs = appendErr(errs, envDuration(&cfg.AccessTokenTTL, "JWT_ACCESS_EXPIRY"))
	errs = appendErr(errs, envDuration(&cfg.RefreshTokenTTL, "JWT_REFRESH_EXPIRY"))
	errs = appendErr(errs, envDuration(&cfg.RememberMeTTL, "JWT_REFRESH_REMEMBER_EXPIRY"))
	errs = appendErr(errs, envDuration(&cfg.LockoutDuration, "LOCKOUT_DURATION"))
	errs = appendErr(errs, envDuration(&cfg.VerificationTokenTTL, "EMAIL_VERIFICATION_EXPIRY"))
	errs = appendErr(errs, envDuration(&cfg.ResetTokenTTL, "PASSWORD_RESET_EXPIRY"))

	cfg.CSRFEnabled = envBool("CSRF_ENABLED", cfg.CSRFEnabled)
	errs = appendErr(errs, envDuration(&cfg.CSRFTokenTTL, "CSRF_TOKEN_TTL"))
	cfg.CSRFMaxTokens = envInt("CSRF_MAX_TOKENS", cfg.CSRFMaxTokens)

	cfg.RequestRateLimit.Limit = envInt("RATE_LIMIT_REQUESTS", cfg.RequestRateLimit.Limit)
	errs = appendErr(errs, envDuration(&cfg.RequestRateLimit.Window, "RATE_LIMIT_WINDOW"))
	cfg.LoginRateLimit.Limit = envInt("LOGIN_RATE_LIMIT", cfg.LoginRateLimit.Limit)
	errs = appendErr(errs, envDuration(&cfg.LoginRateLimit.Window, "LOGIN_RATE_WINDOW"))
	cfg.ForgotPasswordRateLimit.Limit = envInt("FORGOT_PASSWORD_RATE_LIMIT", cfg.ForgotPasswordRateLimit.Limit)
	errs = appendErr(errs, envDuration(&cfg.ForgotPasswordRateLimit.Window, "FORGOT_PASSWORD_RATE_WINDOW"))
	cfg.ResendRateLimit.Limit = envInt("RESEND_VERIFICATION_RATE_LIMIT", cfg.ResendRateLimit.Limit)
	errs = appendErr(errs, envDuration(&cfg.ResendRateLimit.Window, "RESEND_VERIFICATION_RATE_WINDOW"))

	cfg.SMTPHost = envOrDefault("SMTP_HOST", cfg.SMTPHost)
	cfg.SMTPPort = envInt("SMTP_PORT", cfg.SMTPPort)
	cfg.SMTPUsername = envOrDefault("SMTP_USERNAME", cfg.SMTPUsername)
	cfg.SMTPPassword = envOrDefault("SMTP_PASSWORD", cfg.SMTPPassword)
	cfg.SMTPFrom = envOrDefault("SMTP_FROM", cfg.SMTPFrom)

	errs = appendErr(errs, envDuration(&cfg.OutboxPollInterval, "OUTBOX_POLL_INTERVAL"))
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	errs = appendErr(errs, envDuration(&cfg.OutboxClaimTTL, "OUTBOX_CLAIM_TTL"))
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)
	errs = appendErr(errs, envDuration(&cfg.SweepInterval, "TOKEN_SWEEP_INTERVAL"))
	return errs
}

func (c Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("missing DB_URL/POSTGRES_URL (use %q for the in-process store)", MemoryDatabaseURL))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_ROUNDS must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.MaxLoginAttempts < 1 {
		errs = append(errs, errors.New("MAX_LOGIN_ATTEMPTS must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"JWT_ACCESS_EXPIRY":           c.AccessTokenTTL,
		"JWT_REFRESH_EXPIRY":          c.RefreshTokenTTL,
		"JWT_REFRESH_REMEMBER_EXPIRY": c.RememberMeTTL,
		"LOCKOUT_DURATION":            c.LockoutDuration,
		"EMAIL_VERIFICATION_EXPIRY":   c.VerificationTokenTTL,
		"PASSWORD_RESET_EXPIRY":       c.ResetTokenTTL,
		"CSRF_TOKEN_TTL":              c.CSRFTokenTTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Production() {
		if c.DatabaseURL == MemoryDatabaseURL {
			errs = append(errs, errors.New("the in-process store is not allowed in production"))
		}
		if c.BcryptCost < security.MinBcryptCost {
			errs = append(errs, fmt.Errorf("BCRYPT_ROUNDS must be at least %d in production", security.MinBcryptCost))
		}
		if len(c.JWTAccessSecret) < minSecretLength || len(c.JWTRefreshSecret) < minSecretLength {
			errs = append(errs, fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must be set to at least %d characters in production", minSecretLength))
		} else if c.JWTAccessSecret == c.JWTRefreshSecret {
			errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
		}
	}
	return errors.Join(errs...)
}

// ParseTrustedProxies parses CIDRs; a bare address is taken as a single host.
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(values))
	for _, raw := range values {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid proxy range %q", raw)
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy address %q", raw)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// ParseDuration accepts Go durations plus a whole or fractional day suffix,
// e.g. "15m", "7d", "1.5d".
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.ParseFloat(days, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return time.Duration(n * float64(24*time.Hour)), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return d, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	d, err := ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

func setRateLimit(dst *RateLimitConfig, field string, f rateLimitFile) error {
	setInt(&dst.Limit, f.Limit)
	return setDuration(&dst.Window, field+".window", f.Window)
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		return append(errs, err)
	}
	return errs
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envDuration overwrites dst when name is set. Unlike the other env helpers
// an unparseable value is an error: expiry settings must not silently fall back.
func envDuration(dst *time.Duration, name string) error {
	return setDuration(dst, name, os.Getenv(name))
}

func envBool(name string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
