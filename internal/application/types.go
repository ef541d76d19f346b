package application

import (
	"time"

	"github.com/calchub/auth-service/internal/domain"
	"github.com/google/uuid"
)

const serviceName = "auth-service"

// RateLimit is a sliding-window allowance of Limit hits per Window.
type RateLimit struct {
	Limit  int
	Window time.Duration
}

func (r RateLimit) enabled() bool {
	return r.Limit > 0 && r.Window > 0
}

type Config struct {
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	RememberMeTTL        time.Duration
	MaxLoginAttempts     int
	LockoutDuration      time.Duration
	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration
	CSRFTokenTTL         time.Duration
	AppBaseURL           string

	RequestRateLimit        RateLimit
	LoginRateLimit          RateLimit
	ForgotPasswordRateLimit RateLimit
	ResendRateLimit         RateLimit
}

func (c Config) withDefaults() Config {
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = 15 * time.Minute
	}
	if c.RefreshTokenTTL <= 0 {
		c.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.RememberMeTTL <= 0 {
		c.RememberMeTTL = 30 * 24 * time.Hour
	}
	if c.MaxLoginAttempts <= 0 {
		c.MaxLoginAttempts = 5
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = 30 * time.Minute
	}
	if c.VerificationTokenTTL <= 0 {
		c.VerificationTokenTTL = 24 * time.Hour
	}
	if c.ResetTokenTTL <= 0 {
		c.ResetTokenTTL = time.Hour
	}
	if c.CSRFTokenTTL <= 0 {
		c.CSRFTokenTTL = time.Hour
	}
	if c.AppBaseURL == "" {
		c.AppBaseURL = "http://localhost:3000"
	}
	if c.ResendRateLimit == (RateLimit{}) {
		c.ResendRateLimit = RateLimit{Limit: 3, Window: time.Hour}
	}
	return c
}

// ClientInfo identifies the caller of a request for audit purposes.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

type RegisterRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// AuthResult is a freshly issued session.
type AuthResult struct {
	Account          domain.Account
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	RememberMe       bool
}

// AccountView is the public projection of an account.
type AccountView struct {
	ID            uuid.UUID  `json:"id"`
	FullName      string     `json:"fullName"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone,omitempty"`
	Role          string     `json:"role"`
	EmailVerified bool       `json:"emailVerified"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func NewAccountView(a domain.Account) AccountView {
	return AccountView{
		ID:            a.AccountID,
		FullName:      a.FullName,
		Email:         a.Email,
		Phone:         a.Phone,
		Role:          a.Role,
		EmailVerified: a.EmailVerified,
		LastLoginAt:   a.LastLoginAt,
		CreatedAt:     a.CreatedAt,
	}
}

type PageQuery struct {
	Page  int
	Limit int
}

func (q PageQuery) normalize() (limit, offset int) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	return q.Limit, (q.Page - 1) * q.Limit
}

type LoginHistoryItem struct {
	ID         uuid.UUID `json:"id"`
	Action     string    `json:"action"`
	Status     string    `json:"status"`
	FailReason string    `json:"failReason,omitempty"`
	IPAddress  string    `json:"ipAddress"`
	Device     string    `json:"device"`
	Browser    string    `json:"browser"`
	OS         string    `json:"os"`
	CreatedAt  time.Time `json:"createdAt"`
}

type SecurityLogItem struct {
	ID        uuid.UUID  `json:"id"`
	AccountID *uuid.UUID `json:"accountId,omitempty"`
	Action    string     `json:"action"`
	Status    string     `json:"status"`
	IPAddress string     `json:"ipAddress"`
	UserAgent string     `json:"userAgent"`
	Details   string     `json:"details,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Page is one slice of a larger result set.
type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

type SecurityLogQuery struct {
	AccountID *uuid.UUID
	Action    string
	Status    string
	Since     *time.Time
	PageQuery
}
