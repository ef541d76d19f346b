package postgres

import (
	"time"

	"github.com/google/uuid"
)

type accountModel struct {
	AccountID        uuid.UUID  `gorm:"column:account_id;type:uuid;default:gen_random_uuid();primaryKey"`
	FullName         string     `gorm:"column:full_name"`
	Email            string     `gorm:"column:email"`
	Phone            *string    `gorm:"column:phone"`
	PasswordHash     string     `gorm:"column:password_hash"`
	Role             string     `gorm:"column:role"`
	IsActive         bool       `gorm:"column:is_active"`
	EmailVerified    bool       `gorm:"column:email_verified"`
	FailedLoginCount int        `gorm:"column:failed_login_count"`
	LockedUntil      *time.Time `gorm:"column:locked_until"`
	LastLoginAt      *time.Time `gorm:"column:last_login_at"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at"`
}

func (accountModel) TableName() string { return "accounts" }

type refreshTokenModel struct {
	TokenHash  string    `gorm:"column:token_hash;primaryKey"`
	AccountID  uuid.UUID `gorm:"column:account_id"`
	RememberMe bool      `gorm:"column:remember_me"`
	IPAddress  *string   `gorm:"column:ip_address"`
	UserAgent  string    `gorm:"column:user_agent"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	ExpiresAt  time.Time `gorm:"column:expires_at"`
}

func (refreshTokenModel) TableName() string { return "refresh_tokens" }

type emailVerificationTokenModel struct {
	TokenHash string    `gorm:"column:token_hash;primaryKey"`
	AccountID uuid.UUID `gorm:"column:account_id"`
	CreatedAt time.Time `gorm:"column:created_at"`
	ExpiresAt time.Time `gorm:"column:expires_at"`
}

func (emailVerificationTokenModel) TableName() string { return "email_verification_tokens" }

type passwordResetTokenModel struct {
	TokenHash string     `gorm:"column:token_hash;primaryKey"`
	AccountID uuid.UUID  `gorm:"column:account_id"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	ExpiresAt time.Time  `gorm:"column:expires_at"`
	UsedAt    *time.Time `gorm:"column:used_at"`
}

func (passwordResetTokenModel) TableName() string { return "password_reset_tokens" }

type securityLogModel struct {
	LogID     uuid.UUID  `gorm:"column:log_id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID *uuid.UUID `gorm:"column:account_id"`
	Action    string     `gorm:"column:action"`
	IPAddress *string    `gorm:"column:ip_address"`
	UserAgent string     `gorm:"column:user_agent"`
	Status    string     `gorm:"column:status"`
	Details   string     `gorm:"column:details"`
	CreatedAt time.Time  `gorm:"column:created_at"`
}

func (securityLogModel) TableName() string { return "security_logs" }

type loginHistoryModel struct {
	EntryID    uuid.UUID `gorm:"column:entry_id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID  uuid.UUID `gorm:"column:account_id"`
	Action     string    `gorm:"column:action"`
	IPAddress  *string   `gorm:"column:ip_address"`
	UserAgent  string    `gorm:"column:user_agent"`
	Device     string    `gorm:"column:device"`
	Browser    string    `gorm:"column:browser"`
	OS         string    `gorm:"column:os"`
	Status     string    `gorm:"column:status"`
	FailReason string    `gorm:"column:fail_reason"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (loginHistoryModel) TableName() string { return "login_history" }

type authOutboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	FirstSeenAt    time.Time  `gorm:"column:first_seen_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (authOutboxModel) TableName() string { return "auth_outbox" }
