package ports

import (
	"context"
	"time"

	"github.com/calchub/auth-service/internal/domain"
	"github.com/google/uuid"
)

// FailedLoginResult is the account state after an atomic failure increment.
// Applied is false when the account was already locked and nothing changed.
type FailedLoginResult struct {
	Applied          bool
	FailedLoginCount int
	LockedUntil      *time.Time
}

// AccountRepository persists the account aggregate.
// RecordFailedLogin is a single conditional update: an elapsed lock restarts the
// count at one, an active lock leaves the row untouched, and reaching threshold
// sets locked_until. Concurrent failures therefore cannot under-count.
type AccountRepository interface {
	CreateWithOutboxTx(ctx context.Context, account domain.Account, event OutboxEvent) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	GetByID(ctx context.Context, accountID uuid.UUID) (domain.Account, error)
	RecordFailedLogin(ctx context.Context, accountID uuid.UUID, now time.Time, threshold int, lockout time.Duration) (FailedLoginResult, error)
	RecordSuccessfulLogin(ctx context.Context, accountID uuid.UUID, now time.Time) error
	// UpdatePasswordAndRevokeSessions swaps the hash and deletes every refresh token in one transaction.
	UpdatePasswordAndRevokeSessions(ctx context.Context, accountID uuid.UUID, passwordHash string, now time.Time) (int64, error)
}

// RotateParams describes a refresh-token rotation.
type RotateParams struct {
	OldHash     string
	NewHash     string
	SessionTTL  time.Duration
	RememberTTL time.Duration
	IPAddress   string
	UserAgent   string
	Now         time.Time
}

// RefreshTokenRepository stores session refresh tokens by digest.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token domain.RefreshToken) error
	// Rotate deletes the old token and inserts its replacement under a row lock.
	// It returns domain.ErrNotFound for unknown tokens and domain.ErrTokenExpired
	// (after deleting the row) for expired ones.
	Rotate(ctx context.Context, params RotateParams) (domain.RefreshToken, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAllByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RecoveryRepository owns email-verification and password-reset tokens.
// Issue methods replace prior tokens and consume methods are single-use.
type RecoveryRepository interface {
	ReplaceEmailVerificationToken(ctx context.Context, token domain.EphemeralToken) error
	ConsumeEmailVerificationToken(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error)
	ReplacePasswordResetToken(ctx context.Context, token domain.EphemeralToken) error
	// ResetPasswordWithToken consumes the reset token, updates the password,
	// clears lockout state and revokes every refresh token in one transaction.
	ResetPasswordWithToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (uuid.UUID, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// SecurityLogFilter narrows admin audit queries.
type SecurityLogFilter struct {
	AccountID *uuid.UUID
	Action    string
	Status    string
	Since     *time.Time
	Limit     int
	Offset    int
}

// AuditRepository is append-only apart from the read models.
type AuditRepository interface {
	InsertSecurityLog(ctx context.Context, entry domain.SecurityLogEntry) error
	InsertLoginHistory(ctx context.Context, entry domain.LoginHistoryEntry) error
	ListLoginHistory(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LoginHistoryEntry, int64, error)
	ListSecurityLogs(ctx context.Context, filter SecurityLogFilter) ([]domain.SecurityLogEntry, int64, error)
}

// OutboxEvent is the write-side event payload prior to storage.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry/error metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	FirstSeenAt    time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// OutboxRepository controls the publish-retry workflow for account events.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}
