package postgres

import (
	"github.com/calchub/auth-service/internal/ports"
	"gorm.io/gorm"
)

// Repositories groups the Postgres-backed port implementations.
type Repositories struct {
	Accounts      ports.AccountRepository
	RefreshTokens ports.RefreshTokenRepository
	Recovery      ports.RecoveryRepository
	Audit         ports.AuditRepository
	Outbox        ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Accounts:      &accountRepository{db: db},
		RefreshTokens: &refreshTokenRepository{db: db},
		Recovery:      &recoveryRepository{db: db},
		Audit:         &auditRepository{db: db},
		Outbox:        &outboxRepository{db: db},
	}
}
