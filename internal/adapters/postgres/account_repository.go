package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/calchub/auth-service/internal/domain"
	"github.com/calchub/auth-service/internal/ports"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type accountRepository struct {
	db *gorm.DB
}

func (r *accountRepository) CreateWithOutboxTx(ctx context.Context, account domain.Account, outboxEvent ports.OutboxEvent) (domain.Account, error) {
	var result domain.Account
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := accountModel{
			FullName:      account.FullName,
			Email:         account.Email,
			Phone:         nullableString(account.Phone),
			PasswordHash:  account.PasswordHash,
			Role:          account.Role,
			IsActive:      account.IsActive,
			EmailVerified: account.EmailVerified,
			CreatedAt:     account.CreatedAt,
			UpdatedAt:     account.CreatedAt,
		}
		if account.AccountID != uuid.Nil {
			rec.AccountID = account.AccountID
		}
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicateEmail
			}
			return err
		}

		payload := outboxEvent.Payload
		if len(payload) == 0 {
			payload = []byte(`{}`)
		}
		var payloadObj map[string]any
		if err := json.Unmarshal(payload, &payloadObj); err == nil {
			payloadObj["account_id"] = rec.AccountID.String()
			if adjusted, mErr := json.Marshal(payloadObj); mErr == nil {
				payload = adjusted
			}
		}

		outboxEvent.Payload = payload
		outboxEvent.PartitionKey = rec.AccountID.String()
		outbox := toOutboxModel(outboxEvent)
		if err := tx.Create(&outbox).Error; err != nil {
			return err
		}

		result = toDomainAccount(rec)
		return nil
	})
	if err != nil {
		return domain.Account{}, err
	}
	return result, nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	var rec accountModel
	if err := r.db.WithContext(ctx).Where("email = ?", email).Take(&rec).Error; err != nil {
		if isNotFound(err) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, err
	}
	return toDomainAccount(rec), nil
}

func (r *accountRepository) GetByID(ctx context.Context, accountID uuid.UUID) (domain.Account, error) {
	var rec accountModel
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Take(&rec).Error; err != nil {
		if isNotFound(err) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, err
	}
	return toDomainAccount(rec), nil
}

const (
	// failedCountExpr restarts the count when the previous lock has elapsed.
	failedCountExpr = "CASE WHEN locked_until IS NOT NULL AND locked_until <= ? THEN 1 ELSE failed_login_count + 1 END"
	lockedUntilExpr = "CASE WHEN (" + failedCountExpr + ") >= ? THEN ?::timestamptz ELSE NULL END"
)

func (r *accountRepository) RecordFailedLogin(ctx context.Context, accountID uuid.UUID, now time.Time, threshold int, lockout time.Duration) (ports.FailedLoginResult, error) {
	var (
		rec     accountModel
		applied bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&accountModel{}).
			Where("account_id = ?", accountID).
			Where("locked_until IS NULL OR locked_until <= ?", now).
			Updates(map[string]any{
				"failed_login_count": gorm.Expr(failedCountExpr, now),
				"locked_until":       gorm.Expr(lockedUntilExpr, now, threshold, now.Add(lockout)),
				"updated_at":         now,
			})
		if res.Error != nil {
			return res.Error
		}
		applied = res.RowsAffected > 0

		if err := tx.Where("account_id = ?", accountID).Take(&rec).Error; err != nil {
			if isNotFound(err) {
				return domain.ErrNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return ports.FailedLoginResult{}, err
	}
	return ports.FailedLoginResult{
		Applied:          applied,
		FailedLoginCount: rec.FailedLoginCount,
		LockedUntil:      rec.LockedUntil,
	}, nil
}

func (r *accountRepository) RecordSuccessfulLogin(ctx context.Context, accountID uuid.UUID, now time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("account_id = ?", accountID).
		Updates(map[string]any{
			"failed_login_count": 0,
			"locked_until":       nil,
			"last_login_at":      now,
			"updated_at":         now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *accountRepository) UpdatePasswordAndRevokeSessions(ctx context.Context, accountID uuid.UUID, passwordHash string, now time.Time) (int64, error) {
	var revoked int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&accountModel{}).
			Where("account_id = ?", accountID).
			Updates(map[string]any{
				"password_hash": passwordHash,
				"updated_at":    now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		del := tx.Where("account_id = ?", accountID).Delete(&refreshTokenModel{})
		if del.Error != nil {
			return del.Error
		}
		revoked = del.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return revoked, nil
}
