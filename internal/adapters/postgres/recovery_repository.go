package postgres

import (
	"context"
	"time"

	"github.com/calchub/auth-service/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type recoveryRepository struct {
	db *gorm.DB
}

func (r *recoveryRepository) ReplaceEmailVerificationToken(ctx context.Context, token domain.EphemeralToken) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", token.AccountID).Delete(&emailVerificationTokenModel{}).Error; err != nil {
			return err
		}
		return tx.Create(&emailVerificationTokenModel{
			TokenHash: token.TokenHash,
			AccountID: token.AccountID,
			CreatedAt: token.CreatedAt,
			ExpiresAt: token.ExpiresAt,
		}).Error
	})
}

func (r *recoveryRepository) ConsumeEmailVerificationToken(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	var (
		accountID uuid.UUID
		expired   bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec emailVerificationTokenModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("token_hash = ?", tokenHash).
			Take(&rec).Error; err != nil {
			if isNotFound(err) {
				return domain.ErrNotFound
			}
			return err
		}
		if err := tx.Where("token_hash = ?", tokenHash).Delete(&emailVerificationTokenModel{}).Error; err != nil {
			return err
		}
		if !rec.ExpiresAt.After(now) {
			expired = true
			return nil
		}

		res := tx.Model(&accountModel{}).
			Where("account_id = ?", rec.AccountID).
			Updates(map[string]any{"email_verified": true, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		accountID = rec.AccountID
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	if expired {
		return uuid.Nil, domain.ErrTokenExpired
	}
	return accountID, nil
}

func (r *recoveryRepository) ReplacePasswordResetToken(ctx context.Context, token domain.EphemeralToken) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ? AND used_at IS NULL", token.AccountID).
			Delete(&passwordResetTokenModel{}).Error; err != nil {
			return err
		}
		return tx.Create(&passwordResetTokenModel{
			TokenHash: token.TokenHash,
			AccountID: token.AccountID,
			CreatedAt: token.CreatedAt,
			ExpiresAt: token.ExpiresAt,
		}).Error
	})
}

func (r *recoveryRepository) ResetPasswordWithToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (uuid.UUID, error) {
	var (
		accountID uuid.UUID
		expired   bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec passwordResetTokenModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("token_hash = ? AND used_at IS NULL", tokenHash).
			Take(&rec).Error; err != nil {
			if isNotFound(err) {
				return domain.ErrNotFound
			}
			return err
		}
		if !rec.ExpiresAt.After(now) {
			expired = true
			return tx.Where("token_hash = ?", tokenHash).Delete(&passwordResetTokenModel{}).Error
		}

		if err := tx.Model(&passwordResetTokenModel{}).
			Where("token_hash = ?", tokenHash).
			Update("used_at", now).Error; err != nil {
			return err
		}
		res := tx.Model(&accountModel{}).
			Where("account_id = ?", rec.AccountID).
			Updates(map[string]any{
				"password_hash":      passwordHash,
				"failed_login_count": 0,
				"locked_until":       nil,
				"updated_at":         now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		if err := tx.Where("account_id = ?", rec.AccountID).Delete(&refreshTokenModel{}).Error; err != nil {
			return err
		}
		accountID = rec.AccountID
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	if expired {
		return uuid.Nil, domain.ErrTokenExpired
	}
	return accountID, nil
}

// PurgeExpired drops lapsed verification tokens plus spent or lapsed reset tokens.
func (r *recoveryRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("expires_at <= ?", now).Delete(&emailVerificationTokenModel{})
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected
		res = tx.Where("used_at IS NOT NULL OR expires_at <= ?", now).Delete(&passwordResetTokenModel{})
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected
		return nil
	})
	return total, err
}
