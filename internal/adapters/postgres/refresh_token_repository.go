package postgres

import (
	"context"
	"time"

	"github.com/calchub/auth-service/internal/domain"
	"github.com/calchub/auth-service/internal/ports"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type refreshTokenRepository struct {
	db *gorm.DB
}

func (r *refreshTokenRepository) Create(ctx context.Context, token domain.RefreshToken) error {
	rec := refreshTokenModel{
		TokenHash:  token.TokenHash,
		AccountID:  token.AccountID,
		RememberMe: token.RememberMe,
		IPAddress:  nullableString(token.IPAddress),
		UserAgent:  token.UserAgent,
		CreatedAt:  token.CreatedAt,
		ExpiresAt:  token.ExpiresAt,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

func (r *refreshTokenRepository) Rotate(ctx context.Context, params ports.RotateParams) (domain.RefreshToken, error) {
	var (
		next    refreshTokenModel
		expired bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old refreshTokenModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("token_hash = ?", params.OldHash).
			Take(&old).Error; err != nil {
			if isNotFound(err) {
				return domain.ErrNotFound
			}
			return err
		}
		if err := tx.Where("token_hash = ?", old.TokenHash).Delete(&refreshTokenModel{}).Error; err != nil {
			return err
		}
		// The expired row is removed and the transaction still commits.
		if !old.ExpiresAt.After(params.Now) {
			expired = true
			return nil
		}

		ttl := params.SessionTTL
		if old.RememberMe {
			ttl = params.RememberTTL
		}
		next = refreshTokenModel{
			TokenHash:  params.NewHash,
			AccountID:  old.AccountID,
			RememberMe: old.RememberMe,
			IPAddress:  nullableString(params.IPAddress),
			UserAgent:  params.UserAgent,
			CreatedAt:  params.Now,
			ExpiresAt:  params.Now.Add(ttl),
		}
		return tx.Create(&next).Error
	})
	if err != nil {
		return domain.RefreshToken{}, err
	}
	if expired {
		return domain.RefreshToken{}, domain.ErrTokenExpired
	}
	return toDomainRefreshToken(next), nil
}

func (r *refreshTokenRepository) Revoke(ctx context.Context, tokenHash string) error {
	return r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Delete(&refreshTokenModel{}).Error
}

func (r *refreshTokenRepository) RevokeAllByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&refreshTokenModel{})
	return res.RowsAffected, res.Error
}

func (r *refreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&refreshTokenModel{})
	return res.RowsAffected, res.Error
}
