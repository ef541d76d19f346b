package postgres

import (
	"context"

	"github.com/calchub/auth-service/internal/domain"
	"github.com/calchub/auth-service/internal/ports"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type auditRepository struct {
	db *gorm.DB
}

func (r *auditRepository) InsertSecurityLog(ctx context.Context, entry domain.SecurityLogEntry) error {
	rec := securityLogModel{
		AccountID: entry.AccountID,
		Action:    string(entry.Action),
		IPAddress: nullableString(entry.IPAddress),
		UserAgent: entry.UserAgent,
		Status:    string(entry.Status),
		Details:   entry.Details,
		CreatedAt: entry.CreatedAt,
	}
	if entry.ID != uuid.Nil {
		rec.LogID = entry.ID
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

func (r *auditRepository) InsertLoginHistory(ctx context.Context, entry domain.LoginHistoryEntry) error {
	rec := loginHistoryModel{
		AccountID:  entry.AccountID,
		Action:     string(entry.Action),
		IPAddress:  nullableString(entry.IPAddress),
		UserAgent:  entry.UserAgent,
		Device:     entry.Device,
		Browser:    entry.Browser,
		OS:         entry.OS,
		Status:     string(entry.Status),
		FailReason: entry.FailReason,
		CreatedAt:  entry.CreatedAt,
	}
	if entry.ID != uuid.Nil {
		rec.EntryID = entry.ID
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

func (r *auditRepository) ListLoginHistory(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LoginHistoryEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&loginHistoryModel{}).Where("account_id = ?", accountID)

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []loginHistoryModel
	if err := paginate(query, limit, offset).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.LoginHistoryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainLoginHistory(row))
	}
	return out, total, nil
}

func (r *auditRepository) ListSecurityLogs(ctx context.Context, filter ports.SecurityLogFilter) ([]domain.SecurityLogEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&securityLogModel{})
	if filter.AccountID != nil {
		query = query.Where("account_id = ?", *filter.AccountID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Since != nil {
		query = query.Where("created_at >= ?", *filter.Since)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []securityLogModel
	if err := paginate(query, filter.Limit, filter.Offset).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.SecurityLogEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainSecurityLog(row))
	}
	return out, total, nil
}

func paginate(query *gorm.DB, limit, offset int) *gorm.DB {
	q := query
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return q
}
