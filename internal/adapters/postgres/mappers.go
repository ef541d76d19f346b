package postgres

import (
	"errors"
	"strings"

	"github.com/calchub/auth-service/internal/domain"
	"gorm.io/gorm"
)

func toDomainAccount(row accountModel) domain.Account {
	return domain.Account{
		AccountID:        row.AccountID,
		FullName:         row.FullName,
		Email:            row.Email,
		Phone:            derefString(row.Phone),
		PasswordHash:     row.PasswordHash,
		Role:             row.Role,
		IsActive:         row.IsActive,
		EmailVerified:    row.EmailVerified,
		FailedLoginCount: row.FailedLoginCount,
		LockedUntil:      row.LockedUntil,
		LastLoginAt:      row.LastLoginAt,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

func toDomainRefreshToken(row refreshTokenModel) domain.RefreshToken {
	return domain.RefreshToken{
		TokenHash:  row.TokenHash,
		AccountID:  row.AccountID,
		RememberMe: row.RememberMe,
		IPAddress:  derefString(row.IPAddress),
		UserAgent:  row.UserAgent,
		CreatedAt:  row.CreatedAt,
		ExpiresAt:  row.ExpiresAt,
	}
}

func toDomainSecurityLog(row securityLogModel) domain.SecurityLogEntry {
	return domain.SecurityLogEntry{
		ID:        row.LogID,
		AccountID: row.AccountID,
		Action:    domain.AuditAction(row.Action),
		IPAddress: derefString(row.IPAddress),
		UserAgent: row.UserAgent,
		Status:    domain.AuditStatus(row.Status),
		Details:   row.Details,
		CreatedAt: row.CreatedAt,
	}
}

func toDomainLoginHistory(row loginHistoryModel) domain.LoginHistoryEntry {
	return domain.LoginHistoryEntry{
		ID:         row.EntryID,
		AccountID:  row.AccountID,
		Action:     domain.AuditAction(row.Action),
		IPAddress:  derefString(row.IPAddress),
		UserAgent:  row.UserAgent,
		Device:     row.Device,
		Browser:    row.Browser,
		OS:         row.OS,
		Status:     domain.AuditStatus(row.Status),
		FailReason: row.FailReason,
		CreatedAt:  row.CreatedAt,
	}
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
