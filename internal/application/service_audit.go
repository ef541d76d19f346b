package application

import (
	"context"
	"strings"

	"github.com/calchub/auth-service/internal/domain"
	"github.com/calchub/auth-service/internal/ports"
	"github.com/google/uuid"
)

// AuditEntry is one security-relevant event awaiting persistence.
type AuditEntry struct {
	AccountID *uuid.UUID
	Action    domain.AuditAction
	Status    domain.AuditStatus
	Details   string
	Client    ClientInfo
}

// Record appends a security log entry and, for login-type actions on a known
// account, a login-history row. Storage errors are logged and swallowed.
func (s *Service) Record(ctx context.Context, entry AuditEntry) {
	if s.audit == nil {
		return
	}
	now := s.now()
	if err := s.audit.InsertSecurityLog(ctx, domain.SecurityLogEntry{
		ID:        uuid.New(),
		AccountID: entry.AccountID,
		Action:    entry.Action,
		IPAddress: entry.Client.IPAddress,
		UserAgent: entry.Client.UserAgent,
		Status:    entry.Status,
		Details:   entry.Details,
		CreatedAt: now,
	}); err != nil {
		s.logAuditFailure(ctx, "insert_security_log", entry, err)
	}

	if entry.AccountID == nil || !entry.Action.ProducesLoginHistory() {
		return
	}
	info := domain.ParseUserAgent(entry.Client.UserAgent)
	row := domain.LoginHistoryEntry{
		ID:        uuid.New(),
		AccountID: *entry.AccountID,
		Action:    entry.Action,
		IPAddress: entry.Client.IPAddress,
		UserAgent: entry.Client.UserAgent,
		Device:    info.Device,
		Browser:   info.Browser,
		OS:        info.OS,
		Status:    entry.Status,
		CreatedAt: now,
	}
	if entry.Status != domain.StatusSuccess {
		row.FailReason = entry.Details
	}
	if err := s.audit.InsertLoginHistory(ctx, row); err != nil {
		s.logAuditFailure(ctx, "insert_login_history", entry, err)
	}
}

func (s *Service) logAuditFailure(ctx context.Context, operation string, entry AuditEntry, err error) {
	s.logger.WarnContext(ctx, "failed to persist audit entry",
		"operation", operation,
		"outcome", "failure",
		"action", string(entry.Action),
		"audit_status", string(entry.Status),
		"error", err,
	)
}

func (s *Service) ListLoginHistory(ctx context.Context, accountID uuid.UUID, q PageQuery) (Page[LoginHistoryItem], error) {
	limit, offset := q.normalize()
	rows, total, err := s.audit.ListLoginHistory(ctx, accountID, limit, offset)
	if err != nil {
		return Page[LoginHistoryItem]{}, err
	}
	items := make([]LoginHistoryItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, LoginHistoryItem{
			ID:         r.ID,
			Action:     string(r.Action),
			Status:     string(r.Status),
			FailReason: r.FailReason,
			IPAddress:  r.IPAddress,
			Device:     r.Device,
			Browser:    r.Browser,
			OS:         r.OS,
			CreatedAt:  r.CreatedAt,
		})
	}
	return Page[LoginHistoryItem]{Items: items, Total: total, Page: offset/limit + 1, Limit: limit}, nil
}

// ListSecurityLogs serves the admin audit trail. Action and status filters
// are matched case-insensitively against the stored upper-case values.
func (s *Service) ListSecurityLogs(ctx context.Context, q SecurityLogQuery) (Page[SecurityLogItem], error) {
	limit, offset := q.PageQuery.normalize()
	rows, total, err := s.audit.ListSecurityLogs(ctx, ports.SecurityLogFilter{
		AccountID: q.AccountID,
		Action:    strings.ToUpper(strings.TrimSpace(q.Action)),
		Status:    strings.ToUpper(strings.TrimSpace(q.Status)),
		Since:     q.Since,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return Page[SecurityLogItem]{}, err
	}
	items := make([]SecurityLogItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, SecurityLogItem{
			ID:        r.ID,
			AccountID: r.AccountID,
			Action:    string(r.Action),
			Status:    string(r.Status),
			IPAddress: r.IPAddress,
			UserAgent: r.UserAgent,
			Details:   r.Details,
			CreatedAt: r.CreatedAt,
		})
	}
	return Page[SecurityLogItem]{Items: items, Total: total, Page: offset/limit + 1, Limit: limit}, nil
}
