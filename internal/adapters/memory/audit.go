package memory

import (
	"context"
	"sort"

	"github.com/calchub/auth-service/internal/domain"
	"github.com/calchub/auth-service/internal/ports"
	"github.com/google/uuid"
)

func (s *Store) InsertSecurityLog(_ context.Context, entry domain.SecurityLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	s.securityLogs = append(s.securityLogs, entry)
	return nil
}

func (s *Store) InsertLoginHistory(_ context.Context, entry domain.LoginHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	s.loginHistory = append(s.loginHistory, entry)
	return nil
}

func (s *Store) ListLoginHistory(_ context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LoginHistoryEntry, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]domain.LoginHistoryEntry, 0)
	for _, e := range s.loginHistory {
		if e.AccountID == accountID {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return page(matched, limit, offset), int64(len(matched)), nil
}

func (s *Store) ListSecurityLogs(_ context.Context, filter ports.SecurityLogFilter) ([]domain.SecurityLogEntry, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]domain.SecurityLogEntry, 0)
	for _, e := range s.securityLogs {
		if filter.AccountID != nil && (e.AccountID == nil || *e.AccountID != *filter.AccountID) {
			continue
		}
		if filter.Action != "" && string(e.Action) != filter.Action {
			continue
		}
		if filter.Status != "" && string(e.Status) != filter.Status {
			continue
		}
		if filter.Since != nil && e.CreatedAt.Before(*filter.Since) {
			continue
		}
		matched = append(matched, e)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return page(matched, filter.Limit, filter.Offset), int64(len(matched)), nil
}

// SecurityLogs returns a snapshot of every recorded entry in insertion order.
func (s *Store) SecurityLogs() []domain.SecurityLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]domain.SecurityLogEntry(nil), s.securityLogs...)
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
