// Package memory holds in-process implementations of the repository and cache
// ports. They back single-instance development runs and the service tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/calchub/auth-service/internal/domain"
	"github.com/calchub/auth-service/internal/ports"
	"github.com/google/uuid"
)

type resetTokenRecord struct {
	token  domain.EphemeralToken
	usedAt *time.Time
}

// Store implements the account, refresh-token, recovery, audit and outbox
// repositories over maps guarded by one mutex, which makes every method atomic.
type Store struct {
	mu           sync.Mutex
	accounts     map[uuid.UUID]domain.Account
	emails       map[string]uuid.UUID
	refresh      map[string]domain.RefreshToken
	verification map[string]domain.EphemeralToken
	resets       map[string]resetTokenRecord
	securityLogs []domain.SecurityLogEntry
	loginHistory []domain.LoginHistoryEntry
	outbox       []ports.OutboxRecord
}

func NewStore() *Store {
	return &Store{
		accounts:     map[uuid.UUID]domain.Account{},
		emails:       map[string]uuid.UUID{},
		refresh:      map[string]domain.RefreshToken{},
		verification: map[string]domain.EphemeralToken{},
		resets:       map[string]resetTokenRecord{},
	}
}

func (s *Store) CreateWithOutboxTx(_ context.Context, account domain.Account, event ports.OutboxEvent) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.emails[account.Email]; exists {
		return domain.Account{}, domain.ErrDuplicateEmail
	}
	if account.AccountID == uuid.Nil {
		account.AccountID = uuid.New()
	}
	s.accounts[account.AccountID] = cloneAccount(account)
	s.emails[account.Email] = account.AccountID

	if event.EventID != uuid.Nil {
		if event.PartitionKey == "" {
			event.PartitionKey = account.AccountID.String()
		}
		s.enqueueLocked(event)
	}
	return cloneAccount(account), nil
}

func (s *Store) GetByEmail(_ context.Context, email string) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.emails[email]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return cloneAccount(s.accounts[id]), nil
}

func (s *Store) GetByID(_ context.Context, accountID uuid.UUID) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return cloneAccount(acc), nil
}

func (s *Store) RecordFailedLogin(_ context.Context, accountID uuid.UUID, now time.Time, threshold int, lockout time.Duration) (ports.FailedLoginResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return ports.FailedLoginResult{}, domain.ErrNotFound
	}
	if acc.IsLocked(now) {
		return ports.FailedLoginResult{
			Applied:          false,
			FailedLoginCount: acc.FailedLoginCount,
			LockedUntil:      copyTime(acc.LockedUntil),
		}, nil
	}

	if acc.LockExpired(now) {
		acc.FailedLoginCount = 1
	} else {
		acc.FailedLoginCount++
	}
	acc.LockedUntil = nil
	if acc.FailedLoginCount >= threshold {
		until := now.Add(lockout)
		acc.LockedUntil = &until
	}
	acc.UpdatedAt = now
	s.accounts[accountID] = acc

	return ports.FailedLoginResult{
		Applied:          true,
		FailedLoginCount: acc.FailedLoginCount,
		LockedUntil:      copyTime(acc.LockedUntil),
	}, nil
}

func (s *Store) RecordSuccessfulLogin(_ context.Context, accountID uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	acc.FailedLoginCount = 0
	acc.LockedUntil = nil
	acc.LastLoginAt = copyTime(&now)
	acc.UpdatedAt = now
	s.accounts[accountID] = acc
	return nil
}

func (s *Store) UpdatePasswordAndRevokeSessions(_ context.Context, accountID uuid.UUID, passwordHash string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	acc.PasswordHash = passwordHash
	acc.UpdatedAt = now
	s.accounts[accountID] = acc
	return s.revokeAllLocked(accountID), nil
}

// SetActive toggles the active flag. It exists for operator tooling and tests.
func (s *Store) SetActive(accountID uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	acc.IsActive = active
	s.accounts[accountID] = acc
	return nil
}

// SetRole changes the account role.
func (s *Store) SetRole(accountID uuid.UUID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	acc.Role = role
	s.accounts[accountID] = acc
	return nil
}

func (s *Store) Create(_ context.Context, token domain.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.refresh[token.TokenHash]; exists {
		return domain.ErrTokenInvalid
	}
	s.refresh[token.TokenHash] = token
	return nil
}

func (s *Store) Rotate(_ context.Context, params ports.RotateParams) (domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.refresh[params.OldHash]
	if !ok {
		return domain.RefreshToken{}, domain.ErrNotFound
	}
	delete(s.refresh, params.OldHash)
	if old.Expired(params.Now) {
		return domain.RefreshToken{}, domain.ErrTokenExpired
	}

	ttl := params.SessionTTL
	if old.RememberMe {
		ttl = params.RememberTTL
	}
	next := domain.RefreshToken{
		TokenHash:  params.NewHash,
		AccountID:  old.AccountID,
		RememberMe: old.RememberMe,
		IPAddress:  params.IPAddress,
		UserAgent:  params.UserAgent,
		CreatedAt:  params.Now,
		ExpiresAt:  params.Now.Add(ttl),
	}
	s.refresh[next.TokenHash] = next
	return next, nil
}

func (s *Store) Revoke(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.refresh, tokenHash)
	return nil
}

func (s *Store) RevokeAllByAccount(_ context.Context, accountID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.revokeAllLocked(accountID), nil
}

func (s *Store) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, tok := range s.refresh {
		if tok.Expired(now) {
			delete(s.refresh, hash)
			n++
		}
	}
	return n, nil
}

// RefreshTokens returns the live refresh tokens of an account.
func (s *Store) RefreshTokens(accountID uuid.UUID) []domain.RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.RefreshToken, 0)
	for _, tok := range s.refresh {
		if tok.AccountID == accountID {
			out = append(out, tok)
		}
	}
	return out
}

func (s *Store) revokeAllLocked(accountID uuid.UUID) int64 {
	var n int64
	for hash, tok := range s.refresh {
		if tok.AccountID == accountID {
			delete(s.refresh, hash)
			n++
		}
	}
	return n
}

func cloneAccount(in domain.Account) domain.Account {
	out := in
	out.LockedUntil = copyTime(in.LockedUntil)
	out.LastLoginAt = copyTime(in.LastLoginAt)
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
