package memory

import (
	"context"
	"time"

	"github.com/calchub/auth-service/internal/domain"
	"github.com/google/uuid"
)

func (s *Store) ReplaceEmailVerificationToken(_ context.Context, token domain.EphemeralToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, existing := range s.verification {
		if existing.AccountID == token.AccountID {
			delete(s.verification, hash)
		}
	}
	s.verification[token.TokenHash] = token
	return nil
}

func (s *Store) ConsumeEmailVerificationToken(_ context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.verification[tokenHash]
	if !ok {
		return uuid.Nil, domain.ErrNotFound
	}
	delete(s.verification, tokenHash)
	if !tok.ExpiresAt.After(now) {
		return uuid.Nil, domain.ErrTokenExpired
	}

	acc, ok := s.accounts[tok.AccountID]
	if !ok {
		return uuid.Nil, domain.ErrNotFound
	}
	acc.EmailVerified = true
	acc.UpdatedAt = now
	s.accounts[tok.AccountID] = acc
	return tok.AccountID, nil
}

func (s *Store) ReplacePasswordResetToken(_ context.Context, token domain.EphemeralToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, existing := range s.resets {
		if existing.token.AccountID == token.AccountID && existing.usedAt == nil {
			delete(s.resets, hash)
		}
	}
	s.resets[token.TokenHash] = resetTokenRecord{token: token}
	return nil
}

func (s *Store) ResetPasswordWithToken(_ context.Context, tokenHash, passwordHash string, now time.Time) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.resets[tokenHash]
	if !ok || rec.usedAt != nil {
		return uuid.Nil, domain.ErrNotFound
	}
	if !rec.token.ExpiresAt.After(now) {
		delete(s.resets, tokenHash)
		return uuid.Nil, domain.ErrTokenExpired
	}
	acc, ok := s.accounts[rec.token.AccountID]
	if !ok {
		return uuid.Nil, domain.ErrNotFound
	}

	rec.usedAt = copyTime(&now)
	s.resets[tokenHash] = rec

	acc.PasswordHash = passwordHash
	acc.FailedLoginCount = 0
	acc.LockedUntil = nil
	acc.UpdatedAt = now
	s.accounts[acc.AccountID] = acc
	s.revokeAllLocked(acc.AccountID)
	return acc.AccountID, nil
}

func (s *Store) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, tok := range s.verification {
		if !tok.ExpiresAt.After(now) {
			delete(s.verification, hash)
			n++
		}
	}
	for hash, rec := range s.resets {
		if rec.usedAt != nil || !rec.token.ExpiresAt.After(now) {
			delete(s.resets, hash)
			n++
		}
	}
	return n, nil
}
