package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/calchub/auth-service/internal/domain"
	"github.com/calchub/auth-service/internal/ports"
	"github.com/google/uuid"
)

const refreshTokenBytes = 32

// IssueAccessToken signs a short-lived access token for account.
func (s *Service) IssueAccessToken(account domain.Account) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTokenTTL)
	token, err := s.tokenSigner.Sign(ports.AccessClaims{
		AccountID: account.AccountID,
		Email:     account.Email,
		Role:      account.Role,
		TokenID:   uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return token, expiresAt, nil
}

// IssueRefreshToken persists the digest of a new opaque refresh token and
// returns the raw value, which is never stored.
func (s *Service) IssueRefreshToken(ctx context.Context, accountID uuid.UUID, rememberMe bool, client ClientInfo) (string, time.Time, error) {
	raw, err := randomURLToken(refreshTokenBytes)
	if err != nil {
		return "", time.Time{}, err
	}
	now := s.now()
	expiresAt := now.Add(s.refreshTTL(rememberMe))
	if err := s.refreshTokens.Create(ctx, domain.RefreshToken{
		TokenHash:  s.digest(raw),
		AccountID:  accountID,
		RememberMe: rememberMe,
		IPAddress:  client.IPAddress,
		UserAgent:  client.UserAgent,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
	}); err != nil {
		return "", time.Time{}, fmt.Errorf("store refresh token: %w", err)
	}
	return raw, expiresAt, nil
}

func (s *Service) refreshTTL(rememberMe bool) time.Duration {
	if rememberMe {
		return s.cfg.RememberMeTTL
	}
	return s.cfg.RefreshTokenTTL
}

func (s *Service) issueSession(ctx context.Context, account domain.Account, rememberMe bool, client ClientInfo) (AuthResult, error) {
	access, accessExp, err := s.IssueAccessToken(account)
	if err != nil {
		return AuthResult{}, err
	}
	refresh, refreshExp, err := s.IssueRefreshToken(ctx, account.AccountID, rememberMe, client)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		Account:          account,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		RememberMe:       rememberMe,
	}, nil
}

// Refresh rotates a refresh token. The presented token is deleted whatever
// the outcome once it has been found, so it can never be replayed.
func (s *Service) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (AuthResult, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return AuthResult{}, fmt.Errorf("%w: refresh token required", domain.ErrUnauthenticated)
	}

	newRaw, err := randomURLToken(refreshTokenBytes)
	if err != nil {
		return AuthResult{}, err
	}
	rotated, err := s.refreshTokens.Rotate(ctx, ports.RotateParams{
		OldHash:     s.digest(refreshToken),
		NewHash:     s.digest(newRaw),
		SessionTTL:  s.cfg.RefreshTokenTTL,
		RememberTTL: s.cfg.RememberMeTTL,
		IPAddress:   client.IPAddress,
		UserAgent:   client.UserAgent,
		Now:         s.now(),
	})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.Record(ctx, AuditEntry{Action: domain.ActionTokenRefresh, Status: domain.StatusFailed, Details: "unknown refresh token", Client: client})
		return AuthResult{}, domain.ErrTokenInvalid
	case errors.Is(err, domain.ErrTokenExpired):
		s.Record(ctx, AuditEntry{Action: domain.ActionTokenRefresh, Status: domain.StatusFailed, Details: "expired refresh token", Client: client})
		return AuthResult{}, domain.ErrTokenExpired
	case err != nil:
		return AuthResult{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	accountID := rotated.AccountID
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			_ = s.refreshTokens.Revoke(ctx, rotated.TokenHash)
			return AuthResult{}, domain.ErrTokenInvalid
		}
		return AuthResult{}, err
	}
	if !account.IsActive {
		if _, err := s.refreshTokens.RevokeAllByAccount(ctx, accountID); err != nil {
			return AuthResult{}, fmt.Errorf("revoke sessions: %w", err)
		}
		s.Record(ctx, AuditEntry{AccountID: &accountID, Action: domain.ActionTokenRefresh, Status: domain.StatusBlocked, Details: "account deactivated", Client: client})
		return AuthResult{}, domain.ErrAccountDeactivated
	}

	access, accessExp, err := s.IssueAccessToken(account)
	if err != nil {
		return AuthResult{}, err
	}
	s.Record(ctx, AuditEntry{AccountID: &accountID, Action: domain.ActionTokenRefresh, Status: domain.StatusSuccess, Client: client})
	return AuthResult{
		Account:          account,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     newRaw,
		RefreshExpiresAt: rotated.ExpiresAt,
		RememberMe:       rotated.RememberMe,
	}, nil
}

// Revoke deletes one refresh token. Unknown tokens are not an error.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	return s.refreshTokens.Revoke(ctx, s.digest(refreshToken))
}

// RevokeAll deletes every refresh token of the account and returns how many were live.
func (s *Service) RevokeAll(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return s.refreshTokens.RevokeAllByAccount(ctx, accountID)
}

// Logout ends the session bound to refreshToken. accountID may be nil when
// the caller's access token has already expired.
func (s *Service) Logout(ctx context.Context, refreshToken string, accountID *uuid.UUID, client ClientInfo) error {
	if err := s.Revoke(ctx, refreshToken); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	s.Record(ctx, AuditEntry{AccountID: accountID, Action: domain.ActionLogout, Status: domain.StatusSuccess, Client: client})
	return nil
}

func (s *Service) LogoutAll(ctx context.Context, accountID uuid.UUID, client ClientInfo) (int64, error) {
	n, err := s.RevokeAll(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	s.Record(ctx, AuditEntry{
		AccountID: &accountID,
		Action:    domain.ActionLogoutAll,
		Status:    domain.StatusSuccess,
		Details:   fmt.Sprintf("%d sessions revoked", n),
		Client:    client,
	})
	return n, nil
}

// ValidateAccessToken verifies the signature and expiry, then requires the
// subject to exist and be active.
func (s *Service) ValidateAccessToken(ctx context.Context, token string) (domain.Account, ports.AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Account{}, ports.AccessClaims{}, domain.ErrUnauthenticated
	}
	claims, err := s.tokenSigner.ParseAndValidate(token)
	if err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			return domain.Account{}, ports.AccessClaims{}, domain.ErrTokenExpired
		}
		return domain.Account{}, ports.AccessClaims{}, domain.ErrTokenInvalid
	}
	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Account{}, ports.AccessClaims{}, domain.ErrTokenInvalid
		}
		return domain.Account{}, ports.AccessClaims{}, err
	}
	if !account.IsActive {
		return domain.Account{}, ports.AccessClaims{}, domain.ErrAccountDeactivated
	}
	return account, claims, nil
}

// Me returns the caller's current account record.
func (s *Service) Me(ctx context.Context, accountID uuid.UUID) (AccountView, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return AccountView{}, domain.ErrUnauthenticated
		}
		return AccountView{}, err
	}
	return NewAccountView(account), nil
}
