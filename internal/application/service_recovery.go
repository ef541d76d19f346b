package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/calchub/auth-service/internal/domain"
	"github.com/google/uuid"
)

const ephemeralTokenBytes = 32

// issueEphemeral creates a raw token and stores its digest through replace,
// which supersedes earlier tokens of the same purpose.
func (s *Service) issueEphemeral(ctx context.Context, accountID uuid.UUID, ttl time.Duration, replace func(context.Context, domain.EphemeralToken) error) (string, error) {
	raw, err := randomURLToken(ephemeralTokenBytes)
	if err != nil {
		return "", err
	}
	now := s.now()
	if err := replace(ctx, domain.EphemeralToken{
		TokenHash: s.digest(raw),
		AccountID: accountID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}); err != nil {
		return "", err
	}
	return raw, nil
}

// IssueEmailVerificationToken returns a new verification token, invalidating any earlier one.
func (s *Service) IssueEmailVerificationToken(ctx context.Context, accountID uuid.UUID) (string, error) {
	return s.issueEphemeral(ctx, accountID, s.cfg.VerificationTokenTTL, s.recovery.ReplaceEmailVerificationToken)
}

// IssuePasswordResetToken returns a new reset token, invalidating earlier unused ones.
func (s *Service) IssuePasswordResetToken(ctx context.Context, accountID uuid.UUID) (string, error) {
	return s.issueEphemeral(ctx, accountID, s.cfg.ResetTokenTTL, s.recovery.ReplacePasswordResetToken)
}

func (s *Service) sendVerificationMail(ctx context.Context, account domain.Account) error {
	token, err := s.IssueEmailVerificationToken(ctx, account.AccountID)
	if err != nil {
		return fmt.Errorf("issue verification token: %w", err)
	}
	s.sendMail(ctx, account.Email, mailVerifyEmail, map[string]any{
		"name":       account.FullName,
		"link":       s.link("/verify-email", token),
		"expires_in": humanDuration(s.cfg.VerificationTokenTTL),
	})
	return nil
}

// VerifyEmail consumes a verification token and marks the address verified.
func (s *Service) VerifyEmail(ctx context.Context, token string, client ClientInfo) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.FieldError("token", "is required")
	}
	accountID, err := s.recovery.ConsumeEmailVerificationToken(ctx, s.digest(token), s.now())
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.Record(ctx, AuditEntry{Action: domain.ActionEmailVerified, Status: domain.StatusFailed, Details: "unknown verification token", Client: client})
		return domain.ErrTokenInvalid
	case errors.Is(err, domain.ErrTokenExpired):
		s.Record(ctx, AuditEntry{Action: domain.ActionEmailVerified, Status: domain.StatusFailed, Details: "expired verification token", Client: client})
		return domain.ErrTokenExpired
	case err != nil:
		return fmt.Errorf("consume verification token: %w", err)
	}
	s.Record(ctx, AuditEntry{AccountID: &accountID, Action: domain.ActionEmailVerified, Status: domain.StatusSuccess, Client: client})
	return nil
}

// ResendVerification issues a fresh verification mail, at most
// ResendRateLimit times per window per account.
func (s *Service) ResendVerification(ctx context.Context, accountID uuid.UUID, client ClientInfo) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUnauthenticated
		}
		return err
	}
	if account.EmailVerified {
		return domain.ErrEmailAlreadyVerified
	}
	if err := s.enforceRateLimit(ctx, "resend:"+accountID.String(), s.cfg.ResendRateLimit); err != nil {
		s.Record(ctx, AuditEntry{AccountID: &accountID, Action: domain.ActionVerificationResent, Status: domain.StatusBlocked, Details: "rate limited", Client: client})
		return err
	}
	if err := s.sendVerificationMail(ctx, account); err != nil {
		return err
	}
	s.Record(ctx, AuditEntry{AccountID: &accountID, Action: domain.ActionVerificationResent, Status: domain.StatusSuccess, Client: client})
	return nil
}

// ForgotPassword never reveals whether the address belongs to an account:
// every outcome other than malformed input or a rate limit returns nil.
func (s *Service) ForgotPassword(ctx context.Context, email string, client ClientInfo) error {
	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		return err
	}
	if err := s.enforceRateLimit(ctx, "forgot:"+normalized, s.cfg.ForgotPasswordRateLimit); err != nil {
		return err
	}

	account, err := s.accounts.GetByEmail(ctx, normalized)
	if err != nil {
		details := "unknown email"
		if !errors.Is(err, domain.ErrNotFound) {
			details = "account lookup failed"
			s.logger.ErrorContext(ctx, "forgot-password lookup failed",
				"operation", "forgot_password",
				"outcome", "failure",
				"error", err,
			)
		}
		s.Record(ctx, AuditEntry{Action: domain.ActionPasswordResetRequested, Status: domain.StatusFailed, Details: details, Client: client})
		return nil
	}
	accountID := account.AccountID
	if !account.IsActive {
		s.Record(ctx, AuditEntry{AccountID: &accountID, Action: domain.ActionPasswordResetRequested, Status: domain.StatusBlocked, Details: "account deactivated", Client: client})
		return nil
	}

	token, err := s.IssuePasswordResetToken(ctx, accountID)
	if err != nil {
		s.logger.ErrorContext(ctx, "issue reset token failed",
			"operation", "forgot_password",
			"outcome", "failure",
			"account_id", accountID,
			"error", err,
		)
		return nil
	}
	s.sendMail(ctx, account.Email, mailPasswordReset, map[string]any{
		"name":       account.FullName,
		"link":       s.link("/reset-password", token),
		"expires_in": humanDuration(s.cfg.ResetTokenTTL),
	})
	s.Record(ctx, AuditEntry{AccountID: &accountID, Action: domain.ActionPasswordResetRequested, Status: domain.StatusSuccess, Client: client})
	return nil
}

// ResetPassword consumes a reset token, replaces the password, clears the
// lockout and revokes every session in a single repository transaction.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest, client ClientInfo) error {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return domain.FieldError("token", "is required")
	}
	if err := domain.ValidatePassword(req.NewPassword); err != nil {
		verr := &domain.ValidationError{}
		mergeValidation(verr, err)
		if msg, ok := verr.Fields["password"]; ok {
			return domain.FieldError("newPassword", msg)
		}
		return err
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	accountID, err := s.recovery.ResetPasswordWithToken(ctx, s.digest(token), hash, s.now())
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.Record(ctx, AuditEntry{Action: domain.ActionPasswordReset, Status: domain.StatusFailed, Details: "unknown reset token", Client: client})
		return domain.ErrTokenInvalid
	case errors.Is(err, domain.ErrTokenExpired):
		s.Record(ctx, AuditEntry{Action: domain.ActionPasswordReset, Status: domain.StatusFailed, Details: "expired reset token", Client: client})
		return domain.ErrTokenExpired
	case err != nil:
		return fmt.Errorf("reset password: %w", err)
	}

	s.Record(ctx, AuditEntry{AccountID: &accountID, Action: domain.ActionPasswordReset, Status: domain.StatusSuccess, Client: client})
	s.enqueueEvent(ctx, eventTypePasswordReset, accountID, map[string]any{})
	if account, err := s.accounts.GetByID(ctx, accountID); err == nil {
		s.sendMail(ctx, account.Email, mailPasswordChanged, map[string]any{
			"name": account.FullName,
			"link": s.link("/forgot-password", ""),
		})
	}
	return nil
}
