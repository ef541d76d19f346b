package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/calchub/auth-service/internal/domain"
	"github.com/calchub/auth-service/internal/ports"
	"github.com/google/uuid"
)

// Register creates an account, sends the verification mail and signs the
// new account in.
func (s *Service) Register(ctx context.Context, req RegisterRequest, client ClientInfo) (AuthResult, error) {
	verr := &domain.ValidationError{}
	fullName := strings.TrimSpace(req.FullName)
	if err := domain.ValidateFullName(fullName); err != nil {
		mergeValidation(verr, err)
	}
	email, err := domain.NormalizeEmail(req.Email)
	if err != nil {
		mergeValidation(verr, err)
	}
	if err := domain.ValidatePassword(req.Password); err != nil {
		mergeValidation(verr, err)
	}
	phone := strings.TrimSpace(req.Phone)
	if err := domain.ValidatePhone(phone); err != nil {
		mergeValidation(verr, err)
	}
	if err := verr.OrNil(); err != nil {
		return AuthResult{}, err
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	accountID := uuid.New()
	payload, err := json.Marshal(map[string]any{
		"account_id":    accountID,
		"email":         email,
		"registered_at": now,
	})
	if err != nil {
		return AuthResult{}, fmt.Errorf("encode registration event: %w", err)
	}
	account, err := s.accounts.CreateWithOutboxTx(ctx, domain.Account{
		AccountID:    accountID,
		FullName:     fullName,
		Email:        email,
		Phone:        phone,
		PasswordHash: passwordHash,
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventTypeAccountRegistered,
		PartitionKey: accountID.String(),
		Payload:      payload,
		OccurredAt:   now,
	})
	if err != nil {
		return AuthResult{}, err
	}

	if err := s.sendVerificationMail(ctx, account); err != nil {
		s.logger.WarnContext(ctx, "verification token not issued at signup",
			"operation", "register",
			"outcome", "warning",
			"account_id", account.AccountID,
			"error", err,
		)
	}

	result, err := s.issueSession(ctx, account, false, client)
	if err != nil {
		return AuthResult{}, err
	}
	if err := s.accounts.RecordSuccessfulLogin(ctx, account.AccountID, now); err != nil {
		return AuthResult{}, fmt.Errorf("stamp last login: %w", err)
	}
	result.Account.LastLoginAt = &now

	s.Record(ctx, AuditEntry{AccountID: &account.AccountID, Action: domain.ActionSignup, Status: domain.StatusSuccess, Client: client})
	s.logger.InfoContext(ctx, "account registered",
		"operation", "register",
		"outcome", "success",
		"account_id", account.AccountID,
	)
	return result, nil
}

// Login verifies credentials and applies the lockout policy.
func (s *Service) Login(ctx context.Context, req LoginRequest, client ClientInfo) (AuthResult, error) {
	email, err := domain.NormalizeEmail(req.Email)
	if err != nil {
		return AuthResult{}, err
	}
	if req.Password == "" {
		return AuthResult{}, domain.FieldError("password", "is required")
	}
	if err := s.enforceRateLimit(ctx, "login:"+client.IPAddress+":"+email, s.cfg.LoginRateLimit); err != nil {
		return AuthResult{}, err
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return AuthResult{}, s.loginUnknownEmail(ctx, email, req.Password, client)
	}
	if err != nil {
		return AuthResult{}, err
	}

	now := s.now()
	accountID := account.AccountID
	if account.IsLocked(now) {
		s.Record(ctx, AuditEntry{AccountID: &accountID, Action: domain.ActionFailedLogin, Status: domain.StatusBlocked, Details: "account locked", Client: client})
		return AuthResult{}, &domain.LockedError{Until: *account.LockedUntil}
	}
	if !account.IsActive {
		s.Record(ctx, AuditEntry{AccountID: &accountID, Action: domain.ActionFailedLogin, Status: domain.StatusFailed, Details: "account deactivated", Client: client})
		return AuthResult{}, domain.ErrAccountDeactivated
	}

	if err := s.hasher.Compare(account.PasswordHash, req.Password); err != nil {
		return AuthResult{}, s.registerFailedAttempt(ctx, account, client)
	}

	if err := s.accounts.RecordSuccessfulLogin(ctx, accountID, now); err != nil {
		return AuthResult{}, fmt.Errorf("record successful login: %w", err)
	}
	account.FailedLoginCount = 0
	account.LockedUntil = nil
	account.LastLoginAt = &now

	result, err := s.issueSession(ctx, account, req.RememberMe, client)
	if err != nil {
		return AuthResult{}, err
	}
	s.Record(ctx, AuditEntry{AccountID: &accountID, Action: domain.ActionLogin, Status: domain.StatusSuccess, Client: client})
	return result, nil
}

// registerFailedAttempt counts a wrong password and reports either the
// remaining attempts or the new lock.
func (s *Service) registerFailedAttempt(ctx context.Context, account domain.Account, client ClientInfo) error {
	now := s.now()
	accountID := account.AccountID
	res, err := s.accounts.RecordFailedLogin(ctx, accountID, now, s.cfg.MaxLoginAttempts, s.cfg.LockoutDuration)
	if err != nil {
		return fmt.Errorf("record failed login: %w", err)
	}
	if !res.Applied {
		// Another request locked the account between the read and the update.
		until := now.Add(s.cfg.LockoutDuration)
		if res.LockedUntil != nil {
			until = *res.LockedUntil
		}
		s.Record(ctx, AuditEntry{AccountID: &accountID, Action: domain.ActionFailedLogin, Status: domain.StatusBlocked, Details: "account locked", Client: client})
		return &domain.LockedError{Until: until}
	}

	s.Record(ctx, AuditEntry{AccountID: &accountID, Action: domain.ActionFailedLogin, Status: domain.StatusFailed, Details: "invalid password", Client: client})
	if res.LockedUntil == nil || !res.LockedUntil.After(now) {
		remaining := s.cfg.MaxLoginAttempts - res.FailedLoginCount
		if remaining < 0 {
			remaining = 0
		}
		return &domain.CredentialsError{RemainingAttempts: remaining}
	}

	until := *res.LockedUntil
	s.Record(ctx, AuditEntry{
		AccountID: &accountID,
		Action:    domain.ActionAccountLocked,
		Status:    domain.StatusBlocked,
		Details:   fmt.Sprintf("locked after %d failed attempts until %s", res.FailedLoginCount, until.Format(time.RFC3339)),
		Client:    client,
	})
	s.enqueueEvent(ctx, eventTypeAccountLocked, accountID, map[string]any{
		"locked_until":    until,
		"failed_attempts": res.FailedLoginCount,
	})
	s.sendMail(ctx, account.Email, mailAccountLocked, map[string]any{
		"name":         account.FullName,
		"locked_until": until.Format(time.RFC1123),
		"link":         s.link("/forgot-password", ""),
	})
	s.logger.WarnContext(ctx, "account locked",
		"operation", "login",
		"outcome", "locked",
		"account_id", accountID,
		"locked_until", until,
	)
	return &domain.LockedError{Until: until}
}

// loginUnknownEmail answers exactly like a wrong password on a real account:
// it spends a bcrypt comparison and keeps a shadow attempt counter.
func (s *Service) loginUnknownEmail(ctx context.Context, email, password string, client ClientInfo) error {
	s.Record(ctx, AuditEntry{Action: domain.ActionFailedLogin, Status: domain.StatusFailed, Details: "unknown email", Client: client})
	if hash := s.dummyPasswordHash(); hash != "" {
		_ = s.hasher.Compare(hash, password)
	}

	now := s.now()
	maxAttempts := s.cfg.MaxLoginAttempts
	if s.limiter == nil {
		return &domain.CredentialsError{RemainingAttempts: maxAttempts - 1}
	}
	decision, err := s.limiter.Hit(ctx, "login:shadow:"+email, maxAttempts, s.cfg.LockoutDuration, now)
	if err != nil {
		s.logger.WarnContext(ctx, "shadow lockout state unavailable",
			"operation", "login",
			"outcome", "warning",
			"error", err,
		)
		return &domain.CredentialsError{RemainingAttempts: maxAttempts - 1}
	}
	switch {
	case !decision.Allowed:
		return &domain.LockedError{Until: now.Add(decision.RetryAfter)}
	case decision.Remaining == 0:
		return &domain.LockedError{Until: now.Add(s.cfg.LockoutDuration)}
	default:
		return &domain.CredentialsError{RemainingAttempts: decision.Remaining}
	}
}

// ChangePassword replaces the password of a signed-in account and ends all
// of its sessions.
func (s *Service) ChangePassword(ctx context.Context, accountID uuid.UUID, req ChangePasswordRequest, client ClientInfo) error {
	if req.CurrentPassword == "" {
		return domain.FieldError("currentPassword", "is required")
	}
	if err := domain.ValidatePassword(req.NewPassword); err != nil {
		verr := &domain.ValidationError{}
		mergeValidation(verr, err)
		if msg, ok := verr.Fields["password"]; ok {
			return domain.FieldError("newPassword", msg)
		}
		return err
	}
	if req.NewPassword == req.CurrentPassword {
		return domain.FieldError("newPassword", "must differ from the current password")
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUnauthenticated
		}
		return err
	}
	if err := s.hasher.Compare(account.PasswordHash, req.CurrentPassword); err != nil {
		s.Record(ctx, AuditEntry{AccountID: &accountID, Action: domain.ActionPasswordChanged, Status: domain.StatusFailed, Details: "current password mismatch", Client: client})
		return domain.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	revoked, err := s.accounts.UpdatePasswordAndRevokeSessions(ctx, accountID, hash, s.now())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	s.Record(ctx, AuditEntry{
		AccountID: &accountID,
		Action:    domain.ActionPasswordChanged,
		Status:    domain.StatusSuccess,
		Details:   fmt.Sprintf("%d sessions revoked", revoked),
		Client:    client,
	})
	s.sendMail(ctx, account.Email, mailPasswordChanged, map[string]any{
		"name": account.FullName,
		"link": s.link("/forgot-password", ""),
	})
	return nil
}

// mergeValidation folds a field error into dst; other errors are recorded
// against a generic field.
func mergeValidation(dst *domain.ValidationError, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		for field, msg := range verr.Fields {
			dst.Add(field, msg)
		}
		return
	}
	dst.Add("input", err.Error())
}
