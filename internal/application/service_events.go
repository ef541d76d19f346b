package application

const (
	// eventTypeAccountRegistered is emitted in the same transaction as account creation.
	eventTypeAccountRegistered = "account.registered"
	// eventTypeAccountLocked is emitted when failed logins reach the threshold.
	eventTypeAccountLocked = "account.locked"
	// eventTypePasswordReset is emitted after a reset token is consumed.
	eventTypePasswordReset = "account.password_reset"
)

const (
	mailVerifyEmail     = "verify-email"
	mailPasswordReset   = "password-reset"
	mailAccountLocked   = "account-locked"
	mailPasswordChanged = "password-changed"
)
