package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	ActionSignup                 AuditAction = "SIGNUP"
	ActionLogin                  AuditAction = "LOGIN"
	ActionFailedLogin            AuditAction = "FAILED_LOGIN"
	ActionAccountLocked          AuditAction = "ACCOUNT_LOCKED"
	ActionLogout                 AuditAction = "LOGOUT"
	ActionLogoutAll              AuditAction = "LOGOUT_ALL"
	ActionTokenRefresh           AuditAction = "TOKEN_REFRESH"
	ActionEmailVerified          AuditAction = "EMAIL_VERIFIED"
	ActionVerificationResent     AuditAction = "VERIFICATION_RESENT"
	ActionPasswordResetRequested AuditAction = "PASSWORD_RESET_REQUESTED"
	ActionPasswordReset          AuditAction = "PASSWORD_RESET"
	ActionPasswordChanged        AuditAction = "PASSWORD_CHANGED"
)

// ProducesLoginHistory reports whether the action is projected into the
// user-facing login history.
func (a AuditAction) ProducesLoginHistory() bool {
	switch a {
	case ActionLogin, ActionFailedLogin, ActionLogoutAll:
		return true
	default:
		return false
	}
}

type AuditStatus string

const (
	StatusSuccess AuditStatus = "SUCCESS"
	StatusFailed  AuditStatus = "FAILED"
	StatusBlocked AuditStatus = "BLOCKED"
)

// SecurityLogEntry is an immutable audit record.
type SecurityLogEntry struct {
	ID        uuid.UUID
	AccountID *uuid.UUID
	Action    AuditAction
	IPAddress string
	UserAgent string
	Status    AuditStatus
	Details   string
	CreatedAt time.Time
}

// LoginHistoryEntry is the user-visible projection of login events.
type LoginHistoryEntry struct {
	ID         uuid.UUID
	AccountID  uuid.UUID
	Action     AuditAction
	IPAddress  string
	UserAgent  string
	Device     string
	Browser    string
	OS         string
	Status     AuditStatus
	FailReason string
	CreatedAt  time.Time
}

const unknownAgentPart = "Unknown"

// DeviceInfo is the coarse classification of a user agent.
type DeviceInfo struct {
	Device  string
	Browser string
	OS      string
}

type agentToken struct {
	needle string
	label  string
}

// Order matters: Edge and Opera also advertise Chrome, Chrome advertises Safari,
// iOS devices advertise "Mac OS X" and Android advertises Linux.
var (
	browserTokens = []agentToken{
		{"edg/", "Edge"},
		{"opr/", "Opera"},
		{"opera", "Opera"},
		{"firefox/", "Firefox"},
		{"fxios/", "Firefox"},
		{"crios/", "Chrome"},
		{"chrome/", "Chrome"},
		{"safari/", "Safari"},
		{"msie", "Internet Explorer"},
		{"trident/", "Internet Explorer"},
	}
	osTokens = []agentToken{
		{"windows", "Windows"},
		{"iphone", "iOS"},
		{"ipad", "iOS"},
		{"android", "Android"},
		{"cros", "ChromeOS"},
		{"mac os", "macOS"},
		{"macintosh", "macOS"},
		{"linux", "Linux"},
	}
	deviceTokens = []agentToken{
		{"ipad", "Tablet"},
		{"tablet", "Tablet"},
		{"mobile", "Mobile"},
		{"iphone", "Mobile"},
		{"android", "Mobile"},
		{"windows", "Desktop"},
		{"macintosh", "Desktop"},
		{"cros", "Desktop"},
		{"linux", "Desktop"},
	}
)

// ParseUserAgent derives device, browser and OS by substring matching.
func ParseUserAgent(userAgent string) DeviceInfo {
	lowered := strings.ToLower(userAgent)
	return DeviceInfo{
		Device:  matchAgent(lowered, deviceTokens),
		Browser: matchAgent(lowered, browserTokens),
		OS:      matchAgent(lowered, osTokens),
	}
}

func matchAgent(lowered string, tokens []agentToken) string {
	if lowered == "" {
		return unknownAgentPart
	}
	for _, tok := range tokens {
		if strings.Contains(lowered, tok.needle) {
			return tok.label
		}
	}
	return unknownAgentPart
}
