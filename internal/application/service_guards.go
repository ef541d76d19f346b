package application

import (
	"context"
	"strings"

	"github.com/calchub/auth-service/internal/domain"
)

// ThrottleClient counts one request against the per-IP allowance.
func (s *Service) ThrottleClient(ctx context.Context, ipAddress string) error {
	ipAddress = strings.TrimSpace(ipAddress)
	if ipAddress == "" {
		return nil
	}
	return s.enforceRateLimit(ctx, "ip:"+ipAddress, s.cfg.RequestRateLimit)
}

// Authorize checks the role and verification requirements of a route
// against an already authenticated account.
func Authorize(account domain.Account, role string, verifiedEmail bool) error {
	if role != "" && account.Role != role {
		return domain.ErrForbidden
	}
	if verifiedEmail && !account.EmailVerified {
		return domain.ErrForbidden
	}
	return nil
}
