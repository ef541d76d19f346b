package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/calchub/auth-service/internal/application"
	"github.com/calchub/auth-service/internal/domain"
	"github.com/google/uuid"
)

func (h *Handler) loginHistory(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeMappedError(r.Context(), w, "login_history", domain.ErrUnauthenticated)
		return
	}

	page, err := h.service.ListLoginHistory(r.Context(), account.AccountID, pageQuery(r))
	if err != nil {
		writeMappedError(r.Context(), w, "login_history", err)
		return
	}
	writeSuccess(w, http.StatusOK, page)
}

func (h *Handler) securityLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := application.SecurityLogQuery{
		Action:    q.Get("action"),
		Status:    q.Get("status"),
		PageQuery: pageQuery(r),
	}
	verr := &domain.ValidationError{}
	if raw := strings.TrimSpace(q.Get("accountId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			verr.Add("accountId", "must be a UUID")
		} else {
			query.AccountID = &id
		}
	}
	if raw := strings.TrimSpace(q.Get("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			verr.Add("since", "must be an RFC 3339 timestamp")
		} else {
			query.Since = &since
		}
	}
	if err := verr.OrNil(); err != nil {
		writeMappedError(r.Context(), w, "security_logs", err)
		return
	}

	page, err := h.service.ListSecurityLogs(r.Context(), query)
	if err != nil {
		writeMappedError(r.Context(), w, "security_logs", err)
		return
	}
	writeSuccess(w, http.StatusOK, page)
}
