package http

import (
	"net/http"
	"time"

	"github.com/calchub/auth-service/internal/application"
)

// sessionResponse is the body returned whenever a session is issued. The
// refresh token travels only in its cookie.
type sessionResponse struct {
	User                  application.AccountView `json:"user"`
	AccessToken           string                  `json:"accessToken"`
	AccessTokenExpiresAt  time.Time               `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt time.Time               `json:"refreshTokenExpiresAt"`
	RememberMe            bool                    `json:"rememberMe"`
}

func newSessionResponse(res application.AuthResult) sessionResponse {
	return sessionResponse{
		User:                  application.NewAccountView(res.Account),
		AccessToken:           res.AccessToken,
		AccessTokenExpiresAt:  res.AccessExpiresAt,
		RefreshTokenExpiresAt: res.RefreshExpiresAt,
		RememberMe:            res.RememberMe,
	}
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.opts.Ready != nil {
		if err := h.opts.Ready(r.Context()); err != nil {
			httpLogger().WarnContext(r.Context(), "readiness check failed",
				"operation", "readyz",
				"outcome", "failure",
				"error", err,
			)
			writeError(w, http.StatusServiceUnavailable, "NOT_READY", "dependencies unavailable")
			return
		}
	}
	writeMessage(w, http.StatusOK, "ready")
}

func (h *Handler) csrfToken(w http.ResponseWriter, r *http.Request) {
	token, expiresAt, err := h.service.IssueCSRFToken(r.Context())
	if err != nil {
		writeMappedError(r.Context(), w, "csrf_token", err)
		return
	}
	w.Header().Set(csrfHeader, token)
	writeSuccess(w, http.StatusOK, map[string]any{
		"csrfToken": token,
		"expiresAt": expiresAt,
	})
}
