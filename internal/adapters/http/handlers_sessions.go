package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/calchub/auth-service/internal/domain"
	"github.com/google/uuid"
)

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

// refreshTokenFromRequest reads the refresh cookie, falling back to the body.
func refreshTokenFromRequest(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(refreshCookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return strings.TrimSpace(cookie.Value), nil
	}
	var body refreshBody
	if err := decodeOptionalBody(r, &body); err != nil {
		return "", err
	}
	return strings.TrimSpace(body.RefreshToken), nil
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	token, err := refreshTokenFromRequest(r)
	if err != nil {
		writeMappedError(r.Context(), w, "refresh", err)
		return
	}

	res, err := h.service.Refresh(r.Context(), token, clientInfo(r))
	if err != nil {
		if errors.Is(err, domain.ErrTokenInvalid) || errors.Is(err, domain.ErrTokenExpired) || errors.Is(err, domain.ErrAccountDeactivated) {
			h.clearSessionCookies(w)
		}
		writeMappedError(r.Context(), w, "refresh", err)
		return
	}
	h.setSessionCookies(w, res)
	writeSuccess(w, http.StatusOK, newSessionResponse(res))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token, err := refreshTokenFromRequest(r)
	if err != nil {
		writeMappedError(r.Context(), w, "logout", err)
		return
	}
	var accountID *uuid.UUID
	if account, ok := accountFromContext(r.Context()); ok {
		accountID = &account.AccountID
	}

	if err := h.service.Logout(r.Context(), token, accountID, clientInfo(r)); err != nil {
		writeMappedError(r.Context(), w, "logout", err)
		return
	}
	h.clearSessionCookies(w)
	writeMessage(w, http.StatusOK, "logged out")
}

func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeMappedError(r.Context(), w, "logout_all", domain.ErrUnauthenticated)
		return
	}

	revoked, err := h.service.LogoutAll(r.Context(), account.AccountID, clientInfo(r))
	if err != nil {
		writeMappedError(r.Context(), w, "logout_all", err)
		return
	}
	h.clearSessionCookies(w)
	writeSuccess(w, http.StatusOK, map[string]any{
		"revokedSessions": revoked,
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeMappedError(r.Context(), w, "me", domain.ErrUnauthenticated)
		return
	}

	view, err := h.service.Me(r.Context(), account.AccountID)
	if err != nil {
		writeMappedError(r.Context(), w, "me", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"user": view})
}
