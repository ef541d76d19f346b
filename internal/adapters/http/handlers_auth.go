package http

import (
	"net/http"

	"github.com/calchub/auth-service/internal/application"
	"github.com/calchub/auth-service/internal/domain"
)

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req application.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		writeMappedError(r.Context(), w, "signup", err)
		return
	}

	res, err := h.service.Register(r.Context(), req, clientInfo(r))
	if err != nil {
		writeMappedError(r.Context(), w, "signup", err)
		return
	}
	h.setSessionCookies(w, res)
	writeSuccess(w, http.StatusCreated, newSessionResponse(res))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req application.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeMappedError(r.Context(), w, "login", err)
		return
	}

	res, err := h.service.Login(r.Context(), req, clientInfo(r))
	if err != nil {
		writeMappedError(r.Context(), w, "login", err)
		return
	}
	h.setSessionCookies(w, res)
	writeSuccess(w, http.StatusOK, newSessionResponse(res))
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeMappedError(r.Context(), w, "change_password", domain.ErrUnauthenticated)
		return
	}
	var req application.ChangePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeMappedError(r.Context(), w, "change_password", err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), account.AccountID, req, clientInfo(r)); err != nil {
		writeMappedError(r.Context(), w, "change_password", err)
		return
	}
	// Every refresh token is gone; drop the cookies so the client signs in again.
	h.clearSessionCookies(w)
	writeMessage(w, http.StatusOK, "password changed; please sign in again")
}
