package http

import (
	"net/http"

	"github.com/calchub/auth-service/internal/application"
	"github.com/calchub/auth-service/internal/domain"
)

// forgotPasswordMessage is returned whether or not the address is registered.
const forgotPasswordMessage = "if an account exists for that email, a password reset link has been sent"

type tokenBody struct {
	Token string `json:"token"`
}

type emailBody struct {
	Email string `json:"email"`
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenBody
	if err := decodeBody(r, &req); err != nil {
		writeMappedError(r.Context(), w, "verify_email", err)
		return
	}

	if err := h.service.VerifyEmail(r.Context(), req.Token, clientInfo(r)); err != nil {
		writeEphemeralTokenError(r.Context(), w, "verify_email", err)
		return
	}
	writeMessage(w, http.StatusOK, "email verified")
}

func (h *Handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeMappedError(r.Context(), w, "resend_verification", domain.ErrUnauthenticated)
		return
	}

	if err := h.service.ResendVerification(r.Context(), account.AccountID, clientInfo(r)); err != nil {
		writeMappedError(r.Context(), w, "resend_verification", err)
		return
	}
	writeMessage(w, http.StatusOK, "verification email sent")
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailBody
	if err := decodeBody(r, &req); err != nil {
		writeMappedError(r.Context(), w, "forgot_password", err)
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email, clientInfo(r)); err != nil {
		writeMappedError(r.Context(), w, "forgot_password", err)
		return
	}
	writeMessage(w, http.StatusOK, forgotPasswordMessage)
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req application.ResetPasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeMappedError(r.Context(), w, "reset_password", err)
		return
	}

	if err := h.service.ResetPassword(r.Context(), req, clientInfo(r)); err != nil {
		writeEphemeralTokenError(r.Context(), w, "reset_password", err)
		return
	}
	h.clearSessionCookies(w)
	writeMessage(w, http.StatusOK, "password has been reset; please sign in")
}
