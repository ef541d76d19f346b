package http

import (
	"net/http"
	"time"

	"github.com/calchub/auth-service/internal/application"
)

func (h *Handler) sessionCookie(name, value string, expiresAt time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt.UTC(),
		HttpOnly: true,
		Secure:   h.opts.Production,
		SameSite: http.SameSiteStrictMode,
	}
	if maxAge := int(time.Until(expiresAt) / time.Second); maxAge > 0 {
		cookie.MaxAge = maxAge
	}
	return cookie
}

func (h *Handler) setSessionCookies(w http.ResponseWriter, res application.AuthResult) {
	http.SetCookie(w, h.sessionCookie(accessCookieName, res.AccessToken, res.AccessExpiresAt))
	http.SetCookie(w, h.sessionCookie(refreshCookieName, res.RefreshToken, res.RefreshExpiresAt))
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookieName, refreshCookieName} {
		cookie := h.sessionCookie(name, "", time.Unix(0, 0))
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
	}
}
