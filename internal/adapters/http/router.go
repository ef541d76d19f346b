package http

import (
	"context"
	"net/http"
	"net/netip"

	"github.com/calchub/auth-service/internal/application"
	"github.com/calchub/auth-service/internal/domain"
	"github.com/go-chi/chi/v5"
)

// Options tune the transport surface.
type Options struct {
	// Production forces the Secure attribute on session cookies.
	Production  bool
	CSRFEnabled bool
	// Ready backs /readyz. A nil func always reports ready.
	Ready func(context.Context) error
	// TrustedProxies lists the peers whose X-Forwarded-For and X-Real-IP
	// headers are believed. Empty means the socket peer is the client.
	TrustedProxies []netip.Prefix
}

// Handler is the HTTP adapter entrypoint for auth use-cases.
type Handler struct {
	service *application.Service
	opts    Options
}

func NewHandler(service *application.Service, opts Options) *Handler {
	return &Handler{service: service, opts: opts}
}

// NewRouter registers the /api/v1 routes behind the guard chain:
// throttle, sanitize, authenticate, then CSRF.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(handler.clientIPMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/", http.StatusMovedPermanently)
	})
	r.Get("/swagger/", handler.swaggerUI)
	r.Get("/swagger/openapi.yaml", handler.swaggerSpec)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(handler.rateLimitMiddleware)
		r.Use(sanitizeMiddleware)

		r.Get("/auth/csrf-token", handler.csrfToken)

		r.Group(func(r chi.Router) {
			r.Use(handler.csrfMiddleware)
			r.Post("/auth/signup", handler.signup)
			r.Post("/auth/login", handler.login)
			r.Post("/auth/refresh", handler.refresh)
			r.With(handler.optionalAuthMiddleware).Post("/auth/logout", handler.logout)
			r.Post("/auth/verify-email", handler.verifyEmail)
			r.Post("/auth/forgot-password", handler.forgotPassword)
			r.Post("/auth/reset-password", handler.resetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Use(handler.csrfMiddleware)
			r.Get("/auth/me", handler.me)
			r.Post("/auth/logout-all", handler.logoutAll)
			r.Post("/auth/resend-verification", handler.resendVerification)
			r.Post("/auth/change-password", handler.changePassword)
			r.Get("/auth/login-history", handler.loginHistory)

			r.With(requireRole(domain.RoleAdmin), requireVerifiedEmail).
				Get("/admin/security-logs", handler.securityLogs)
		})
	})

	return r
}
