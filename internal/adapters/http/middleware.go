package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/calchub/auth-service/internal/application"
	"github.com/calchub/auth-service/internal/domain"
	"github.com/google/uuid"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyAccount   ctxKey = "account"
	ctxKeyBodyCSRF  ctxKey = "body_csrf"
)

const (
	csrfHeader        = "X-CSRF-Token"
	requestIDHeader   = "X-Request-Id"
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
)

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				httpLogger().ErrorContext(r.Context(), "panic recovered",
					"operation", "http_panic_recovery",
					"outcome", "failure",
					"request_id", requestIDFromContext(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
				)
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(payload []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(payload)
	r.bytes += n
	return n, err
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		statusCode := recorder.statusCode
		if statusCode == 0 {
			statusCode = http.StatusOK
		}
		outcome := "success"
		if statusCode >= 400 {
			outcome = "failure"
		}

		// The query string is left out: it can carry tokens.
		fields := []any{
			"operation", "http_request",
			"outcome", outcome,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", statusCode,
			"bytes", recorder.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", readIP(r),
			"request_id", requestIDFromContext(r.Context()),
		}
		switch {
		case statusCode >= 500:
			httpLogger().ErrorContext(r.Context(), "http request completed", fields...)
		case statusCode >= 400:
			httpLogger().WarnContext(r.Context(), "http request completed", fields...)
		default:
			httpLogger().InfoContext(r.Context(), "http request completed", fields...)
		}
	})
}

// rateLimitMiddleware applies the per-IP request allowance.
func (h *Handler) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.service.ThrottleClient(r.Context(), readIP(r)); err != nil {
			writeMappedError(r.Context(), w, "rate_limit", err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware resolves the caller from the access token and rejects the
// request when there is none or it no longer maps to an active account.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := accessTokenFromRequest(r)
		if token == "" {
			writeMappedError(r.Context(), w, "authenticate", domain.ErrUnauthenticated)
			return
		}
		account, _, err := h.service.ValidateAccessToken(r.Context(), token)
		if err != nil {
			writeMappedError(r.Context(), w, "authenticate", err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyAccount, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// optionalAuthMiddleware attaches the caller when a valid access token is
// present and otherwise lets the request through anonymously.
func (h *Handler) optionalAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := accessTokenFromRequest(r); token != "" {
			if account, _, err := h.service.ValidateAccessToken(r.Context(), token); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), ctxKeyAccount, account))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// csrfMiddleware hands out a fresh token on safe methods and requires a
// single-use token on unsafe ones.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.opts.CSRFEnabled {
			next.ServeHTTP(w, r)
			return
		}
		if isSafeMethod(r.Method) {
			token, _, err := h.service.IssueCSRFToken(r.Context())
			if err != nil {
				httpLogger().WarnContext(r.Context(), "csrf token issue failed",
					"operation", "csrf_issue",
					"outcome", "failure",
					"request_id", requestIDFromContext(r.Context()),
					"error", err,
				)
			} else {
				w.Header().Set(csrfHeader, token)
			}
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(r.Header.Get(csrfHeader))
		if token == "" {
			token = bodyCSRFFromContext(r.Context())
		}
		if err := h.service.ValidateCSRFToken(r.Context(), token); err != nil {
			writeMappedError(r.Context(), w, "csrf_validate", err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireRole(role string) func(http.Handler) http.Handler {
	return requireAccess(role, false)
}

func requireVerifiedEmail(next http.Handler) http.Handler {
	return requireAccess("", true)(next)
}

func requireAccess(role string, verifiedEmail bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, ok := accountFromContext(r.Context())
			if !ok {
				writeMappedError(r.Context(), w, "authorize", domain.ErrUnauthenticated)
				return
			}
			if err := application.Authorize(account, role, verifiedEmail); err != nil {
				writeMappedError(r.Context(), w, "authorize", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

func requestIDFromContext(ctx context.Context) string {
	v := ctx.Value(ctxKeyRequestID)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func accountFromContext(ctx context.Context) (domain.Account, bool) {
	account, ok := ctx.Value(ctxKeyAccount).(domain.Account)
	return account, ok
}

func bodyCSRFFromContext(ctx context.Context) string {
	token, _ := ctx.Value(ctxKeyBodyCSRF).(string)
	return token
}

// accessTokenFromRequest prefers an Authorization bearer token over the cookie.
func accessTokenFromRequest(r *http.Request) string {
	if token, ok := bearerTokenFromHeader(r.Header.Get("Authorization")); ok {
		return token
	}
	if cookie, err := r.Cookie(accessCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

func bearerTokenFromHeader(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
