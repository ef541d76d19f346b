package http

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/calchub/auth-service/internal/domain"
)

type apiError struct {
	Status  string         `json:"status"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// errorResponse is a domain error translated to the wire.
type errorResponse struct {
	status     int
	code       string
	message    string
	details    map[string]any
	retryAfter time.Duration
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, map[string]any{
		"status": "success",
		"data":   data,
	})
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]any{
		"status":  "success",
		"message": message,
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeErrorResponse(w, errorResponse{status: statusCode, code: code, message: message})
}

func writeErrorResponse(w http.ResponseWriter, resp errorResponse) {
	if resp.retryAfter > 0 {
		secs := int(math.Ceil(resp.retryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeJSON(w, resp.status, apiError{
		Status:  "error",
		Code:    resp.code,
		Message: resp.message,
		Details: resp.details,
	})
}

// writeMappedError logs err under operation and answers with its mapping.
func writeMappedError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	resp := mapDomainError(err)
	logOperationError(ctx, operation, resp, err)
	writeErrorResponse(w, resp)
}

// writeEphemeralTokenError answers like writeMappedError except that a bad
// verification or reset token is a 400: the caller is not authenticating.
func writeEphemeralTokenError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	resp := mapDomainError(err)
	if errors.Is(err, domain.ErrTokenExpired) || errors.Is(err, domain.ErrTokenInvalid) {
		resp.status = http.StatusBadRequest
	}
	logOperationError(ctx, operation, resp, err)
	writeErrorResponse(w, resp)
}

func mapDomainError(err error) errorResponse {
	var (
		validationErr  *domain.ValidationError
		credentialsErr *domain.CredentialsError
		lockedErr      *domain.LockedError
		rateErr        *domain.RateLimitError
	)
	switch {
	case errors.As(err, &validationErr):
		return errorResponse{
			status:  http.StatusBadRequest,
			code:    "VALIDATION_ERROR",
			message: "request validation failed",
			details: map[string]any{"fields": validationErr.Fields},
		}
	case errors.Is(err, domain.ErrInvalidInput):
		return errorResponse{status: http.StatusBadRequest, code: "VALIDATION_ERROR", message: err.Error()}
	case errors.As(err, &credentialsErr):
		return errorResponse{
			status:  http.StatusUnauthorized,
			code:    "INVALID_CREDENTIALS",
			message: "invalid email or password",
			details: map[string]any{"remainingAttempts": credentialsErr.RemainingAttempts},
		}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return errorResponse{status: http.StatusUnauthorized, code: "INVALID_CREDENTIALS", message: "invalid email or password"}
	case errors.As(err, &lockedErr):
		return errorResponse{
			status:     http.StatusLocked,
			code:       "ACCOUNT_LOCKED",
			message:    "account temporarily locked after too many failed attempts",
			details:    map[string]any{"lockedUntil": lockedErr.Until.UTC()},
			retryAfter: time.Until(lockedErr.Until),
		}
	case errors.Is(err, domain.ErrAccountLocked):
		return errorResponse{status: http.StatusLocked, code: "ACCOUNT_LOCKED", message: "account temporarily locked after too many failed attempts"}
	case errors.Is(err, domain.ErrAccountDeactivated):
		return errorResponse{status: http.StatusForbidden, code: "ACCOUNT_DEACTIVATED", message: "account is deactivated"}
	case errors.Is(err, domain.ErrDuplicateEmail):
		return errorResponse{status: http.StatusConflict, code: "DUPLICATE_EMAIL", message: "an account with this email already exists"}
	case errors.Is(err, domain.ErrTokenExpired):
		return errorResponse{status: http.StatusUnauthorized, code: "TOKEN_EXPIRED", message: "token expired"}
	case errors.Is(err, domain.ErrTokenInvalid):
		return errorResponse{status: http.StatusUnauthorized, code: "TOKEN_INVALID", message: "token invalid"}
	case errors.Is(err, domain.ErrCSRFTokenMissing):
		return errorResponse{status: http.StatusForbidden, code: "CSRF_TOKEN_MISSING", message: "csrf token missing"}
	case errors.Is(err, domain.ErrCSRFTokenInvalid):
		return errorResponse{status: http.StatusForbidden, code: "CSRF_TOKEN_INVALID", message: "csrf token invalid or already used"}
	case errors.As(err, &rateErr):
		return errorResponse{
			status:     http.StatusTooManyRequests,
			code:       "RATE_LIMITED",
			message:    "too many requests",
			details:    map[string]any{"retryAfterSeconds": int(math.Ceil(rateErr.RetryAfter.Seconds()))},
			retryAfter: rateErr.RetryAfter,
		}
	case errors.Is(err, domain.ErrRateLimited):
		return errorResponse{status: http.StatusTooManyRequests, code: "RATE_LIMITED", message: "too many requests"}
	case errors.Is(err, domain.ErrUnauthenticated):
		return errorResponse{status: http.StatusUnauthorized, code: "UNAUTHENTICATED", message: "authentication required"}
	case errors.Is(err, domain.ErrForbidden):
		return errorResponse{status: http.StatusForbidden, code: "FORBIDDEN", message: "insufficient permissions"}
	case errors.Is(err, domain.ErrEmailAlreadyVerified):
		return errorResponse{status: http.StatusConflict, code: "EMAIL_ALREADY_VERIFIED", message: "email is already verified"}
	case errors.Is(err, domain.ErrNotFound):
		return errorResponse{status: http.StatusNotFound, code: "NOT_FOUND", message: "resource not found"}
	default:
		return errorResponse{status: http.StatusInternalServerError, code: "INTERNAL_ERROR", message: "internal server error"}
	}
}
