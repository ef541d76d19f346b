package http

import (
	"context"
	"log/slog"
	"net/http"
)

const serviceName = "auth-service"

func httpLogger() *slog.Logger {
	return slog.Default().With(
		"service", serviceName,
		"module", "http",
		"layer", "adapter",
	)
}

// logOperationError records a failed handler outcome. Client mistakes are
// warnings, throttling and auth rejections stay at info, server faults are errors.
func logOperationError(ctx context.Context, operation string, resp errorResponse, err error) {
	fields := []any{
		"operation", operation,
		"outcome", "failure",
		"status_code", resp.status,
		"error_code", resp.code,
		"request_id", requestIDFromContext(ctx),
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	switch {
	case resp.status >= http.StatusInternalServerError:
		httpLogger().ErrorContext(ctx, "http operation failed", fields...)
	case resp.status == http.StatusUnauthorized, resp.status == http.StatusTooManyRequests:
		httpLogger().InfoContext(ctx, "http operation rejected", fields...)
	default:
		httpLogger().WarnContext(ctx, "http operation failed", fields...)
	}
}
