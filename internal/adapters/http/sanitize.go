package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode"
)

const (
	maxBodyBytes   = 64 << 10
	maxStringRunes = 1000
	csrfBodyField  = "_csrf"
)

// sanitizeMiddleware caps the body size and cleans every string in the query
// and in a JSON body: control characters other than newline and tab are
// dropped, values are cut at maxStringRunes and email fields are trimmed and
// lower-cased. Password fields pass through untouched. A top-level _csrf
// field is moved out of the body into the request context.
func sanitizeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			query := r.URL.Query()
			for key, values := range query {
				for i, v := range values {
					values[i] = sanitizeString(key, v)
				}
			}
			r.URL.RawQuery = query.Encode()
		}

		if r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "request body could not be read")
			return
		}

		ctx := r.Context()
		if len(bytes.TrimSpace(raw)) > 0 {
			// Bodies that are not JSON are passed on as-is; the handler's
			// decoder reports them.
			var payload any
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			if err := dec.Decode(&payload); err == nil {
				if obj, ok := payload.(map[string]any); ok {
					if token, ok := obj[csrfBodyField].(string); ok {
						ctx = context.WithValue(ctx, ctxKeyBodyCSRF, strings.TrimSpace(token))
					}
					delete(obj, csrfBodyField)
				}
				if cleaned, err := json.Marshal(sanitizeValue("", payload)); err == nil {
					raw = cleaned
				}
			}
		}

		r = r.WithContext(ctx)
		r.Body = io.NopCloser(bytes.NewReader(raw))
		r.ContentLength = int64(len(raw))
		next.ServeHTTP(w, r)
	})
}

func sanitizeValue(key string, v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, inner := range val {
			val[k] = sanitizeValue(k, inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = sanitizeValue(key, inner)
		}
		return val
	case string:
		return sanitizeString(key, val)
	default:
		return v
	}
}

func sanitizeString(key, value string) string {
	if strings.Contains(strings.ToLower(key), "password") {
		return value
	}
	var b strings.Builder
	b.Grow(len(value))
	n := 0
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		if n == maxStringRunes {
			break
		}
		b.WriteRune(r)
		n++
	}
	out := b.String()
	if strings.EqualFold(key, "email") {
		out = strings.ToLower(strings.TrimSpace(out))
	}
	return out
}
