package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/calchub/auth-service/internal/application"
	"github.com/calchub/auth-service/internal/domain"
)

// decodeBody strictly decodes a single JSON object into dst.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.FieldError("body", "is required")
		}
		return domain.FieldError("body", "must be a valid JSON object: "+err.Error())
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return domain.FieldError("body", "must contain a single JSON value")
	}
	return nil
}

// decodeOptionalBody is decodeBody for endpoints whose body may be empty.
func decodeOptionalBody(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil
	}
	return decodeBody(r, dst)
}

func parseIntDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func clientInfo(r *http.Request) application.ClientInfo {
	return application.ClientInfo{
		IPAddress: readIP(r),
		UserAgent: r.UserAgent(),
	}
}

func pageQuery(r *http.Request) application.PageQuery {
	q := r.URL.Query()
	return application.PageQuery{
		Page:  parseIntDefault(q.Get("page"), 1),
		Limit: parseIntDefault(q.Get("limit"), 20),
	}
}
