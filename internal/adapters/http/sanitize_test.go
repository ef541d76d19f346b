package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{name: "strips control characters", key: "fullName", value: "Ada\x00 Love\x1blace", want: "Ada Lovelace"},
		{name: "keeps newline and tab", key: "note", value: "a\tb\nc", want: "a\tb\nc"},
		{name: "normalizes email", key: "email", value: "  Ada@Example.COM ", want: "ada@example.com"},
		{name: "password untouched", key: "newPassword", value: " P\x01ss ", want: " P\x01ss "},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := sanitizeString(tc.key, tc.value); got != tc.want {
				t.Fatalf("sanitizeString(%q, %q) = %q, want %q", tc.key, tc.value, got, tc.want)
			}
		})
	}

	long := sanitizeString("fullName", strings.Repeat("é", maxStringRunes+50))
	if n := utf8.RuneCountInString(long); n != maxStringRunes {
		t.Fatalf("expected cap at %d runes, got %d", maxStringRunes, n)
	}
}

func TestSanitizeMiddlewareRewritesBodyAndExtractsCSRF(t *testing.T) {
	t.Parallel()

	var (
		gotBody map[string]any
		gotCSRF string
		gotPage string
	)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		gotCSRF = bodyCSRFFromContext(r.Context())
		gotPage = r.URL.Query().Get("page")
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/x?page=2%00", strings.NewReader(
		`{"email":" BOB@Example.com ","profile":{"bio":"hi\u0007there"},"tags":["a\u0000b"],"_csrf":" tok ","age":30}`,
	))
	res := httptest.NewRecorder()
	sanitizeMiddleware(next).ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", res.Code)
	}
	if gotCSRF != "tok" {
		t.Fatalf("expected csrf token moved to context, got %q", gotCSRF)
	}
	if _, ok := gotBody["_csrf"]; ok {
		t.Fatalf("_csrf should be removed from the body: %v", gotBody)
	}
	if gotBody["email"] != "bob@example.com" {
		t.Fatalf("email not normalized: %v", gotBody["email"])
	}
	if bio := gotBody["profile"].(map[string]any)["bio"]; bio != "hithere" {
		t.Fatalf("nested string not sanitized: %q", bio)
	}
	if tag := gotBody["tags"].([]any)[0]; tag != "ab" {
		t.Fatalf("array string not sanitized: %q", tag)
	}
	if age, _ := gotBody["age"].(float64); age != 30 {
		t.Fatalf("numbers must survive: %v", gotBody["age"])
	}
	if gotPage != "2" {
		t.Fatalf("query not sanitized: %q", gotPage)
	}
}

func TestSanitizeMiddlewarePassesNonJSONThrough(t *testing.T) {
	t.Parallel()

	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		got = string(raw)
	})
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("not json"))
	sanitizeMiddleware(next).ServeHTTP(httptest.NewRecorder(), req)
	if got != "not json" {
		t.Fatalf("expected raw body, got %q", got)
	}
}

func TestBearerTokenFromHeader(t *testing.T) {
	t.Parallel()

	if token, ok := bearerTokenFromHeader("bearer abc "); !ok || token != "abc" {
		t.Fatalf("expected case-insensitive scheme, got %q %v", token, ok)
	}
	if _, ok := bearerTokenFromHeader("Basic abc"); ok {
		t.Fatalf("basic auth must not be accepted")
	}
	if _, ok := bearerTokenFromHeader("Bearer   "); ok {
		t.Fatalf("empty bearer must not be accepted")
	}
}
