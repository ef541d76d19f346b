package mail

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestRenderTemplates(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"name":         "Ada <script>",
		"link":         "https://app.example.com/verify-email?token=abc",
		"expires_in":   "24 hours",
		"locked_until": "2026-01-02T15:04:05Z",
	}
	for _, name := range []string{TemplateVerifyEmail, TemplatePasswordReset, TemplateAccountLocked, TemplatePasswordChanged} {
		name := name
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			out, err := render(name, data)
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			if out.Subject == "" {
				t.Fatal("expected subject")
			}
			if !strings.Contains(out.Text, "Ada <script>") {
				t.Fatalf("text body should carry the raw name: %q", out.Text)
			}
			if strings.Contains(out.HTML, "<script>") {
				t.Fatalf("html body must escape the name: %q", out.HTML)
			}
			if !strings.Contains(out.Text, "https://app.example.com/verify-email?token=abc") {
				t.Fatalf("text body missing link: %q", out.Text)
			}
		})
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	t.Parallel()

	if _, err := render("welcome-back", nil); err == nil {
		t.Fatal("expected unknown template error")
	}
}

func TestBuildMessageHeaders(t *testing.T) {
	t.Parallel()

	msg, err := buildMessage("no-reply@example.com", "ada@example.com", TemplatePasswordChanged, map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw := buf.String()
	for _, want := range []string{"From: no-reply@example.com", "To: ada@example.com", "Subject: Your password was changed", "text/plain", "text/html"} {
		if !strings.Contains(raw, want) {
			t.Fatalf("message missing %q:\n%s", want, raw)
		}
	}
}

func TestNewSMTPMailerTLSPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		port    int
		wantSSL bool
	}{
		{port: 587, wantSSL: false},
		{port: 465, wantSSL: true},
		{port: 2525, wantSSL: false},
	}
	for _, tt := range tests {
		m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: tt.port, From: "no-reply@example.com"}, nil)
		if m.dialer.SSL != tt.wantSSL {
			t.Fatalf("port %d: ssl=%v want %v", tt.port, m.dialer.SSL, tt.wantSSL)
		}
	}
}

func TestLoggingMailerDoesNotLogData(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	mailer := NewLoggingMailer(slog.New(slog.NewJSONHandler(&buf, nil)))
	err := mailer.Send(context.Background(), "ada@example.com", TemplateVerifyEmail, map[string]any{
		"name": "Ada",
		"link": "https://app.example.com/verify-email?token=secret-value",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if strings.Contains(buf.String(), "secret-value") {
		t.Fatalf("log leaked token: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "Verify your email address") {
		t.Fatalf("log missing subject: %s", buf.String())
	}
}
