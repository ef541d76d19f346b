package mail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gomail "github.com/go-mail/mail/v2"
)

// SMTPConfig configures the outbound SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	logger *slog.Logger
}

// NewSMTPMailer picks the TLS mode from the port: 587 requires STARTTLS,
// 465 is implicit TLS, and anything else upgrades opportunistically.
func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) *SMTPMailer {
	if logger == nil {
		logger = slog.Default()
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.Timeout = 30 * time.Second
	switch cfg.Port {
	case 587:
		dialer.StartTLSPolicy = gomail.MandatoryStartTLS
	case 465:
		dialer.SSL = true
		dialer.StartTLSPolicy = gomail.NoStartTLS
	default:
		dialer.StartTLSPolicy = gomail.OpportunisticStartTLS
	}
	return &SMTPMailer{
		dialer: dialer,
		from:   cfg.From,
		logger: logger.With("module", "mail", "layer", "adapter"),
	}
}

func (m *SMTPMailer) Send(ctx context.Context, to, template string, data map[string]any) error {
	msg, err := buildMessage(m.from, to, template, data)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.dialer.DialAndSend(msg); err != nil {
		m.logger.WarnContext(ctx, "mail delivery failed",
			"operation", "send",
			"outcome", "failure",
			"template", template,
			"error", err,
		)
		return fmt.Errorf("send %s mail: %w", template, err)
	}
	m.logger.InfoContext(ctx, "mail delivered",
		"operation", "send",
		"outcome", "success",
		"template", template,
	)
	return nil
}

func buildMessage(from, to, template string, data map[string]any) (*gomail.Message, error) {
	body, err := render(template, data)
	if err != nil {
		return nil, err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", body.Subject)
	msg.SetBody("text/plain", body.Text)
	msg.AddAlternative("text/html", body.HTML)
	return msg, nil
}
