package mail

import (
	"context"
	"log/slog"
)

// LoggingMailer renders messages and logs them instead of delivering. It is
// used when no SMTP host is configured.
type LoggingMailer struct {
	logger *slog.Logger
}

func NewLoggingMailer(logger *slog.Logger) *LoggingMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingMailer{logger: logger.With("module", "mail", "layer", "adapter")}
}

func (m *LoggingMailer) Send(ctx context.Context, to, template string, data map[string]any) error {
	body, err := render(template, data)
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "mail suppressed",
		"operation", "send",
		"outcome", "logged",
		"template", template,
		"to", to,
		"subject", body.Subject,
	)
	return nil
}
