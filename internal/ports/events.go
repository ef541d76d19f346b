package ports

import "context"

// EventPublisher is the outbound domain-event publish port.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}

// Mailer delivers templated transactional email. Callers treat failures as best-effort.
type Mailer interface {
	Send(ctx context.Context, to, template string, data map[string]any) error
}
