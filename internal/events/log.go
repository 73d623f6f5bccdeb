package events

import (
	"context"
	"log/slog"
)

// LogPublisher records events in the application log. It is used when no
// broker is configured.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	p.log.InfoContext(ctx, "event", slog.String("routing_key", routingKey), slog.Any("payload", payload))
	return nil
}
