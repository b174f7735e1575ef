package notify

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Notifier delivers a certificate alert somewhere a human will see it.
type Notifier interface {
	Send(ctx context.Context, title, text string) error
}

// Multi sends to every notifier and returns all of their errors combined.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, title, text string) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Send(ctx, title, text))
	}
	return err
}

// Log writes alerts to the service log. Always available, so alerts are
// never silently dropped when no webhook is configured.
type Log struct {
	L *zap.Logger
}

func (n Log) Send(_ context.Context, title, text string) error {
	if n.L == nil {
		return nil
	}
	n.L.Warn("cert_alert", zap.String("title", title), zap.String("text", text))
	return nil
}
