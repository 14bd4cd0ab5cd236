package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
	"github.com/sanskarpan/Latexy/internal/infra/logging"
)

var _ adapter.Notifier = (*LogNotifier)(nil)

// LogNotifier writes notifications to the log instead of delivering them.
// Used when no delivery channel is configured.
type LogNotifier struct {
	log *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	compLog := logger.With().Str("component", "LogNotifier").Logger()
	return &LogNotifier{log: &compLog}
}

func (l *LogNotifier) Name() string { return "log" }

func (l *LogNotifier) Send(ctx context.Context, n adapter.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.log.Info().
		Str("recipient", logging.Redact(n.Recipient)).
		Str("kind", n.Kind).
		Str("subject", n.Subject).
		Int("body_len", len(n.Body)).
		Msg("notification")
	return nil
}
