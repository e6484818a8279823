package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"ai-transform-service/internal/domain"
	"ai-transform-service/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*NoopNotifier)(nil)

// NoopNotifier logs alerts instead of sending them. Used when no bot token is configured.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	l := logger.With().Str("component", "NoopNotifier").Logger()
	return &NoopNotifier{log: &l}
}

func (n *NoopNotifier) JobFailed(_ context.Context, sessionID string, kind domain.ErrorKind) error {
	n.log.Info().Str("session_id", sessionID).Str("reason", string(kind)).Msg("job failed")
	return nil
}
