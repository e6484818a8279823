package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"ai-transform-service/internal/domain"
	"ai-transform-service/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*Notifier)(nil)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts job failure alerts into an operator chat.
type Notifier struct {
	bot    sender
	chatID int64
	log    *zerolog.Logger
}

func NewNotifier(token string, chatID int64, logger *zerolog.Logger) (*Notifier, error) {
	if token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	l := logger.With().Str("component", "TelegramNotifier").Logger()
	return &Notifier{bot: bot, chatID: chatID, log: &l}, nil
}

// JobFailed skips kinds that are expected operating conditions rather than faults.
func (n *Notifier) JobFailed(ctx context.Context, sessionID string, kind domain.ErrorKind) error {
	if !reportable(kind) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, fmt.Sprintf("Generation failed\nsession: %s\nreason: %s", sessionID, kind))
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to send alert")
		return err
	}
	return nil
}

func reportable(kind domain.ErrorKind) bool {
	switch kind {
	case domain.KindProviderRejected, domain.KindProviderUnavailable, domain.KindInternal:
		return true
	default:
		return false
	}
}
