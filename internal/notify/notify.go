// Package notify delivers offline notifications produced by the chat gateway.
package notify

import (
	"schoolchat/backend/internal/chathub"
	"schoolchat/backend/internal/config"
	"schoolchat/backend/internal/logger"

	"github.com/pkg/errors"
)

// New builds the sink selected by cfg.Notifier. The returned closer flushes it.
func New(cfg *config.Config, log logger.Logger) (chathub.PushSender, func() error, error) {
	switch cfg.Notifier {
	case "", "log":
		return NewLogSender(log), func() error { return nil }, nil
	case "kafka":
		s := NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic)
		return s, s.Close, nil
	case "telegram":
		s, err := NewTelegramSender(cfg.TelegramBotToken)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	}
	return nil, nil, errors.Errorf("unknown notifier %q", cfg.Notifier)
}
