package notify

import (
	"context"

	"schoolchat/backend/internal/chathub"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender delivers notifications through the school's Telegram bot
// to users who linked their account.
type TelegramSender struct {
	bot botAPI
}

var _ chathub.PushSender = (*TelegramSender)(nil)

func NewTelegramSender(token string) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram bot")
	}
	bot.Debug = false
	return &TelegramSender{bot: bot}, nil
}

func newTelegramSenderWithBot(bot botAPI) *TelegramSender {
	return &TelegramSender{bot: bot}
}

// Push sends the notification. Users without a linked chat are skipped.
func (s *TelegramSender) Push(_ context.Context, n chathub.PushNotification) error {
	if n.TelegramChatID == 0 {
		return nil
	}

	text := "<b>" + tgbotapi.EscapeText(tgbotapi.ModeHTML, n.Title) + "</b>\n" + tgbotapi.EscapeText(tgbotapi.ModeHTML, n.Body)
	msg := tgbotapi.NewMessage(n.TelegramChatID, text)
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := s.bot.Send(msg); err != nil {
		return errors.Wrapf(err, "sending telegram message to %d", n.TelegramChatID)
	}
	return nil
}
