package notify

import (
	"context"

	"schoolchat/backend/internal/chathub"
	"schoolchat/backend/internal/logger"
)

// LogSender only logs notifications. Used in development.
type LogSender struct {
	log logger.Logger
}

var _ chathub.PushSender = (*LogSender)(nil)

func NewLogSender(log logger.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Push(_ context.Context, n chathub.PushNotification) error {
	s.log.Info("offline notification", logger.Fields{
		"userId":    n.UserID,
		"chatId":    n.ChatID,
		"messageId": n.MessageID,
		"title":     n.Title,
	})
	return nil
}
