package chathub

import (
	"context"

	"schoolchat/backend/internal/localization"
	"schoolchat/backend/internal/logger"
	"schoolchat/backend/internal/models"
	"schoolchat/backend/internal/storage"
)

const previewLength = 120

// PushNotification is a ready-to-send notification for a recipient who is offline.
type PushNotification struct {
	UserID         uint   `json:"user_id"`
	Email          string `json:"email"`
	Language       string `json:"language"`
	TelegramChatID int64  `json:"telegram_chat_id,omitempty"`
	PushToken      string `json:"push_token,omitempty"`
	ChatID         uint   `json:"chat_id"`
	MessageID      uint   `json:"message_id"`
	SenderID       uint   `json:"sender_id"`
	Title          string `json:"title"`
	Body           string `json:"body"`
}

// PushSender hands notifications to the delivery channel (kafka, telegram...).
type PushSender interface {
	Push(ctx context.Context, n PushNotification) error
}

// OfflineNotifier decides whether a new message needs an out-of-band notification.
type OfflineNotifier struct {
	store    storage.Storage
	presence *Presence
	sender   PushSender
	texts    *localization.Localizer
	log      logger.Logger
}

func NewOfflineNotifier(store storage.Storage, presence *Presence, sender PushSender, texts *localization.Localizer, log logger.Logger) *OfflineNotifier {
	return &OfflineNotifier{
		store:    store,
		presence: presence,
		sender:   sender,
		texts:    texts,
		log:      log,
	}
}

// ConsiderNotify notifies the chat's other participant if they have no live connection.
// Any failure is returned wrapped in ErrNotification; callers only log it.
func (n *OfflineNotifier) ConsiderNotify(ctx context.Context, chat *models.Chat, senderID uint, msg *models.Message) error {
	if n.sender == nil {
		return nil
	}

	recipientID := chat.OtherParticipant(senderID)
	if n.presence.IsOnline(recipientID) {
		return nil
	}

	recipient, err := n.store.GetUserByID(ctx, recipientID)
	if err != nil {
		return newError(ErrNotification, err)
	}

	senderName := ""
	if sender, err := n.store.GetUserByID(ctx, senderID); err == nil {
		senderName = sender.Name
	}

	push := n.build(recipient, senderName, chat, msg)
	if err := n.sender.Push(ctx, push); err != nil {
		return newError(ErrNotification, err)
	}

	n.log.Debug("offline notification queued", logger.Fields{"chatId": chat.ID, "userId": recipientID})
	return nil
}

func (n *OfflineNotifier) build(recipient *models.User, senderName string, chat *models.Chat, msg *models.Message) PushNotification {
	lang := recipient.Language
	if lang == "" {
		lang = localization.DefaultLanguage
	}

	title, body := senderName, preview(msg.Content)
	if n.texts != nil {
		if senderName == "" {
			senderName = n.texts.GetString(lang, "new_message_fallback_sender")
		}
		title = n.texts.Render(lang, "new_message_title", map[string]string{"sender": senderName})
		body = n.texts.Render(lang, "new_message_body", map[string]string{"preview": preview(msg.Content)})
	}

	return PushNotification{
		UserID:         recipient.ID,
		Email:          recipient.Email,
		Language:       lang,
		TelegramChatID: recipient.TelegramChatID,
		PushToken:      recipient.PushToken,
		ChatID:         chat.ID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		Title:          title,
		Body:           body,
	}
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "…"
}
