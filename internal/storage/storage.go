package storage

import (
	"context"
	"log"
	"math"
	"schoolchat/backend/internal/config"
	"schoolchat/backend/internal/models"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrUserNotFound = errors.New("user not found")
	ErrSelfChat     = errors.New("cannot start a chat with yourself")
	ErrRoleConflict = errors.New("a chat needs exactly one student and one teacher")
)

// Storage is the durable side of the chat: chats, messages and read state.
// It is the only writer of persistent state.
type Storage interface {
	FindOrCreateChat(ctx context.Context, userID, targetUserID uint) (*models.Chat, error)
	GetChatByID(ctx context.Context, chatID uint) (*models.Chat, error)
	IsParticipant(chat *models.Chat, userID uint) bool
	ListChatsForUser(ctx context.Context, userID uint) ([]models.ChatSummary, error)

	CreateMessage(ctx context.Context, chatID, senderID uint, content string) (*models.Message, error)
	MarkRead(ctx context.Context, chatID, readerID uint) (int64, error)
	ListMessages(ctx context.Context, chatID uint, page, limit int) (*models.MessagePage, error)

	GetUserByID(ctx context.Context, userID uint) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

var _ Storage = (*Service)(nil)

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
	}
}

// FindOrCreateChat returns the chat between the two users, creating it on first contact.
// Student and teacher are resolved from the users' roles.
func (s *Service) FindOrCreateChat(ctx context.Context, userID, targetUserID uint) (*models.Chat, error) {
	if userID == targetUserID {
		return nil, ErrSelfChat
	}

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	target, err := s.GetUserByID(ctx, targetUserID)
	if err != nil {
		return nil, err
	}

	studentID, teacherID, err := ResolvePair(user, target)
	if err != nil {
		return nil, err
	}

	chat := models.Chat{StudentID: studentID, TeacherID: teacherID}
	db := s.DB.WithContext(ctx)

	// The unique pair index decides concurrent first contacts; the loser reads the winner's row.
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&chat)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "creating chat")
	}
	if res.RowsAffected == 1 {
		log.Printf("INFO: Chat %d created between student %d and teacher %d", chat.ID, studentID, teacherID)
		return &chat, nil
	}

	var existing models.Chat
	if err := db.Where("student_id = ? AND teacher_id = ?", studentID, teacherID).First(&existing).Error; err != nil {
		return nil, errors.Wrap(err, "loading existing chat")
	}
	return &existing, nil
}

func (s *Service) GetChatByID(ctx context.Context, chatID uint) (*models.Chat, error) {
	var chat models.Chat
	err := s.DB.WithContext(ctx).First(&chat, chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		log.Printf("ERROR: Failed to get chat %d: %v", chatID, err)
		return nil, errors.Wrapf(err, "getting chat %d", chatID)
	}
	return &chat, nil
}

func (s *Service) IsParticipant(chat *models.Chat, userID uint) bool {
	return chat != nil && chat.HasParticipant(userID)
}

// ListChatsForUser returns the user's chats, most recently active first, with unread counts.
func (s *Service) ListChatsForUser(ctx context.Context, userID uint) ([]models.ChatSummary, error) {
	db := s.DB.WithContext(ctx)

	var chats []models.Chat
	if err := db.Where("student_id = ? OR teacher_id = ?", userID, userID).
		Order("updated_at desc").
		Find(&chats).Error; err != nil {
		return nil, errors.Wrap(err, "listing chats")
	}
	if len(chats) == 0 {
		return []models.ChatSummary{}, nil
	}

	ids := make([]uint, len(chats))
	for i, c := range chats {
		ids[i] = c.ID
	}

	var counts []struct {
		ChatID uint
		Unread int64
	}
	if err := db.Model(&models.Message{}).
		Select("chat_id, count(*) as unread").
		Where("chat_id IN ? AND sender_id <> ? AND is_read = ?", ids, userID, false).
		Group("chat_id").
		Scan(&counts).Error; err != nil {
		return nil, errors.Wrap(err, "counting unread messages")
	}

	unread := make(map[uint]int64, len(counts))
	for _, c := range counts {
		unread[c.ChatID] = c.Unread
	}

	out := make([]models.ChatSummary, len(chats))
	for i, c := range chats {
		out[i] = models.ChatSummary{Chat: c, UnreadCount: unread[c.ID]}
	}
	return out, nil
}

// CreateMessage stores a message and bumps the chat's updated_at in one transaction.
func (s *Service) CreateMessage(ctx context.Context, chatID, senderID uint, content string) (*models.Message, error) {
	msg := models.Message{
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now(),
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Chat{}).Where("id = ?", chatID).Update("updated_at", msg.CreatedAt)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrChatNotFound
		}
		return tx.Create(&msg).Error
	})
	if err != nil {
		if errors.Is(err, ErrChatNotFound) {
			return nil, err
		}
		log.Printf("ERROR: Failed to save message for chat %d: %v", chatID, err)
		return nil, errors.Wrap(err, "saving message")
	}
	return &msg, nil
}

// MarkRead flips every unread message of the chat not sent by the reader.
func (s *Service) MarkRead(ctx context.Context, chatID, readerID uint) (int64, error) {
	res := s.DB.WithContext(ctx).
		Model(&models.Message{}).
		Where("chat_id = ? AND sender_id <> ? AND is_read = ?", chatID, readerID, false).
		Update("is_read", true)
	if res.Error != nil {
		log.Printf("ERROR: Failed to mark messages read in chat %d: %v", chatID, res.Error)
		return 0, errors.Wrap(res.Error, "marking messages read")
	}
	return res.RowsAffected, nil
}

// ListMessages returns one page of history, newest first.
func (s *Service) ListMessages(ctx context.Context, chatID uint, page, limit int) (*models.MessagePage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = config.DefaultPageSize
	}
	if limit > config.MaxPageSize {
		limit = config.MaxPageSize
	}

	db := s.DB.WithContext(ctx).Model(&models.Message{}).Where("chat_id = ?", chatID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, errors.Wrap(err, "counting messages")
	}

	messages := []models.Message{}
	if err := db.Order("created_at desc, id desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&messages).Error; err != nil {
		log.Printf("ERROR: Failed to get chat history for chat %d: %v", chatID, err)
		return nil, errors.Wrap(err, "listing messages")
	}

	return &models.MessagePage{
		Messages:   messages,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

func (s *Service) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "getting user %d", userID)
	}
	return &user, nil
}

// SaveUser upserts the user read model.
func (s *Service) SaveUser(ctx context.Context, user *models.User) error {
	return s.DB.WithContext(ctx).Save(user).Error
}

// PublishRoomEvent publishes a serialized room event on the relay channel.
func (s *Service) PublishRoomEvent(ctx context.Context, payload []byte) error {
	return s.Redis.Publish(ctx, config.RelayChannel, payload).Err()
}

// SubscribeRoomEvents subscribes to the relay channel.
func (s *Service) SubscribeRoomEvents(ctx context.Context) *redis.PubSub {
	return s.Redis.Subscribe(ctx, config.RelayChannel)
}
