package chathub_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"schoolchat/backend/internal/chathub"
	"schoolchat/backend/internal/models"
	"schoolchat/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
)

// MockStorage is a testify mock of storage.Storage.
type MockStorage struct {
	mock.Mock
}

var _ storage.Storage = (*MockStorage)(nil)

func (m *MockStorage) FindOrCreateChat(ctx context.Context, userID, targetUserID uint) (*models.Chat, error) {
	args := m.Called(ctx, userID, targetUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

func (m *MockStorage) GetChatByID(ctx context.Context, chatID uint) (*models.Chat, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

// IsParticipant is not mocked; it is pure.
func (m *MockStorage) IsParticipant(chat *models.Chat, userID uint) bool {
	return chat != nil && chat.HasParticipant(userID)
}

func (m *MockStorage) ListChatsForUser(ctx context.Context, userID uint) ([]models.ChatSummary, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.ChatSummary), args.Error(1)
}

func (m *MockStorage) CreateMessage(ctx context.Context, chatID, senderID uint, content string) (*models.Message, error) {
	args := m.Called(ctx, chatID, senderID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStorage) MarkRead(ctx context.Context, chatID, readerID uint) (int64, error) {
	args := m.Called(ctx, chatID, readerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) ListMessages(ctx context.Context, chatID uint, page, limit int) (*models.MessagePage, error) {
	args := m.Called(ctx, chatID, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessagePage), args.Error(1)
}

func (m *MockStorage) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) SaveUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockClient records every event queued for it.
type MockClient struct {
	userID uint
	connID string

	mu      sync.Mutex
	events  []models.OutboundEvent
	full    bool
	closed  int
	onClose func()
}

var _ chathub.Client = (*MockClient)(nil)

var connSeq struct {
	sync.Mutex
	n int
}

func newMockClient(userID uint) *MockClient {
	connSeq.Lock()
	connSeq.n++
	id := fmt.Sprintf("conn-%d", connSeq.n)
	connSeq.Unlock()
	return &MockClient{userID: userID, connID: id}
}

func (c *MockClient) GetUserID() uint   { return c.userID }
func (c *MockClient) GetConnID() string { return c.connID }
func (c *MockClient) Run()              {}

func (c *MockClient) Send(ev models.OutboundEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed > 0 {
		return false
	}
	c.events = append(c.events, ev)
	return true
}

func (c *MockClient) Close() {
	c.mu.Lock()
	c.closed++
	hook := c.onClose
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// OnClose sets a hook run on every Close, standing in for the read pump.
func (c *MockClient) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

func (c *MockClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed > 0
}

// Events returns the recorded events with the given name.
func (c *MockClient) Events(name string) []models.OutboundEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []models.OutboundEvent
	for _, ev := range c.events {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// MockBus captures published relay payloads.
type MockBus struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (b *MockBus) PublishRoomEvent(_ context.Context, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *MockBus) SubscribeRoomEvents(context.Context) *redis.PubSub { return nil }

func (b *MockBus) Payloads() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.payloads...)
}

// Relayed returns the published payloads carrying the named event.
func (b *MockBus) Relayed(event string) [][]byte {
	var out [][]byte
	for _, p := range b.Payloads() {
		var env struct {
			Event struct {
				Event string `json:"event"`
			} `json:"event"`
		}
		if json.Unmarshal(p, &env) == nil && env.Event.Event == event {
			out = append(out, p)
		}
	}
	return out
}

// MockPushSender is a testify mock of chathub.PushSender.
type MockPushSender struct {
	mock.Mock
}

func (m *MockPushSender) Push(ctx context.Context, n chathub.PushNotification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}
