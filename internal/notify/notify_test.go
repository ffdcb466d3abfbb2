package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"testing"

	"schoolchat/backend/internal/chathub"
	"schoolchat/backend/internal/config"
	"schoolchat/backend/internal/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testPush = chathub.PushNotification{
	UserID:         3,
	Language:       "es",
	TelegramChatID: 777,
	ChatID:         10,
	MessageID:      5,
	SenderID:       2,
	Title:          "Nuevo mensaje de Ana",
	Body:           "<tarea> & examen",
}

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

type mockBot struct {
	mock.Mock
}

func (m *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return tgbotapi.Message{}, args.Error(0)
}

func TestKafkaSender_Push(t *testing.T) {
	w := new(mockWriter)
	w.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		if len(msgs) != 1 || string(msgs[0].Key) != "3" {
			return false
		}
		var got chathub.PushNotification
		return json.Unmarshal(msgs[0].Value, &got) == nil && got == testPush
	})).Return(nil).Once()

	require.NoError(t, newKafkaSenderWithWriter(w).Push(context.Background(), testPush))
	w.AssertExpectations(t)
}

func TestKafkaSender_PushError(t *testing.T) {
	w := new(mockWriter)
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("no brokers")).Once()

	err := newKafkaSenderWithWriter(w).Push(context.Background(), testPush)
	assert.ErrorContains(t, err, "no brokers")
}

func TestTelegramSender_Push(t *testing.T) {
	bot := new(mockBot)
	bot.On("Send", mock.MatchedBy(func(c tgbotapi.MessageConfig) bool {
		return c.ChatID == 777 &&
			c.ParseMode == tgbotapi.ModeHTML &&
			c.Text == "<b>Nuevo mensaje de Ana</b>\n&lt;tarea&gt; &amp; examen"
	})).Return(nil).Once()

	require.NoError(t, newTelegramSenderWithBot(bot).Push(context.Background(), testPush))
	bot.AssertExpectations(t)
}

func TestTelegramSender_EscapesTitle(t *testing.T) {
	bot := new(mockBot)
	n := testPush
	n.Title = "Nuevo mensaje de <Ana & Co>"
	n.Body = "ok"
	bot.On("Send", mock.MatchedBy(func(c tgbotapi.MessageConfig) bool {
		return c.Text == "<b>Nuevo mensaje de &lt;Ana &amp; Co&gt;</b>\nok"
	})).Return(nil).Once()

	require.NoError(t, newTelegramSenderWithBot(bot).Push(context.Background(), n))
	bot.AssertExpectations(t)
}

func TestTelegramSender_SkipsUnlinkedUsers(t *testing.T) {
	bot := new(mockBot)
	n := testPush
	n.TelegramChatID = 0

	require.NoError(t, newTelegramSenderWithBot(bot).Push(context.Background(), n))
	bot.AssertNotCalled(t, "Send", mock.Anything)
}

func TestLogSender_Push(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(logger.NewStdLogger(log.New(&buf, "", 0)))

	require.NoError(t, s.Push(context.Background(), testPush))
	assert.Contains(t, buf.String(), "INFO: offline notification")
	assert.Contains(t, buf.String(), "userId=3")
}

func TestNew_SelectsSink(t *testing.T) {
	l := logger.NewStdLogger(log.New(&bytes.Buffer{}, "", 0))

	s, closer, err := New(&config.Config{Notifier: "log"}, l)
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)
	assert.NoError(t, closer())

	s, _, err = New(&config.Config{Notifier: "kafka", KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "t"}, l)
	require.NoError(t, err)
	assert.IsType(t, &KafkaSender{}, s)

	_, _, err = New(&config.Config{Notifier: "pigeon"}, l)
	assert.Error(t, err)
}
