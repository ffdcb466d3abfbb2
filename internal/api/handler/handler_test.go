package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"schoolchat/backend/internal/api/handler"
	"schoolchat/backend/internal/auth"
	"schoolchat/backend/internal/chathub"
	"schoolchat/backend/internal/config"
	"schoolchat/backend/internal/logger"
	"schoolchat/backend/internal/models"
	"schoolchat/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server   *httptest.Server
	gw       *chathub.Gateway
	store    *storage.Service
	verifier *auth.JWTVerifier
	student  *models.User
	teacher  *models.User
	outsider *models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := storage.OpenDB("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, storage.Migrate(db))

	store := storage.NewStorageService(db, nil)
	verifier := auth.NewJWTVerifier("secret", "schoolchat")
	quiet := logger.NewStdLogger(log.New(io.Discard, "", 0))

	gw := chathub.NewGateway(chathub.Options{
		Store:    store,
		Verifier: verifier,
		Logger:   quiet,
	})

	r := gin.New()
	handler.NewHandler(gw, store, verifier, quiet).Register(r, nil)
	server := httptest.NewServer(r)
	t.Cleanup(func() {
		server.Close()
		gw.Wait()
		_ = sqlDB.Close()
	})

	env := &testEnv{server: server, gw: gw, store: store, verifier: verifier}
	env.student = env.user(t, "ana@school.test", config.RoleStudent)
	env.teacher = env.user(t, "luis@school.test", config.RoleTeacher)
	env.outsider = env.user(t, "eva@school.test", config.RoleStudent)
	return env
}

func (e *testEnv) user(t *testing.T, email string, role int) *models.User {
	u := &models.User{Email: email, Name: email, RoleID: role}
	require.NoError(t, e.store.SaveUser(context.Background(), u))
	return u
}

func (e *testEnv) token(t *testing.T, u *models.User) string {
	tok, err := e.verifier.Issue(u.ID, u.Email, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path string, u *models.User, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(t, u))
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) dial(t *testing.T, u *models.User) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?token=" + e.token(t, u)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// readUntil reads frames until one named event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %s", event)
		if f.Event == event {
			return f
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": event, "data": data}))
}

func TestServeWebSocket_RejectsBadToken(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?token=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/ws", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatOverWebSocket(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/chats", env.student, map[string]uint{"target_user_id": env.teacher.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var chat models.Chat
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&chat))

	student := env.dial(t, env.student)
	readUntil(t, student, models.EventUserOnlineStatus)
	teacher := env.dial(t, env.teacher)
	readUntil(t, teacher, models.EventUserOnlineStatus)

	send(t, student, models.EventJoinChat, chat.ID)
	readUntil(t, student, models.EventUserJoinedChat)
	send(t, teacher, models.EventJoinChat, map[string]uint{"chatId": chat.ID})
	readUntil(t, teacher, models.EventUserJoinedChat)

	send(t, student, models.EventSendMessage, map[string]interface{}{"content": "Hola", "chat_id": chat.ID})
	got := readUntil(t, teacher, models.EventNewMessage)

	var payload models.NewMessage
	require.NoError(t, json.Unmarshal(got.Data, &payload))
	assert.Equal(t, "Hola", payload.Message.Content)
	assert.Equal(t, env.student.ID, payload.Message.SenderID)
	assert.Equal(t, chat.ID, payload.ChatID)

	send(t, teacher, models.EventMarkMessagesRead, map[string]uint{"chatId": chat.ID})
	read := readUntil(t, student, models.EventMessagesRead)
	var readPayload models.MessagesRead
	require.NoError(t, json.Unmarshal(read.Data, &readPayload))
	assert.Equal(t, int64(1), readPayload.Count)

	send(t, student, models.EventSendMessage, map[string]interface{}{"content": "   ", "chat_id": chat.ID})
	errFrame := readUntil(t, student, models.EventError)
	assert.Contains(t, string(errFrame.Data), "validation error")

	require.NoError(t, student.Close())
	status := readUntil(t, teacher, models.EventUserOnlineStatus)
	var st models.UserOnlineStatus
	require.NoError(t, json.Unmarshal(status.Data, &st))
	assert.Equal(t, models.UserOnlineStatus{UserID: env.student.ID, Online: false}, st)

	history := env.do(t, http.MethodGet, fmt.Sprintf("/api/chats/%d/messages", chat.ID), env.teacher, nil)
	require.Equal(t, http.StatusOK, history.StatusCode)
	var page models.MessagePage
	require.NoError(t, json.NewDecoder(history.Body).Decode(&page))
	require.Len(t, page.Messages, 1)
	assert.True(t, page.Messages[0].IsRead)
}

func TestChatsAPI(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/chats", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/chats", env.student, map[string]uint{"target_user_id": env.student.ID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/chats", env.student, map[string]uint{"target_user_id": env.outsider.ID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/chats", env.student, map[string]uint{"target_user_id": 999})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/chats", env.student, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/chats", env.teacher, map[string]uint{"target_user_id": env.student.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var chat models.Chat
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&chat))

	resp = env.do(t, http.MethodGet, "/api/chats", env.student, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Chats []models.ChatSummary `json:"chats"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Chats, 1)
	assert.Equal(t, chat.ID, list.Chats[0].ID)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/chats/%d/messages", chat.ID), env.outsider, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/chats/12345/messages", env.student, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/chats/abc/messages", env.student, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServeWebSocket_ShutdownClosesSockets(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, env.student)
	readUntil(t, conn, models.EventUserOnlineStatus)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, env.gw.Shutdown(ctx))
	assert.Zero(t, env.gw.Presence().ConnectionCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var err error
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "socket should be closed by the server, not time out")
	}

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?token=" + env.token(t, env.teacher)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
