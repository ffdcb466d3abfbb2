package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"schoolchat/backend/internal/auth"
	"schoolchat/backend/internal/config"
	"schoolchat/backend/internal/models"
	"schoolchat/backend/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *storage.Service {
	t.Helper()
	db, err := storage.OpenDB("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, storage.Migrate(db))
	return storage.NewStorageService(db, nil)
}

func TestCommands_EndToEnd(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	var out bytes.Buffer

	student := &models.User{Email: "ana@school.test", RoleID: config.RoleStudent}
	teacher := &models.User{Email: "luis@school.test", RoleID: config.RoleTeacher}
	require.NoError(t, s.SaveUser(ctx, student))
	require.NoError(t, s.SaveUser(ctx, teacher))

	require.NoError(t, openChat(ctx, &out, s, teacher.ID, student.ID))
	assert.Contains(t, out.String(), fmt.Sprintf("student %d, teacher %d", student.ID, teacher.ID))

	chat, err := s.FindOrCreateChat(ctx, student.ID, teacher.ID)
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, chat.ID, teacher.ID, "Tarea para el lunes")
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, markRead(ctx, &out, s, chat.ID, student.ID))
	assert.Equal(t, "1 messages marked read.\n", out.String())

	out.Reset()
	require.NoError(t, printHistory(ctx, &out, s, chat.ID, 1, 10))
	assert.Contains(t, out.String(), "page 1/1 (1 messages)")
	assert.Contains(t, out.String(), "✓ user")
	assert.Contains(t, out.String(), "Tarea para el lunes")

	assert.Error(t, markRead(ctx, &out, s, chat.ID, 999))
	assert.ErrorIs(t, printHistory(ctx, &out, s, 999, 1, 10), storage.ErrChatNotFound)
}

func TestIssueToken(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	u := &models.User{Email: "ana@school.test", RoleID: config.RoleStudent}
	require.NoError(t, s.SaveUser(ctx, u))

	v := auth.NewJWTVerifier("secret", "schoolchat")
	var out bytes.Buffer
	require.NoError(t, issueToken(ctx, &out, s, v, u.ID, time.Hour))

	id, err := v.Verify(ctx, strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, u.ID, id.UserID)

	assert.ErrorIs(t, issueToken(ctx, &out, s, v, 999, time.Hour), storage.ErrUserNotFound)
}

func TestSeed(t *testing.T) {
	s := newTestStorage(t)
	var out bytes.Buffer

	require.NoError(t, seed(context.Background(), &out, s, 6, 2, 42))
	assert.Contains(t, out.String(), "Seeded 2 teachers, 6 students, 6 chats")

	var chats int64
	require.NoError(t, s.DB.Model(&models.Chat{}).Count(&chats).Error)
	assert.Equal(t, int64(6), chats)

	var messages int64
	require.NoError(t, s.DB.Model(&models.Message{}).Count(&messages).Error)
	assert.GreaterOrEqual(t, messages, int64(6))
}
