package handler

import (
	"net/http"
	"strconv"

	"schoolchat/backend/internal/config"
	"schoolchat/backend/internal/logger"
	"schoolchat/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

type createChatRequest struct {
	TargetUserID uint `json:"target_user_id" binding:"required,gt=0"`
}

// CreateChat finds or creates the caller's chat with the target user.
func (h *Handler) CreateChat(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_user_id is required"})
		return
	}

	id := currentIdentity(c)
	chat, err := h.Storage.FindOrCreateChat(c.Request.Context(), id.UserID, req.TargetUserID)
	if err != nil {
		h.respondError(c, err, logger.Fields{"userId": id.UserID, "target": req.TargetUserID})
		return
	}
	c.JSON(http.StatusOK, chat)
}

// ListChats returns the caller's chats with unread counts.
func (h *Handler) ListChats(c *gin.Context) {
	id := currentIdentity(c)
	chats, err := h.Storage.ListChatsForUser(c.Request.Context(), id.UserID)
	if err != nil {
		h.respondError(c, err, logger.Fields{"userId": id.UserID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// ListMessages returns one page of a chat's history for a participant.
func (h *Handler) ListMessages(c *gin.Context) {
	id := currentIdentity(c)

	chatID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || chatID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", config.DefaultPageSize)

	ctx := c.Request.Context()
	fields := logger.Fields{"userId": id.UserID, "chatId": chatID}

	chat, err := h.Storage.GetChatByID(ctx, uint(chatID))
	if err != nil {
		h.respondError(c, err, fields)
		return
	}
	if !h.Storage.IsParticipant(chat, id.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this chat"})
		return
	}

	result, err := h.Storage.ListMessages(ctx, chat.ID, page, limit)
	if err != nil {
		h.respondError(c, err, fields)
		return
	}
	c.JSON(http.StatusOK, result)
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// respondError maps store errors to HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error, fields logger.Fields) {
	switch {
	case errors.Is(err, storage.ErrSelfChat), errors.Is(err, storage.ErrRoleConflict):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrChatNotFound), errors.Is(err, storage.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.Log.Error("request failed", err, fields)
		c.JSON(http.StatusInternalServerError, gin.H{"error": http.StatusText(http.StatusInternalServerError)})
	}
}
