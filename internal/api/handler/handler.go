package handler

import (
	"net/http"

	"schoolchat/backend/internal/auth"
	"schoolchat/backend/internal/chathub"
	"schoolchat/backend/internal/logger"
	"schoolchat/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

// Handler serves the socket endpoint and the chat REST API.
type Handler struct {
	Gateway  *chathub.Gateway
	Storage  storage.Storage
	Verifier auth.Verifier
	Log      logger.Logger
}

func NewHandler(gw *chathub.Gateway, s storage.Storage, v auth.Verifier, log logger.Logger) *Handler {
	return &Handler{Gateway: gw, Storage: s, Verifier: v, Log: log}
}

// Register mounts every route on r. metrics may be nil.
func (h *Handler) Register(r *gin.Engine, metrics http.Handler) {
	r.GET("/healthz", h.Health)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}
	r.GET("/ws", h.ServeWebSocket)

	api := r.Group("/api", h.RequireAuth())
	api.POST("/chats", h.CreateChat)
	api.GET("/chats", h.ListChats)
	api.GET("/chats/:id/messages", h.ListMessages)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"online": h.Gateway.Presence().OnlineCount(),
		"rooms":  h.Gateway.Rooms().RoomCount(),
	})
}
