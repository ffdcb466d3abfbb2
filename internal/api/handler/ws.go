package handler

import (
	"net/http"
	"time"

	"schoolchat/backend/internal/auth"
	"schoolchat/backend/internal/chathub"
	"schoolchat/backend/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the platform's ingress.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket authenticates the caller and upgrades the connection.
// An invalid token is rejected before the upgrade.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	if !h.Gateway.Accepting() {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
		return
	}

	id, err := h.Gateway.Authenticate(c.Request.Context(), auth.TokenFromRequest(c.Request))
	if err != nil {
		h.Log.Warn("socket rejected", err, logger.Fields{"remote": c.ClientIP()})
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.Log.Warn("websocket upgrade failed", err, logger.Fields{"userId": id.UserID})
		return
	}

	client := chathub.NewWebSocketClient(conn, h.Gateway, id.UserID)
	if err := h.Gateway.Connect(client); err != nil {
		h.Log.Warn("socket refused", err, logger.Fields{"userId": id.UserID})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server is shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}
	client.Run()
}
