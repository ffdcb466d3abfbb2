package chathub

import (
	"context"
	"sync"
	"time"

	"schoolchat/backend/internal/config"
	"schoolchat/backend/internal/logger"
	"schoolchat/backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 32 * 1024
)

// WebSocketClient implements Client over a gorilla websocket.
type WebSocketClient struct {
	UserID  uint
	ConnID  string
	Conn    *websocket.Conn
	Gateway *Gateway

	send   chan models.OutboundEvent
	mu     sync.Mutex
	closed bool
}

func NewWebSocketClient(conn *websocket.Conn, gateway *Gateway, userID uint) *WebSocketClient {
	return &WebSocketClient{
		UserID:  userID,
		ConnID:  uuid.NewString(),
		Conn:    conn,
		Gateway: gateway,
		send:    make(chan models.OutboundEvent, config.SendBufferSize),
	}
}

func (c *WebSocketClient) GetUserID() uint   { return c.UserID }
func (c *WebSocketClient) GetConnID() string { return c.ConnID }

func (c *WebSocketClient) Send(ev models.OutboundEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Run starts the pumps. The caller must have called Gateway.Connect first.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close stops the write pump, which closes the socket and ends the read pump.
func (c *WebSocketClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump handles frames one at a time so a connection's events are
// processed in arrival order.
func (c *WebSocketClient) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Gateway.Disconnect(c)
		c.Close()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Gateway.log.Warn("unexpected socket close", err, logger.Fields{"userId": c.UserID, "connId": c.ConnID})
			}
			return
		}

		// Errors are already reported to the client and logged.
		_ = c.Gateway.HandleRaw(ctx, c, message)
	}
}

// writePump writes queued events to the socket and keeps it alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
