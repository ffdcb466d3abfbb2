package chathub

import "schoolchat/backend/internal/models"

// Client is one live connection of an authenticated user.
// The gateway only talks to connections through this interface.
type Client interface {
	// GetUserID returns the authenticated user behind the connection.
	GetUserID() uint
	// GetConnID returns the unique id of this connection.
	GetConnID() string

	// Send queues an event without blocking. It returns false when the
	// queue is full or the connection is already closed.
	Send(event models.OutboundEvent) bool

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts the connection down. Safe to call more than once.
	Close()
}
