package config

import "time"

const (
	// Roles as stored in users.role_id
	RoleAdmin   = 1
	RoleStudent = 2
	RoleTeacher = 3

	// Messages
	MaxMessageLength = 5000
	DefaultPageSize  = 50
	MaxPageSize      = 100

	// Connections
	SendBufferSize = 256
	NotifyTimeout  = 5 * time.Second

	// Relay
	RelayChannel         = "chat:broadcast"
	PresenceSyncInterval = 30 * time.Second
	PresenceExpiry       = 3 * PresenceSyncInterval
)
