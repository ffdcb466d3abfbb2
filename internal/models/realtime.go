package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound event names (client -> server).
const (
	EventJoinChat         = "join_chat"
	EventLeaveChat        = "leave_chat"
	EventSendMessage      = "send_message"
	EventMarkMessagesRead = "mark_messages_read"
	EventTypingStart      = "typing_start"
	EventTypingStop       = "typing_stop"
)

// Outbound event names (server -> client).
const (
	EventUserJoinedChat   = "user_joined_chat"
	EventUserLeftChat     = "user_left_chat"
	EventNewMessage       = "new_message"
	EventMessagesRead     = "messages_read"
	EventUserTyping       = "user_typing"
	EventUserOnlineStatus = "user_online_status"
	EventError            = "error"
)

var (
	ErrUnknownEvent     = errors.New("unknown event")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Envelope is the frame format used on the socket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// InboundEvent is one of the client events below. The set is closed.
type InboundEvent interface {
	EventName() string
	inbound()
}

type JoinChat struct {
	ChatID uint `json:"chatId" validate:"gt=0"`
}

type LeaveChat struct {
	ChatID uint `json:"chatId" validate:"gt=0"`
}

type SendMessage struct {
	Content string `json:"content" validate:"required,message_content"`
	ChatID  uint   `json:"chat_id" validate:"gt=0"`
}

type MarkMessagesRead struct {
	ChatID uint `json:"chatId" validate:"gt=0"`
}

// Typing covers both typing_start and typing_stop.
type Typing struct {
	ChatID   uint `json:"chatId" validate:"gt=0"`
	IsTyping bool `json:"-"`
}

func (JoinChat) EventName() string         { return EventJoinChat }
func (LeaveChat) EventName() string        { return EventLeaveChat }
func (SendMessage) EventName() string      { return EventSendMessage }
func (MarkMessagesRead) EventName() string { return EventMarkMessagesRead }
func (t Typing) EventName() string {
	if t.IsTyping {
		return EventTypingStart
	}
	return EventTypingStop
}

func (JoinChat) inbound()         {}
func (LeaveChat) inbound()        {}
func (SendMessage) inbound()      {}
func (MarkMessagesRead) inbound() {}
func (Typing) inbound()           {}

// DecodeInbound parses a raw socket frame into a typed inbound event.
// Only the JSON shape is checked here; field rules are validated by the caller.
func DecodeInbound(raw []byte) (InboundEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	switch env.Event {
	case EventJoinChat:
		id, err := decodeChatID(env.Data)
		return JoinChat{ChatID: id}, err
	case EventLeaveChat:
		id, err := decodeChatID(env.Data)
		return LeaveChat{ChatID: id}, err
	case EventSendMessage:
		var ev SendMessage
		if err := decodeObject(env.Data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventMarkMessagesRead:
		id, err := decodeChatID(env.Data)
		return MarkMessagesRead{ChatID: id}, err
	case EventTypingStart, EventTypingStop:
		id, err := decodeChatID(env.Data)
		return Typing{ChatID: id, IsTyping: env.Event == EventTypingStart}, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// decodeChatID accepts either a bare number or an object {"chatId": n}.
func decodeChatID(data json.RawMessage) (uint, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: missing chatId", ErrMalformedPayload)
	}
	if data[0] != '{' {
		var id uint
		if err := json.Unmarshal(data, &id); err != nil {
			return 0, fmt.Errorf("%w: chatId must be a positive integer", ErrMalformedPayload)
		}
		return id, nil
	}
	var obj struct {
		ChatID uint `json:"chatId"`
	}
	if err := decodeObject(data, &obj); err != nil {
		return 0, err
	}
	return obj.ChatID, nil
}

func decodeObject(data json.RawMessage, dst interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: missing data", ErrMalformedPayload)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// OutboundPayload is implemented by every server event payload.
type OutboundPayload interface {
	EventName() string
}

// OutboundEvent is what gets queued on a client's send channel.
type OutboundEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// NewOutbound wraps a payload into its envelope.
func NewOutbound(p OutboundPayload) OutboundEvent {
	return OutboundEvent{Event: p.EventName(), Data: p}
}

type UserJoinedChat struct {
	ChatID      uint   `json:"chatId"`
	UserID      uint   `json:"userId"`
	OnlineUsers []uint `json:"onlineUsers"`
}

type UserLeftChat struct {
	ChatID      uint   `json:"chatId"`
	UserID      uint   `json:"userId"`
	OnlineUsers []uint `json:"onlineUsers"`
}

type NewMessage struct {
	Message Message `json:"message"`
	ChatID  uint    `json:"chatId"`
}

type MessagesRead struct {
	ChatID uint  `json:"chatId"`
	UserID uint  `json:"userId"`
	Count  int64 `json:"count"`
}

type UserTyping struct {
	ChatID      uint   `json:"chatId"`
	UserID      uint   `json:"userId"`
	IsTyping    bool   `json:"isTyping"`
	TypingUsers []uint `json:"typingUsers"`
}

type UserOnlineStatus struct {
	UserID uint `json:"userId"`
	Online bool `json:"online"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

func (UserJoinedChat) EventName() string   { return EventUserJoinedChat }
func (UserLeftChat) EventName() string     { return EventUserLeftChat }
func (NewMessage) EventName() string       { return EventNewMessage }
func (MessagesRead) EventName() string     { return EventMessagesRead }
func (UserTyping) EventName() string       { return EventUserTyping }
func (UserOnlineStatus) EventName() string { return EventUserOnlineStatus }
func (ErrorEvent) EventName() string       { return EventError }
