package chathub

import (
	"sort"
	"sync"

	"schoolchat/backend/internal/models"
)

// RoomSnapshot is the broadcastable view of a room.
type RoomSnapshot struct {
	ChatID      uint   `json:"chatId"`
	OnlineUsers []uint `json:"onlineUsers"`
}

type roomState struct {
	online  map[uint]int // user -> joined sockets
	typing  map[uint]struct{}
	sockets map[string]Client
}

func newRoomState() *roomState {
	return &roomState{
		online:  make(map[uint]int),
		typing:  make(map[uint]struct{}),
		sockets: make(map[string]Client),
	}
}

func (r *roomState) onlineUsers() []uint { return sortedKeys(r.online) }
func (r *roomState) typingUsers() []uint  { return sortedKeys(r.typing) }

// others returns the sockets not owned by userID.
func (r *roomState) others(userID uint) []Client {
	out := make([]Client, 0, len(r.sockets))
	for _, c := range r.sockets {
		if c.GetUserID() != userID {
			out = append(out, c)
		}
	}
	return out
}

func (r *roomState) all() []Client {
	out := make([]Client, 0, len(r.sockets))
	for _, c := range r.sockets {
		out = append(out, c)
	}
	return out
}

type delivery struct {
	to    []Client
	event models.OutboundEvent
}

// Rooms tracks who is joined to which chat and who is typing there.
// Recipients are computed under the lock; sends happen after it is released.
type Rooms struct {
	mu      sync.Mutex
	rooms   map[uint]*roomState
	deliver func(Client, models.OutboundEvent)
}

func NewRooms(deliver func(Client, models.OutboundEvent)) *Rooms {
	return &Rooms{
		rooms:   make(map[uint]*roomState),
		deliver: deliver,
	}
}

func (r *Rooms) flush(ds []delivery) {
	for _, d := range ds {
		for _, c := range d.to {
			r.deliver(c, d.event)
		}
	}
}

// Join adds the connection to the chat's room. The user must be one of the
// chat's two participants. Other occupants receive user_joined_chat.
func (r *Rooms) Join(chat *models.Chat, c Client) (RoomSnapshot, error) {
	userID := c.GetUserID()
	if !chat.HasParticipant(userID) {
		return RoomSnapshot{}, newErrorf(ErrForbidden, "user %d is not a participant of chat %d", userID, chat.ID)
	}

	r.mu.Lock()
	room, ok := r.rooms[chat.ID]
	if !ok {
		room = newRoomState()
		r.rooms[chat.ID] = room
	}
	if _, joined := room.sockets[c.GetConnID()]; !joined {
		room.sockets[c.GetConnID()] = c
		room.online[userID]++
	}
	snap := RoomSnapshot{ChatID: chat.ID, OnlineUsers: room.onlineUsers()}
	ds := []delivery{{
		to: room.others(userID),
		event: models.NewOutbound(models.UserJoinedChat{
			ChatID:      chat.ID,
			UserID:      userID,
			OnlineUsers: snap.OnlineUsers,
		}),
	}}
	r.mu.Unlock()

	r.flush(ds)
	return snap, nil
}

// Leave removes one connection from the room. Once the user has no socket
// left there, the remaining occupants are told. Unknown rooms or sockets are ignored.
func (r *Rooms) Leave(chatID, userID uint, connID string) {
	r.mu.Lock()
	var ds []delivery
	if room, ok := r.rooms[chatID]; ok {
		if c, ok := room.sockets[connID]; ok && c.GetUserID() == userID {
			ds = r.dropSocketLocked(chatID, room, userID, connID)
		}
	}
	r.mu.Unlock()

	r.flush(ds)
}

// dropSocketLocked removes one socket. The user leaves the room with their
// last socket; otherwise only their typing flag is cleared. r.mu must be held.
func (r *Rooms) dropSocketLocked(chatID uint, room *roomState, userID uint, connID string) []delivery {
	delete(room.sockets, connID)
	room.online[userID]--
	if room.online[userID] <= 0 {
		return r.removeUserLocked(chatID, room, userID)
	}

	if _, typing := room.typing[userID]; !typing {
		return nil
	}
	delete(room.typing, userID)
	return []delivery{{
		to: room.others(userID),
		event: models.NewOutbound(models.UserTyping{
			ChatID:      chatID,
			UserID:      userID,
			IsTyping:    false,
			TypingUsers: room.typingUsers(),
		}),
	}}
}

// removeUserLocked drops every trace of userID from the room and deletes
// the room when it becomes empty. r.mu must be held.
func (r *Rooms) removeUserLocked(chatID uint, room *roomState, userID uint) []delivery {
	for id, c := range room.sockets {
		if c.GetUserID() == userID {
			delete(room.sockets, id)
		}
	}
	delete(room.online, userID)
	_, wasTyping := room.typing[userID]
	delete(room.typing, userID)

	if len(room.online) == 0 {
		delete(r.rooms, chatID)
		return nil
	}

	recipients := room.all()
	ds := []delivery{{
		to: recipients,
		event: models.NewOutbound(models.UserLeftChat{
			ChatID:      chatID,
			UserID:      userID,
			OnlineUsers: room.onlineUsers(),
		}),
	}}
	if wasTyping {
		ds = append(ds, delivery{
			to: recipients,
			event: models.NewOutbound(models.UserTyping{
				ChatID:      chatID,
				UserID:      userID,
				IsTyping:    false,
				TypingUsers: room.typingUsers(),
			}),
		})
	}
	return ds
}

// SetTyping updates the user's typing flag and tells the other occupants.
// Does nothing when the room is gone or the user is not in it.
func (r *Rooms) SetTyping(chatID, userID uint, isTyping bool) {
	r.mu.Lock()
	room, ok := r.rooms[chatID]
	if !ok || room.online[userID] == 0 {
		r.mu.Unlock()
		return
	}
	if isTyping {
		room.typing[userID] = struct{}{}
	} else {
		delete(room.typing, userID)
	}
	ds := []delivery{{
		to: room.others(userID),
		event: models.NewOutbound(models.UserTyping{
			ChatID:      chatID,
			UserID:      userID,
			IsTyping:    isTyping,
			TypingUsers: room.typingUsers(),
		}),
	}}
	r.mu.Unlock()

	r.flush(ds)
}

// Broadcast delivers the event to every socket joined to the chat.
func (r *Rooms) Broadcast(chatID uint, event models.OutboundEvent) {
	r.mu.Lock()
	var recipients []Client
	if room, ok := r.rooms[chatID]; ok {
		recipients = room.all()
	}
	r.mu.Unlock()

	r.flush([]delivery{{to: recipients, event: event}})
}

// Contains reports whether the connection is joined to the chat.
func (r *Rooms) Contains(chatID uint, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[chatID]
	if !ok {
		return false
	}
	_, ok = room.sockets[connID]
	return ok
}

// OnDisconnect leaves every room the given connection had joined.
func (r *Rooms) OnDisconnect(userID uint, connID string) {
	r.mu.Lock()
	var ds []delivery
	for chatID, room := range r.rooms {
		c, ok := room.sockets[connID]
		if !ok || c.GetUserID() != userID {
			continue
		}
		ds = append(ds, r.dropSocketLocked(chatID, room, userID, connID)...)
	}
	r.mu.Unlock()

	r.flush(ds)
}

// OnDisconnectAll removes the user from every room, whichever socket joined it.
// Called once the user's last connection is gone.
func (r *Rooms) OnDisconnectAll(userID uint) {
	r.mu.Lock()
	var ds []delivery
	for chatID, room := range r.rooms {
		if _, ok := room.online[userID]; !ok {
			continue
		}
		ds = append(ds, r.removeUserLocked(chatID, room, userID)...)
	}
	r.mu.Unlock()

	r.flush(ds)
}

// Snapshot returns the room's online users, or false if the room does not exist.
func (r *Rooms) Snapshot(chatID uint) (RoomSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[chatID]
	if !ok {
		return RoomSnapshot{}, false
	}
	return RoomSnapshot{ChatID: chatID, OnlineUsers: room.onlineUsers()}, true
}

func (r *Rooms) TypingUsers(chatID uint) []uint {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[chatID]
	if !ok {
		return nil
	}
	return room.typingUsers()
}

func (r *Rooms) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func sortedKeys[V any](m map[uint]V) []uint {
	ids := make([]uint, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
