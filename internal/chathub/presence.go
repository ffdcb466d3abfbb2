package chathub

import (
	"sort"
	"sync"
	"time"

	"schoolchat/backend/internal/models"
)

// Presence maps users to their live connections. A user is online while
// at least one connection is registered here or another instance reports them.
type Presence struct {
	mu     sync.Mutex
	users  map[uint]map[string]Client
	remote map[string]*remoteUsers // instance id -> users online there
}

type remoteUsers struct {
	users map[uint]struct{}
	seen  time.Time
}

func NewPresence() *Presence {
	return &Presence{
		users:  make(map[uint]map[string]Client),
		remote: make(map[string]*remoteUsers),
	}
}

// Register adds the connection and reports whether the user just came online.
func (p *Presence) Register(userID uint, c Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns, ok := p.users[userID]
	if !ok {
		conns = make(map[string]Client)
		p.users[userID] = conns
	}
	conns[c.GetConnID()] = c
	return !ok
}

// Unregister removes the connection and reports whether the user just went offline.
func (p *Presence) Unregister(userID uint, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns, ok := p.users[userID]
	if !ok {
		return false
	}
	if _, ok := conns[connID]; !ok {
		return false
	}
	delete(conns, connID)
	if len(conns) > 0 {
		return false
	}
	delete(p.users, userID)
	return true
}

// IsOnline reports whether the user is connected to this or any other instance.
func (p *Presence) IsOnline(userID uint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onlineLocked(userID)
}

// IsRemote reports whether another instance holds a connection of the user.
func (p *Presence) IsRemote(userID uint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteLocked(userID)
}

func (p *Presence) onlineLocked(userID uint) bool {
	return len(p.users[userID]) > 0 || p.remoteLocked(userID)
}

func (p *Presence) remoteLocked(userID uint) bool {
	for _, r := range p.remote {
		if _, ok := r.users[userID]; ok {
			return true
		}
	}
	return false
}

func (p *Presence) instanceLocked(origin string) *remoteUsers {
	r, ok := p.remote[origin]
	if !ok {
		r = &remoteUsers{users: make(map[uint]struct{})}
		p.remote[origin] = r
	}
	r.seen = time.Now()
	return r
}

// SetRemote records a transition reported by another instance and reports
// whether the user's overall status changed.
func (p *Presence) SetRemote(origin string, userID uint, online bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	before := p.onlineLocked(userID)
	r := p.instanceLocked(origin)
	if online {
		r.users[userID] = struct{}{}
	} else {
		delete(r.users, userID)
	}
	return before != p.onlineLocked(userID)
}

// SyncRemote replaces the users online on another instance and returns the
// users whose overall status changed.
func (p *Presence) SyncRemote(origin string, userIDs []uint) []models.UserOnlineStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := p.instanceLocked(origin)
	next := make(map[uint]struct{}, len(userIDs))
	for _, id := range userIDs {
		next[id] = struct{}{}
	}

	before := make(map[uint]bool)
	for id := range r.users {
		before[id] = p.onlineLocked(id)
	}
	for id := range next {
		before[id] = p.onlineLocked(id)
	}

	r.users = next
	return p.changesLocked(before)
}

// ExpireRemote forgets instances not heard from since cutoff and returns
// the users that went offline with them.
func (p *Presence) ExpireRemote(cutoff time.Time) []models.UserOnlineStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	before := make(map[uint]bool)
	var stale []string
	for origin, r := range p.remote {
		if !r.seen.Before(cutoff) {
			continue
		}
		stale = append(stale, origin)
		for id := range r.users {
			before[id] = p.onlineLocked(id)
		}
	}
	for _, origin := range stale {
		delete(p.remote, origin)
	}
	return p.changesLocked(before)
}

func (p *Presence) changesLocked(before map[uint]bool) []models.UserOnlineStatus {
	var out []models.UserOnlineStatus
	for _, id := range sortedKeys(before) {
		if now := p.onlineLocked(id); now != before[id] {
			out = append(out, models.UserOnlineStatus{UserID: id, Online: now})
		}
	}
	return out
}

// Connections returns the user's live connections.
func (p *Presence) Connections(userID uint) []Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Client, 0, len(p.users[userID]))
	for _, c := range p.users[userID] {
		out = append(out, c)
	}
	return out
}

// All returns every live connection.
func (p *Presence) All() []Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Client
	for _, conns := range p.users {
		for _, c := range conns {
			out = append(out, c)
		}
	}
	return out
}

// OnlineCount counts users with a connection on this instance.
func (p *Presence) OnlineCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.users)
}

func (p *Presence) ConnectionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, conns := range p.users {
		n += len(conns)
	}
	return n
}

// OnlineUsers returns the ids of users connected to this instance, ascending.
func (p *Presence) OnlineUsers() []uint {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]uint, 0, len(p.users))
	for id := range p.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
