package chathub

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"schoolchat/backend/internal/auth"
	"schoolchat/backend/internal/config"
	"schoolchat/backend/internal/localization"
	"schoolchat/backend/internal/logger"
	"schoolchat/backend/internal/metrics"
	"schoolchat/backend/internal/models"
	"schoolchat/backend/internal/storage"
	"schoolchat/backend/internal/telemetry"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Options are the gateway's collaborators. Sender, Texts and Bus are optional.
type Options struct {
	Store    storage.Storage
	Verifier auth.Verifier
	Sender   PushSender
	Texts    *localization.Localizer
	Bus      RoomEventBus
	Logger   logger.Logger
	Metrics  *metrics.Metrics
}

// Gateway binds socket connections to presence, rooms and the chat store.
// One instance is created at startup and shared by every connection.
type Gateway struct {
	store      storage.Storage
	verifier   auth.Verifier
	presence   *Presence
	rooms      *Rooms
	notifier   *OfflineNotifier
	bus        RoomEventBus
	instanceID string
	validator  *payloadValidator
	log        logger.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer

	notifyWG sync.WaitGroup

	lifecycle sync.Mutex
	closing   bool
}

const drainPoll = 20 * time.Millisecond

func NewGateway(opts Options) *Gateway {
	g := &Gateway{
		store:      opts.Store,
		verifier:   opts.Verifier,
		presence:   NewPresence(),
		bus:        opts.Bus,
		instanceID: uuid.NewString(),
		validator:  newPayloadValidator(),
		log:        opts.Logger,
		metrics:    opts.Metrics,
		tracer:     telemetry.Tracer(),
	}
	if g.log == nil {
		g.log = logger.NewStdLogger(log.Default())
	}
	if g.metrics == nil {
		g.metrics = metrics.New(prometheus.NewRegistry())
	}
	g.rooms = NewRooms(g.deliver)
	g.notifier = NewOfflineNotifier(opts.Store, g.presence, opts.Sender, opts.Texts, g.log)
	return g
}

func (g *Gateway) Presence() *Presence { return g.presence }
func (g *Gateway) Rooms() *Rooms       { return g.rooms }

// Authenticate verifies the bearer credential presented at connect time.
func (g *Gateway) Authenticate(ctx context.Context, token string) (auth.Identity, error) {
	id, err := g.verifier.Verify(ctx, token)
	if err != nil {
		g.metrics.EventErrors.WithLabelValues("connect", "authentication").Inc()
		return auth.Identity{}, newError(ErrAuthentication, err)
	}
	return id, nil
}

// Connect registers an authenticated connection. The first connection of a
// user announces them online to everyone, unless another instance already did.
func (g *Gateway) Connect(c Client) error {
	userID := c.GetUserID()

	g.lifecycle.Lock()
	if g.closing {
		g.lifecycle.Unlock()
		return ErrShuttingDown
	}
	becameOnline := g.presence.Register(userID, c)
	g.lifecycle.Unlock()
	g.updatePresenceGauges()

	g.log.Info("client connected", logger.Fields{"userId": userID, "connId": c.GetConnID()})
	if becameOnline {
		status := models.NewOutbound(models.UserOnlineStatus{UserID: userID, Online: true})
		g.publish(context.Background(), 0, status)
		if !g.presence.IsRemote(userID) {
			g.broadcastAll(status)
		}
	}
	return nil
}

// Disconnect tears a connection down. When it was the user's last one the
// user leaves every room and is announced offline once.
func (g *Gateway) Disconnect(c Client) {
	userID, connID := c.GetUserID(), c.GetConnID()

	g.rooms.OnDisconnect(userID, connID)
	wentOffline := g.presence.Unregister(userID, connID)
	if wentOffline {
		g.rooms.OnDisconnectAll(userID)
		status := models.NewOutbound(models.UserOnlineStatus{UserID: userID, Online: false})
		g.publish(context.Background(), 0, status)
		if !g.presence.IsRemote(userID) {
			g.broadcastAll(status)
		}
	}
	g.updatePresenceGauges()

	g.log.Info("client disconnected", logger.Fields{"userId": userID, "connId": connID, "offline": wentOffline})
}

// HandleRaw decodes one socket frame and handles it.
func (g *Gateway) HandleRaw(ctx context.Context, c Client, raw []byte) error {
	ev, err := models.DecodeInbound(raw)
	if err != nil {
		return g.fail(c, "decode", 0, newError(ErrValidation, err))
	}
	return g.Handle(ctx, c, ev)
}

// Handle processes one inbound event to completion. The caller must not
// hand in the connection's next event before this returns.
func (g *Gateway) Handle(ctx context.Context, c Client, ev models.InboundEvent) error {
	ctx, span := g.tracer.Start(ctx, "chat."+ev.EventName(), trace.WithAttributes(
		attribute.Int64("user.id", int64(c.GetUserID())),
		attribute.String("conn.id", c.GetConnID()),
	))
	defer span.End()

	var (
		chatID uint
		err    error
	)
	switch e := ev.(type) {
	case models.JoinChat:
		chatID, err = e.ChatID, g.joinChat(ctx, c, e)
	case models.LeaveChat:
		chatID, err = e.ChatID, g.leaveChat(c, e)
	case models.SendMessage:
		chatID, err = e.ChatID, g.sendMessage(ctx, c, e)
	case models.MarkMessagesRead:
		chatID, err = e.ChatID, g.markRead(ctx, c, e)
	case models.Typing:
		chatID, err = e.ChatID, g.typing(c, e)
	default:
		err = newErrorf(ErrValidation, "unsupported event %q", ev.EventName())
	}
	if err != nil {
		span.RecordError(err)
		return g.fail(c, ev.EventName(), chatID, err)
	}
	return nil
}

func (g *Gateway) joinChat(ctx context.Context, c Client, e models.JoinChat) error {
	if err := g.validator.Check(e); err != nil {
		return err
	}
	chat, err := g.loadChat(ctx, e.ChatID)
	if err != nil {
		return err
	}

	snap, err := g.rooms.Join(chat, c)
	if err != nil {
		return err
	}
	g.metrics.ActiveRooms.Set(float64(g.rooms.RoomCount()))

	// The joiner gets the same event as acknowledgement.
	g.deliver(c, models.NewOutbound(models.UserJoinedChat{
		ChatID:      snap.ChatID,
		UserID:      c.GetUserID(),
		OnlineUsers: snap.OnlineUsers,
	}))
	return nil
}

func (g *Gateway) leaveChat(c Client, e models.LeaveChat) error {
	if err := g.validator.Check(e); err != nil {
		return err
	}
	g.rooms.Leave(e.ChatID, c.GetUserID(), c.GetConnID())
	g.metrics.ActiveRooms.Set(float64(g.rooms.RoomCount()))
	return nil
}

func (g *Gateway) sendMessage(ctx context.Context, c Client, e models.SendMessage) error {
	e.Content = strings.TrimSpace(e.Content)
	if err := g.validator.Check(e); err != nil {
		return err
	}

	chat, err := g.loadChat(ctx, e.ChatID)
	if err != nil {
		return err
	}
	userID := c.GetUserID()
	// Room membership can be stale; the store is the authority.
	if !g.store.IsParticipant(chat, userID) {
		return newErrorf(ErrForbidden, "user %d is not a participant of chat %d", userID, chat.ID)
	}

	msg, err := g.store.CreateMessage(ctx, chat.ID, userID, e.Content)
	if err != nil {
		if errors.Is(err, storage.ErrChatNotFound) {
			return newError(ErrNotFound, err)
		}
		return newError(ErrPersistence, err)
	}
	g.metrics.MessagesSent.Inc()

	out := models.NewOutbound(models.NewMessage{Message: *msg, ChatID: chat.ID})
	g.rooms.Broadcast(chat.ID, out)
	if !g.rooms.Contains(chat.ID, c.GetConnID()) {
		g.deliver(c, out)
	}
	g.publish(ctx, chat.ID, out)

	g.notifyAsync(chat, userID, msg)
	return nil
}

func (g *Gateway) markRead(ctx context.Context, c Client, e models.MarkMessagesRead) error {
	if err := g.validator.Check(e); err != nil {
		return err
	}
	chat, err := g.loadChat(ctx, e.ChatID)
	if err != nil {
		return err
	}
	userID := c.GetUserID()
	if !g.store.IsParticipant(chat, userID) {
		return newErrorf(ErrForbidden, "user %d is not a participant of chat %d", userID, chat.ID)
	}

	count, err := g.store.MarkRead(ctx, chat.ID, userID)
	if err != nil {
		return newError(ErrPersistence, err)
	}
	if count == 0 {
		return nil
	}
	g.metrics.MessagesRead.Add(float64(count))

	out := models.NewOutbound(models.MessagesRead{ChatID: chat.ID, UserID: userID, Count: count})
	g.rooms.Broadcast(chat.ID, out)
	g.publish(ctx, chat.ID, out)
	return nil
}

func (g *Gateway) typing(c Client, e models.Typing) error {
	if err := g.validator.Check(e); err != nil {
		return err
	}
	g.rooms.SetTyping(e.ChatID, c.GetUserID(), e.IsTyping)
	return nil
}

func (g *Gateway) loadChat(ctx context.Context, chatID uint) (*models.Chat, error) {
	chat, err := g.store.GetChatByID(ctx, chatID)
	if errors.Is(err, storage.ErrChatNotFound) {
		return nil, newError(ErrNotFound, err)
	}
	if err != nil {
		return nil, newError(ErrPersistence, err)
	}
	return chat, nil
}

// notifyAsync runs the offline check off the socket's goroutine with its own deadline.
func (g *Gateway) notifyAsync(chat *models.Chat, senderID uint, msg *models.Message) {
	g.notifyWG.Add(1)
	go func() {
		defer g.notifyWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), config.NotifyTimeout)
		defer cancel()

		if err := g.notifier.ConsiderNotify(ctx, chat, senderID, msg); err != nil {
			g.metrics.Notifications.WithLabelValues("failed").Inc()
			g.log.Warn("offline notification failed", err, logger.Fields{"chatId": chat.ID, "userId": senderID})
			return
		}
		g.metrics.Notifications.WithLabelValues("ok").Inc()
	}()
}

// Wait blocks until in-flight notifications are done.
func (g *Gateway) Wait() {
	g.notifyWG.Wait()
}

// Accepting reports whether Connect still admits new connections.
func (g *Gateway) Accepting() bool {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()
	return !g.closing
}

// Shutdown refuses new connections, closes the live ones and waits until
// each has been disconnected and pending notifications are done.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.lifecycle.Lock()
	g.closing = true
	g.lifecycle.Unlock()

	clients := g.presence.All()
	g.log.Info("closing connections", logger.Fields{"count": len(clients)})
	for _, c := range clients {
		c.Close()
	}

	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for g.presence.ConnectionCount() > 0 {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for connections to drain")
		case <-ticker.C:
		}
	}

	done := make(chan struct{})
	go func() {
		g.notifyWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for notifications")
	}
}

// fail reports an operation error to the originating connection only.
func (g *Gateway) fail(c Client, event string, chatID uint, err error) error {
	kind := errorKind(err)
	g.metrics.EventErrors.WithLabelValues(event, kind).Inc()

	fields := logger.Fields{"event": event, "userId": c.GetUserID(), "connId": c.GetConnID(), "kind": kind}
	if chatID != 0 {
		fields["chatId"] = chatID
	}
	if kind == "persistence" || kind == "internal" {
		g.log.Error("socket event failed", err, fields)
	} else {
		g.log.Warn("socket event rejected", err, fields)
	}

	g.deliver(c, models.NewOutbound(models.ErrorEvent{Message: clientMessage(err)}))
	return err
}

// deliver queues an event for one connection. A connection whose queue is
// full is closed; its read pump then runs Disconnect.
func (g *Gateway) deliver(c Client, ev models.OutboundEvent) {
	if c.Send(ev) {
		return
	}
	g.metrics.DroppedClients.Inc()
	g.log.Warn("dropping slow client", logger.Fields{"userId": c.GetUserID(), "connId": c.GetConnID(), "event": ev.Event})
	c.Close()
}

func (g *Gateway) broadcastAll(ev models.OutboundEvent) {
	for _, c := range g.presence.All() {
		g.deliver(c, ev)
	}
}

func (g *Gateway) updatePresenceGauges() {
	g.metrics.OnlineUsers.Set(float64(g.presence.OnlineCount()))
	g.metrics.Connections.Set(float64(g.presence.ConnectionCount()))
	g.metrics.ActiveRooms.Set(float64(g.rooms.RoomCount()))
}
