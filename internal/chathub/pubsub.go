package chathub

import (
	"context"
	"encoding/json"
	"time"

	"schoolchat/backend/internal/config"
	"schoolchat/backend/internal/logger"
	"schoolchat/backend/internal/models"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RoomEventBus carries room events between gateway instances.
type RoomEventBus interface {
	PublishRoomEvent(ctx context.Context, payload []byte) error
	SubscribeRoomEvents(ctx context.Context) *redis.PubSub
}

// presenceSyncEvent carries an instance's full list of connected users. It
// only travels between instances.
const presenceSyncEvent = "presence_sync"

type presenceSync struct {
	Users []uint `json:"users"`
}

// relayEnvelope is what travels on the bus. ChatID is zero for presence events.
type relayEnvelope struct {
	Origin string          `json:"origin"`
	ChatID uint            `json:"chatId"`
	Event  json.RawMessage `json:"event"`
}

// publish forwards a room event to the other instances. Failures only cost
// remote delivery, so they are logged.
func (g *Gateway) publish(ctx context.Context, chatID uint, ev models.OutboundEvent) {
	if g.bus == nil {
		return
	}

	event, err := json.Marshal(ev)
	if err != nil {
		g.log.Error("relay encode failed", err, logger.Fields{"chatId": chatID, "event": ev.Event})
		return
	}
	payload, err := json.Marshal(relayEnvelope{Origin: g.instanceID, ChatID: chatID, Event: event})
	if err != nil {
		g.log.Error("relay encode failed", err, logger.Fields{"chatId": chatID, "event": ev.Event})
		return
	}

	if err := g.bus.PublishRoomEvent(ctx, payload); err != nil {
		g.log.Warn("relay publish failed", err, logger.Fields{"chatId": chatID, "event": ev.Event})
		return
	}
	g.metrics.RelayedEvents.WithLabelValues("out").Inc()
}

// StartRelay listens on the bus until ctx is cancelled and re-delivers
// events from other instances to local sockets. It also announces this
// instance's users periodically so peers can expire a crashed instance.
func (g *Gateway) StartRelay(ctx context.Context) {
	if g.bus == nil {
		return
	}

	go g.syncPresence(ctx)

	go func() {
		pubsub := g.bus.SubscribeRoomEvents(ctx)
		defer pubsub.Close()

		ch := pubsub.Channel()
		g.log.Info("relay listener started", logger.Fields{"instance": g.instanceID})

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if err := g.DeliverRelayed([]byte(msg.Payload)); err != nil {
					g.log.Warn("relay message dropped", err)
				}
			}
		}
	}()
}

func (g *Gateway) syncPresence(ctx context.Context) {
	ticker := time.NewTicker(config.PresenceSyncInterval)
	defer ticker.Stop()

	for {
		g.publish(ctx, 0, models.OutboundEvent{
			Event: presenceSyncEvent,
			Data:  presenceSync{Users: g.presence.OnlineUsers()},
		})
		for _, st := range g.presence.ExpireRemote(time.Now().Add(-config.PresenceExpiry)) {
			g.broadcastAll(models.NewOutbound(st))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DeliverRelayed applies a bus payload locally: presence updates go to every
// local connection, room events to the chat's sockets. Events this instance
// published itself are skipped.
func (g *Gateway) DeliverRelayed(payload []byte) error {
	var env relayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return errors.Wrap(err, "decoding relay envelope")
	}
	if env.Origin == g.instanceID {
		return nil
	}

	var ev struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(env.Event, &ev); err != nil {
		return errors.Wrap(err, "decoding relayed event")
	}
	if ev.Event == "" {
		return errors.New("relayed event has no name")
	}

	switch ev.Event {
	case models.EventUserOnlineStatus:
		var st models.UserOnlineStatus
		if err := json.Unmarshal(ev.Data, &st); err != nil {
			return errors.Wrap(err, "decoding relayed presence")
		}
		if g.presence.SetRemote(env.Origin, st.UserID, st.Online) {
			g.broadcastAll(models.NewOutbound(st))
		}
	case presenceSyncEvent:
		var snap presenceSync
		if err := json.Unmarshal(ev.Data, &snap); err != nil {
			return errors.Wrap(err, "decoding presence sync")
		}
		for _, st := range g.presence.SyncRemote(env.Origin, snap.Users) {
			g.broadcastAll(models.NewOutbound(st))
		}
	default:
		g.rooms.Broadcast(env.ChatID, models.OutboundEvent{Event: ev.Event, Data: ev.Data})
	}
	g.metrics.RelayedEvents.WithLabelValues("in").Inc()
	return nil
}
