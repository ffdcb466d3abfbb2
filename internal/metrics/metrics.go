package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the chat collectors. Create one per registry.
type Metrics struct {
	OnlineUsers    prometheus.Gauge
	Connections    prometheus.Gauge
	ActiveRooms    prometheus.Gauge
	MessagesSent   prometheus.Counter
	MessagesRead   prometheus.Counter
	EventErrors    *prometheus.CounterVec
	DroppedClients prometheus.Counter
	Notifications  *prometheus.CounterVec
	RelayedEvents  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "schoolchat",
			Name:      "online_users",
			Help:      "Users with at least one open socket.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "schoolchat",
			Name:      "connections",
			Help:      "Open sockets.",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "schoolchat",
			Name:      "active_rooms",
			Help:      "Chats with at least one joined user on this instance.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "schoolchat",
			Name:      "messages_sent_total",
			Help:      "Messages persisted and broadcast.",
		}),
		MessagesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "schoolchat",
			Name:      "messages_read_total",
			Help:      "Messages flipped to read.",
		}),
		EventErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schoolchat",
			Name:      "event_errors_total",
			Help:      "Rejected socket events by event and kind.",
		}, []string{"event", "kind"}),
		DroppedClients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "schoolchat",
			Name:      "dropped_clients_total",
			Help:      "Sockets closed because their send queue was full.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schoolchat",
			Name:      "offline_notifications_total",
			Help:      "Offline notifications by result.",
		}, []string{"result"}),
		RelayedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schoolchat",
			Name:      "relayed_events_total",
			Help:      "Room events exchanged with other instances.",
		}, []string{"direction"}),
	}

	reg.MustRegister(
		m.OnlineUsers,
		m.Connections,
		m.ActiveRooms,
		m.MessagesSent,
		m.MessagesRead,
		m.EventErrors,
		m.DroppedClients,
		m.Notifications,
		m.RelayedEvents,
	)
	return m
}
