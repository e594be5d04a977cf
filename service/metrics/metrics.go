package metrics

import (
	"net/http"

	"DMChat/service/presence"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	OnlineUsers        prometheus.Gauge
	Connections        prometheus.Gauge
	PresenceBroadcasts prometheus.Counter
	Pushes             *prometheus.CounterVec
	MessagesSent       prometheus.Counter
	EventsDropped      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dmchat_online_users",
			Help: "Users with a live push connection.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dmchat_connections",
			Help: "Open websocket connections, including superseded ones still closing.",
		}),
		PresenceBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmchat_presence_broadcasts_total",
			Help: "Effective presence changes that were broadcast.",
		}),
		Pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmchat_push_total",
			Help: "Push attempts by event type and result.",
		}, []string{"event", "result"}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmchat_messages_sent_total",
			Help: "Messages persisted by the delivery router.",
		}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmchat_events_dropped_total",
			Help: "Domain events dropped because the dispatch queue was full or closed.",
		}, []string{"type"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.OnlineUsers, m.Connections, m.PresenceBroadcasts, m.Pushes, m.MessagesSent, m.EventsDropped,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// SetConnections fits chat.NewConnManager's size callback.
func (m *Metrics) SetConnections(n int) { m.Connections.Set(float64(n)) }

func (m *Metrics) EventDropped(typ string) { m.EventsDropped.WithLabelValues(typ).Inc() }

// Presence adapts Metrics to presence.Listener.
func (m *Metrics) Presence() presence.Listener { return presenceListener{m} }

type presenceListener struct{ m *Metrics }

func (l presenceListener) PresenceChanged(_ string, _ bool, snap presence.Snapshot) {
	l.m.OnlineUsers.Set(float64(len(snap.Online)))
	l.m.PresenceBroadcasts.Inc()
}

func (l presenceListener) Pushed(eventType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	l.m.Pushes.WithLabelValues(eventType, result).Inc()
}
