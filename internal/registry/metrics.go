package registry

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the registry's Prometheus collectors.
type Metrics struct {
	Rooms        prometheus.Gauge
	Participants prometheus.Gauge
	Connections  prometheus.Gauge
	Events       *prometheus.CounterVec
	Dropped      prometheus.Counter
	Evicted      prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "huddle",
			Name:      "rooms_active",
			Help:      "Number of rooms with at least one participant.",
		}),
		Participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "huddle",
			Name:      "participants_active",
			Help:      "Number of participants across all rooms.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "huddle",
			Name:      "connections_active",
			Help:      "Number of open websocket connections.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "events_total",
			Help:      "Client events processed, by type.",
		}, []string{"type"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "dropped_messages_total",
			Help:      "Outbound messages dropped because a client's send queue was full.",
		}),
		Evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "evicted_connections_total",
			Help:      "Connections closed because they fell a full send queue behind.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Rooms, m.Participants, m.Connections, m.Events, m.Dropped, m.Evicted)
	}
	return m
}
