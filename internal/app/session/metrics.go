package session

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	sent            prometheus.Counter
	received        prometheus.Counter
	deduplicated    prometheus.Counter
	connectAttempts prometheus.Counter
	status          prometheus.Gauge
	typing          *prometheus.CounterVec
}

// newMetrics builds the session collectors and registers them on reg when it is not nil.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatclient",
			Name:      "messages_sent_total",
			Help:      "Messages appended optimistically and emitted on the transport.",
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatclient",
			Name:      "messages_received_total",
			Help:      "Messages pushed by the server and appended to the log.",
		}),
		deduplicated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatclient",
			Name:      "messages_deduplicated_total",
			Help:      "Pushed messages dropped because their id was already in the log.",
		}),
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatclient",
			Name:      "connect_attempts_total",
			Help:      "Transport dial attempts, retries included.",
		}),
		status: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatclient",
			Name:      "connection_status",
			Help:      "0 disconnected, 1 connecting, 2 connected.",
		}),
		typing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatclient",
			Name:      "typing_events_total",
			Help:      "Typing events emitted, by state.",
		}, []string{"state"}),
	}

	if reg != nil {
		reg.MustRegister(m.sent, m.received, m.deduplicated, m.connectAttempts, m.status, m.typing)
	}

	return m
}
