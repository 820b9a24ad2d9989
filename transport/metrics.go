package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/luma/ferry/protocol"
)

const metricsNamespace = "ferry"

// Outcomes of a module request, used as the "outcome" label.
const (
	outcomeListed       = "listed"
	outcomeAccepted     = "accepted"
	outcomeUnknown      = "unknown_module"
	outcomeDenied       = "denied"
	outcomeAuthRequired = "auth_required"
	outcomeMalformed    = "malformed"
	outcomeLimited      = "max_connections"
)

type metrics struct {
	handshakes     *prometheus.CounterVec
	negotiated     *prometheus.CounterVec
	activeSessions prometheus.Gauge
	queuedSessions prometheus.Gauge
	moduleRequests *prometheus.CounterVec
	catalogUpdates prometheus.Counter
}

// newMetrics registers the daemon's metrics with reg. A nil reg builds
// unregistered collectors.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handshakes_total",
			Help:      "Handshakes attempted by prologue and result",
		}, []string{"prologue", "result"}),

		negotiated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "negotiated_sessions_total",
			Help:      "Sessions negotiated by protocol version",
		}, []string{"protocol"}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_sessions",
			Help:      "Sessions currently being served",
		}),

		queuedSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "queued_sessions",
			Help:      "Negotiated sessions waiting for a worker",
		}),

		moduleRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "module_requests_total",
			Help:      "Legacy module requests by outcome",
		}, []string{"outcome"}),

		catalogUpdates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "catalog_updates_total",
			Help:      "Module catalog changes seen by the daemon",
		}),
	}
}

func (m *metrics) handshake(prologue protocol.NegotiationPrologue, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	m.handshakes.WithLabelValues(prologue.String(), result).Inc()
}
