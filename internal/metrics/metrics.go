// Package metrics exposes Prometheus counters and gauges for connection
// volume, byte counts, and per-target runway accessibility state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/runwayproxy/multipath/internal/runway"
)

// Metrics holds every Prometheus collector the proxy core registers.
type Metrics struct {
	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge
	bytesSentTotal     prometheus.Counter
	bytesReceivedTotal prometheus.Counter

	targetState *prometheus.GaugeVec
	probeTotal  *prometheus.CounterVec
}

// New registers and returns a fresh set of collectors. Call once per
// process: promauto registers against the default registry, so
// constructing a second Metrics would panic on duplicate registration.
func New() *Metrics {
	return &Metrics{
		connectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "multipathproxy_connections_total",
			Help: "Total number of client connections accepted.",
		}),
		connectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "multipathproxy_connections_active",
			Help: "Number of client connections currently being handled.",
		}),
		bytesSentTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "multipathproxy_bytes_sent_total",
			Help: "Total bytes sent to clients.",
		}),
		bytesReceivedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "multipathproxy_bytes_received_total",
			Help: "Total request bytes received from clients.",
		}),
		targetState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "multipathproxy_target_runway_state",
			Help: "Accessibility state (0=unknown,1=accessible,2=partial,3=inaccessible,4=testing) per target/runway.",
		}, []string{"target", "runway_id"}),
		probeTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "multipathproxy_probes_total",
			Help: "Total upstream forwarding attempts made by the dispatcher, labeled by outcome; active probes are not counted.",
		}, []string{"outcome"}),
	}
}

// RecordConnectionAccepted increments the total and active connection
// counters.
func (m *Metrics) RecordConnectionAccepted() {
	m.connectionsTotal.Inc()
	m.connectionsActive.Inc()
}

// RecordConnectionFinished decrements the active connection gauge.
func (m *Metrics) RecordConnectionFinished() {
	m.connectionsActive.Dec()
}

// RecordBytes adds sent/received byte counts for one completed connection.
func (m *Metrics) RecordBytes(sent, received uint64) {
	m.bytesSentTotal.Add(float64(sent))
	m.bytesReceivedTotal.Add(float64(received))
}

// RecordProbe increments the probe counter for one of "success", "partial",
// or "failure".
func (m *Metrics) RecordProbe(networkSuccess, userSuccess bool) {
	switch {
	case networkSuccess && userSuccess:
		m.probeTotal.WithLabelValues("success").Inc()
	case networkSuccess && !userSuccess:
		m.probeTotal.WithLabelValues("partial").Inc()
	default:
		m.probeTotal.WithLabelValues("failure").Inc()
	}
}

// SetTargetRunwayState records the current accessibility state for one
// (target, runway) pair.
func (m *Metrics) SetTargetRunwayState(target, runwayID string, state runway.State) {
	m.targetState.WithLabelValues(target, runwayID).Set(float64(state))
}
