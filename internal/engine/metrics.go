package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/macrofleet/fieldops/internal/session"
)

// Metrics is the engine's Prometheus surface. It also satisfies
// workflow.Observer so handlers can report completions without knowing about
// Prometheus.
type Metrics struct {
	eventsTotal       prometheus.Counter
	flowsCompleted    *prometheus.CounterVec
	flowsAborted      *prometheus.CounterVec
	readingRejections prometheus.Counter
	upstreamFailures  prometheus.Counter
	activeSessions    prometheus.GaugeFunc
}

func NewMetrics(reg prometheus.Registerer, sessions *session.Manager) *Metrics {
	m := &Metrics{
		eventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldops_events_total",
			Help: "Inbound chat events processed.",
		}),
		flowsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldops_flows_completed_total",
			Help: "Workflows finalized successfully, by kind.",
		}, []string{"flow"}),
		flowsAborted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldops_flows_aborted_total",
			Help: "Workflows aborted before finalize (authorization, cancel), by kind.",
		}, []string{"flow"}),
		readingRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldops_reading_rejections_total",
			Help: "Meter readings rejected by the monotonic invariant.",
		}),
		upstreamFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldops_upstream_failures_total",
			Help: "Store or registry failures surfaced as retry messages.",
		}),
		activeSessions: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "fieldops_active_sessions",
			Help: "Live chat sessions.",
		}, func() float64 { return float64(sessions.Len()) }),
	}
	reg.MustRegister(m.eventsTotal, m.flowsCompleted, m.flowsAborted,
		m.readingRejections, m.upstreamFailures, m.activeSessions)
	return m
}

func (m *Metrics) FlowCompleted(flow session.FlowKind) {
	m.flowsCompleted.WithLabelValues(string(flow)).Inc()
}

func (m *Metrics) FlowAborted(flow session.FlowKind) {
	m.flowsAborted.WithLabelValues(string(flow)).Inc()
}

func (m *Metrics) ReadingRejected() {
	m.readingRejections.Inc()
}
