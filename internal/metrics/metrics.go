// Package metrics wires up the Prometheus counters and gauges covering
// the engine's degradation paths: shard queue depth, report-sink drops,
// and ingress decode errors. Overflow is tolerated by design, so the
// drop counts have to be observable somewhere.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every counter/gauge this engine exposes.
type Metrics struct {
	Registry *prometheus.Registry

	ShardQueueDepth   *prometheus.GaugeVec
	ReportSinkDropped prometheus.Counter
	DecodeErrors      prometheus.Counter
	EventsSubmitted   prometheus.Counter
	EventsDropped     prometheus.Counter
}

// New constructs a Metrics bundle registered against a fresh registry
// (not the global default, so tests can construct more than one without
// a "duplicate metrics collector registration attempted" panic).
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		ShardQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exchange_shard_queue_depth",
			Help: "Approximate number of events queued on a shard's ring buffer.",
		}, []string{"shard"}),
		ReportSinkDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exchange_report_sink_dropped_total",
			Help: "Reports dropped because the report sink's queue was full.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exchange_ingress_decode_errors_total",
			Help: "Datagrams that failed CSV decoding and were dropped.",
		}),
		EventsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exchange_events_submitted_total",
			Help: "Events successfully routed to a shard.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exchange_events_dropped_total",
			Help: "Events dropped because their shard's queue was full or the manager had stopped.",
		}),
	}

	reg.MustRegister(m.ShardQueueDepth, m.ReportSinkDropped, m.DecodeErrors, m.EventsSubmitted, m.EventsDropped)
	return m
}

// Handler returns the HTTP handler to mount for a Prometheus scrape.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
