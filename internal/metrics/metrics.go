package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Analytics pipeline metrics
type Metrics struct {
	EventsTracked     *prometheus.CounterVec
	RequestsSkipped   prometheus.Counter
	PersistResults    *prometheus.CounterVec
	ArchiveRuns       *prometheus.CounterVec
	StreamSubscribers prometheus.Gauge
}

// Creates the metrics and registers them on registry
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTracked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "molexa_analytics_events_tracked_total",
				Help: "Trackable requests recorded, by category",
			},
			[]string{"category"},
		),
		RequestsSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "molexa_analytics_requests_skipped_total",
				Help: "Requests classified as not trackable",
			},
		),
		PersistResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "molexa_analytics_persist_results_total",
				Help: "Outcomes of asynchronous event persistence",
			},
			[]string{"outcome"},
		),
		ArchiveRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "molexa_analytics_archive_runs_total",
				Help: "Archive attempts by outcome",
			},
			[]string{"outcome"},
		),
		StreamSubscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "molexa_analytics_stream_subscribers",
				Help: "Open live analytics subscriptions",
			},
		),
	}

	registry.MustRegister(
		m.EventsTracked,
		m.RequestsSkipped,
		m.PersistResults,
		m.ArchiveRuns,
		m.StreamSubscribers,
	)

	return m
}

// Unregistered metrics for tests and tools that do not expose /metrics
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
