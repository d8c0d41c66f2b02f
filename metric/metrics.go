// Package metric provides the Prometheus registry and the engine's core
// metrics. A dedicated registry is used instead of the global default so
// tests can construct isolated instances.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "fleetstream"

// Metrics contains all engine-level metrics.
type Metrics struct {
	// Router metrics
	MessagesReceived  *prometheus.CounterVec
	MessagesProcessed *prometheus.CounterVec
	MessagesDropped   *prometheus.CounterVec
	HandlerDuration   *prometheus.HistogramVec

	// Telemetry metrics
	PointsWritten      *prometheus.CounterVec
	ValidationWarnings *prometheus.CounterVec
	SinkErrors         *prometheus.CounterVec

	// Alerting metrics
	AlertsRaised  *prometheus.CounterVec
	AlertsUpdated *prometheus.CounterVec
	AlertsDeduped *prometheus.CounterVec

	// Job metrics
	JobTransitions *prometheus.CounterVec

	// Scan metrics
	ScanLookups *prometheus.CounterVec

	// Transport metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
	PublishErrors  prometheus.Counter
}

// Registry wraps a Prometheus registry with the engine's core metrics.
type Registry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
}

// NewRegistry creates a registry with all core metrics plus the Go runtime
// and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	metrics := newMetrics()

	reg.MustRegister(
		metrics.MessagesReceived,
		metrics.MessagesProcessed,
		metrics.MessagesDropped,
		metrics.HandlerDuration,
		metrics.PointsWritten,
		metrics.ValidationWarnings,
		metrics.SinkErrors,
		metrics.AlertsRaised,
		metrics.AlertsUpdated,
		metrics.AlertsDeduped,
		metrics.JobTransitions,
		metrics.ScanLookups,
		metrics.NATSConnected,
		metrics.NATSReconnects,
		metrics.PublishErrors,
	)

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{
		prometheusRegistry: reg,
		Metrics:            metrics,
	}
}

// PrometheusRegistry returns the underlying Prometheus registry for the
// HTTP handler.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "messages_received_total",
				Help:      "Total messages received from the broker by topic kind",
			},
			[]string{"kind"},
		),
		MessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "messages_processed_total",
				Help:      "Total messages handled, by topic kind and outcome",
			},
			[]string{"kind", "status"},
		),
		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "messages_dropped_total",
				Help:      "Total messages dropped before handling, by reason",
			},
			[]string{"reason"},
		),
		HandlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "handler_duration_seconds",
				Help:      "Time spent in message handlers",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"kind"},
		),
		PointsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "telemetry",
				Name:      "points_written_total",
				Help:      "Telemetry points written to the time-series sink",
			},
			[]string{"measurement"},
		),
		ValidationWarnings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "telemetry",
				Name:      "validation_warnings_total",
				Help:      "Out-of-range or unknown-metric validation warnings",
			},
			[]string{"measurement", "reason"},
		),
		SinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "telemetry",
				Name:      "sink_errors_total",
				Help:      "Failed writes to the time-series sink",
			},
			[]string{"measurement"},
		),
		AlertsRaised: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerting",
				Name:      "alerts_raised_total",
				Help:      "New alert rows created",
			},
			[]string{"type", "severity"},
		),
		AlertsUpdated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerting",
				Name:      "alerts_updated_total",
				Help:      "Existing alerts updated in place on severity change",
			},
			[]string{"type", "severity"},
		),
		AlertsDeduped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerting",
				Name:      "alerts_deduped_total",
				Help:      "Alert conditions coalesced into an existing row",
			},
			[]string{"type"},
		),
		JobTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "transitions_total",
				Help:      "Job state machine transitions",
			},
			[]string{"transition"},
		),
		ScanLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scanner",
				Name:      "lookups_total",
				Help:      "Catalog lookups by outcome",
			},
			[]string{"outcome"},
		),
		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "Whether the NATS connection is healthy (0/1)",
			},
		),
		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total NATS reconnections",
			},
		),
		PublishErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "publish_errors_total",
				Help:      "Failed outbound publishes",
			},
		),
	}
}
