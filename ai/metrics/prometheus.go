// Package metrics provides Prometheus metrics export for the orchestration
// pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exports orchestration metrics in Prometheus format. A nil Exporter
// is valid; every observation method is a no-op on it.
type Exporter struct {
	registry *prometheus.Registry

	queryTotal    *prometheus.CounterVec
	queryLatency  prometheus.Histogram
	queryInflight prometheus.Gauge

	routeTotal   *prometheus.CounterVec
	expertErrors *prometheus.CounterVec
	fallbacks    *prometheus.CounterVec
	llmLatency   *prometheus.HistogramVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one).
	Registry *prometheus.Registry

	// Buckets for latency histograms, in seconds.
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewExporter creates a Prometheus metrics exporter.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.queryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ensemble",
			Subsystem: "ai",
			Name:      "queries_total",
			Help:      "Total number of processed queries",
		},
		[]string{"source"},
	)

	e.queryLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ensemble",
			Subsystem: "ai",
			Name:      "query_latency_seconds",
			Help:      "End-to-end query processing latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	e.queryInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ensemble",
			Subsystem: "ai",
			Name:      "queries_inflight",
			Help:      "Number of queries currently being processed",
		},
	)

	e.routeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ensemble",
			Subsystem: "ai",
			Name:      "routes_total",
			Help:      "Total number of expert selections",
		},
		[]string{"expert"},
	)

	e.expertErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ensemble",
			Subsystem: "ai",
			Name:      "expert_errors_total",
			Help:      "Total number of expert failures by kind",
		},
		[]string{"expert", "kind"},
	)

	e.fallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ensemble",
			Subsystem: "ai",
			Name:      "fallbacks_total",
			Help:      "Total number of deterministic fallbacks by pipeline stage",
		},
		[]string{"stage"},
	)

	e.llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ensemble",
			Subsystem: "ai",
			Name:      "llm_call_latency_seconds",
			Help:      "Generation backend call latency in seconds by role",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"role"},
	)

	registry.MustRegister(
		e.queryTotal,
		e.queryLatency,
		e.queryInflight,
		e.routeTotal,
		e.expertErrors,
		e.fallbacks,
		e.llmLatency,
	)

	return e
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// QueryStarted marks a query as in flight.
func (e *Exporter) QueryStarted() {
	if e == nil {
		return
	}
	e.queryInflight.Inc()
}

// QueryCompleted records a finished query with its answer source.
func (e *Exporter) QueryCompleted(source string, duration time.Duration) {
	if e == nil {
		return
	}
	e.queryInflight.Dec()
	e.queryTotal.WithLabelValues(source).Inc()
	e.queryLatency.Observe(duration.Seconds())
}

// RouteSelected records one expert selection.
func (e *Exporter) RouteSelected(expert string) {
	if e == nil {
		return
	}
	e.routeTotal.WithLabelValues(expert).Inc()
}

// ExpertFailed records an expert failure by error kind.
func (e *Exporter) ExpertFailed(expert, kind string) {
	if e == nil {
		return
	}
	e.expertErrors.WithLabelValues(expert, kind).Inc()
}

// FallbackUsed records a deterministic fallback at the given stage
// (routing, aggregation).
func (e *Exporter) FallbackUsed(stage string) {
	if e == nil {
		return
	}
	e.fallbacks.WithLabelValues(stage).Inc()
}

// ObserveLLMCall records one generation backend call.
func (e *Exporter) ObserveLLMCall(role string, duration time.Duration) {
	if e == nil {
		return
	}
	e.llmLatency.WithLabelValues(role).Observe(duration.Seconds())
}
