// Package metrics defines the Prometheus metric collectors used across the
// research engine and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ResearchRunsTotal    *prometheus.CounterVec
	ResearchDuration     prometheus.Histogram
	IterationsPerRun     prometheus.Histogram
	ConfidenceScore      prometheus.Histogram
	StrategyLatency      *prometheus.HistogramVec
	StrategyResults      *prometheus.CounterVec
	StrategyFailures     *prometheus.CounterVec
	DocsIndexedTotal     prometheus.Counter
	IndexBuildDuration   prometheus.Histogram
	IndexCacheHitsTotal  prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all metrics and registers them on the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all metrics and registers them on reg. Tests pass a
// fresh prometheus.NewRegistry() so repeated construction does not panic.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		ResearchRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_runs_total",
				Help: "Total research runs by final status (completed, completed_with_warnings, cancelled, invalid).",
			},
			[]string{"status"},
		),
		ResearchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "research_duration_seconds",
				Help:    "End-to-end research run latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		IterationsPerRun: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "research_iterations_per_run",
				Help:    "Number of completed search/analysis passes per run.",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 8, 10},
			},
		),
		ConfidenceScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "research_confidence_score",
				Help:    "Final confidence score per run.",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		StrategyLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "strategy_latency_seconds",
				Help:    "Latency of a single strategy invocation in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
			},
			[]string{"strategy"},
		),
		StrategyResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strategy_results_total",
				Help: "Total results produced per strategy.",
			},
			[]string{"strategy"},
		),
		StrategyFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strategy_failures_total",
				Help: "Strategy invocations discarded by reason (timeout, error).",
			},
			[]string{"strategy", "reason"},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		IndexBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_build_duration_seconds",
				Help:    "Workspace load and term index build latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
		),
		IndexCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_cache_hits_total",
				Help: "Total term index cache hits.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "report_cache_hits_total",
				Help: "Total number of report cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "report_cache_misses_total",
				Help: "Total number of report cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ResearchRunsTotal,
		m.ResearchDuration,
		m.IterationsPerRun,
		m.ConfidenceScore,
		m.StrategyLatency,
		m.StrategyResults,
		m.StrategyFailures,
		m.DocsIndexedTotal,
		m.IndexBuildDuration,
		m.IndexCacheHitsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
