// Package metrics exposes Prometheus collectors for the search service and a
// background collector that samples store health.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/siteselect/internal/resilience"
)

const namespace = "siteselect"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	searches       *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	searchResults  *prometheus.HistogramVec
	advisorCalls   *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec
	httpRequests   *prometheus.CounterVec
	areas          *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Searches served, by mode.",
		}, []string{"mode"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search latency, by mode.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"mode"}),
		searchResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Result count per search, by mode.",
			Buckets:   []float64{0, 1, 5, 10, 15, 20},
		}, []string{"mode"}),
		advisorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisor_calls_total",
			Help:      "AI advisor operations, by operation and source (ai or fallback).",
		}, []string{"operation", "source"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Circuit breaker state per service: 0 closed, 1 open, 2 half-open.",
		}, []string{"service"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route and status code.",
		}, []string{"method", "route", "code"}),
		areas: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "areas",
			Help:      "Reference areas in the store, by metric status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.searches,
		m.searchDuration,
		m.searchResults,
		m.advisorCalls,
		m.breakerState,
		m.httpRequests,
		m.areas,
	)
	return m
}

// ObserveSearch records one completed search.
func (m *Metrics) ObserveSearch(mode string, results int, took time.Duration) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(mode).Inc()
	m.searchDuration.WithLabelValues(mode).Observe(took.Seconds())
	m.searchResults.WithLabelValues(mode).Observe(float64(results))
}

// AdvisorCall records whether an advisor operation was answered by the AI
// service or by the deterministic fallback.
func (m *Metrics) AdvisorCall(operation string, fromAI bool) {
	if m == nil {
		return
	}
	source := "fallback"
	if fromAI {
		source = "ai"
	}
	m.advisorCalls.WithLabelValues(operation, source).Inc()
}

// BreakerTransition matches resilience.BreakerConfig.OnTransition.
func (m *Metrics) BreakerTransition(service string, _, to resilience.State) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(service).Set(float64(to))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

// SetAreaStats publishes the latest store snapshot.
func (m *Metrics) SetAreaStats(s AreaStats) {
	if m == nil {
		return
	}
	m.areas.WithLabelValues("with_metrics").Set(float64(s.WithMetrics))
	m.areas.WithLabelValues("missing_metrics").Set(float64(s.MissingMetrics))
}
