package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcome labels
const (
	SourceCache    = "cache"
	SourceComputed = "computed"
	SourceError    = "error"
)

// Registry holds all Prometheus metrics.
// ⭐ SSOT: 메트릭 정의는 여기서만
// A nil *Registry is valid and records nothing.
type Registry struct {
	*prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	patternRuns        *prometheus.CounterVec
	patternRunDuration *prometheus.HistogramVec
	patternMatches     *prometheus.GaugeVec
	cacheOps           *prometheus.CounterVec
	cachePruned        prometheus.Counter
	upstreamErrors     *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),

		patternRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_pattern_runs_total",
				Help: "Pattern runs by outcome (cache, computed, error)",
			},
			[]string{"pattern", "source"},
		),
		patternRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "screener_pattern_run_duration_seconds",
				Help:    "Pattern run duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"source"},
		),
		patternMatches: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "screener_pattern_matches",
				Help: "Instruments that matched a pattern on its last computed run",
			},
			[]string{"pattern"},
		),
		cacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_cache_operations_total",
				Help: "Result cache operations by result",
			},
			[]string{"op", "result"},
		),
		cachePruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "screener_cache_pruned_entries_total",
				Help: "Cache entries removed by retention pruning",
			},
		),
		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_upstream_errors_total",
				Help: "Signal and fundamental store failures",
			},
			[]string{"source"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "screener_upstream_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"source"},
		),
	}

	reg.MustRegister(
		r.httpRequestsTotal,
		r.httpRequestDuration,
		r.httpRequestsInFlight,
		r.patternRuns,
		r.patternRunDuration,
		r.patternMatches,
		r.cacheOps,
		r.cachePruned,
		r.upstreamErrors,
		r.breakerState,
	)

	return r
}

// Handler exposes the registry for scraping
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{})
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	if r == nil {
		return
	}
	r.httpRequestsTotal.WithLabelValues(method, path, statusToString(status)).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	if r == nil {
		return
	}
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	if r == nil {
		return
	}
	r.httpRequestsInFlight.Dec()
}

// RecordRun records one pattern run
func (r *Registry) RecordRun(patternID, source string, duration float64) {
	if r == nil {
		return
	}
	r.patternRuns.WithLabelValues(patternID, source).Inc()
	r.patternRunDuration.WithLabelValues(source).Observe(duration)
}

// SetMatches records the survivor count of a computed run
func (r *Registry) SetMatches(patternID string, total int) {
	if r == nil {
		return
	}
	r.patternMatches.WithLabelValues(patternID).Set(float64(total))
}

// RecordCacheOp records a cache get/put/invalidate outcome (hit, miss, stale, ok, error)
func (r *Registry) RecordCacheOp(op, result string) {
	if r == nil {
		return
	}
	r.cacheOps.WithLabelValues(op, result).Inc()
}

// AddPruned counts entries removed by pruning
func (r *Registry) AddPruned(n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.cachePruned.Add(float64(n))
}

// RecordUpstreamError counts a store failure
func (r *Registry) RecordUpstreamError(source string) {
	if r == nil {
		return
	}
	r.upstreamErrors.WithLabelValues(source).Inc()
}

// SetBreakerState records the breaker state for a source
func (r *Registry) SetBreakerState(source string, state int) {
	if r == nil {
		return
	}
	r.breakerState.WithLabelValues(source).Set(float64(state))
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
