package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for the Mailward web console
type Metrics struct {
	// Cache counters
	CacheHitsTotal          prometheus.Counter
	CacheMissesTotal        prometheus.Counter
	CacheInvalidationsTotal *prometheus.CounterVec

	// Poller counters
	PollTicksTotal *prometheus.CounterVec

	// Backend client metrics
	BackendRequestsTotal          *prometheus.CounterVec
	BackendRequestDurationSeconds *prometheus.HistogramVec

	// Console HTTP metrics
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec
	HTTPErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds prometheus.Gauge

	registry *prometheus.Registry
	started  time.Time
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailward_cache_hits_total",
				Help: "Total number of query results served from the cache",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailward_cache_misses_total",
				Help: "Total number of query results fetched from the backend",
			},
		),
		CacheInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailward_cache_invalidations_total",
				Help: "Total number of cache entries staled, by tag",
			},
			[]string{"tag"},
		),

		PollTicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailward_poll_ticks_total",
				Help: "Total number of poll refreshes issued, by tag",
			},
			[]string{"tag"},
		),

		BackendRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailward_backend_requests_total",
				Help: "Total number of requests to the scheduling backend",
			},
			[]string{"method", "status"},
		),
		BackendRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailward_backend_request_duration_seconds",
				Help:    "Backend request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailward_http_requests_total",
				Help: "Total number of console HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailward_http_request_duration_seconds",
				Help:    "Console HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailward_http_errors_total",
				Help: "Total number of console HTTP errors",
			},
			[]string{"error_type"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailward_uptime_seconds",
				Help: "Console uptime in seconds",
			},
		),

		registry: reg,
		started:  time.Now(),
	}

	reg.MustRegister(
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidationsTotal,
		m.PollTicksTotal,
		m.BackendRequestsTotal,
		m.BackendRequestDurationSeconds,
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		m.HTTPErrorsTotal,
		m.UptimeSeconds,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the scrape endpoint, mounted on the console router. Uptime
// is refreshed on each scrape.
func (m *Metrics) Handler() http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.UptimeSeconds.Set(time.Since(m.started).Seconds())
		inner.ServeHTTP(w, r)
	})
}

// ObserveBackendRequest records one backend round trip. Status 0 means the
// request never got a response.
func (m *Metrics) ObserveBackendRequest(method string, status int, dur time.Duration) {
	label := "transport_error"
	if status != 0 {
		label = strconv.Itoa(status)
	}
	m.BackendRequestsTotal.WithLabelValues(method, label).Inc()
	m.BackendRequestDurationSeconds.WithLabelValues(method).Observe(dur.Seconds())
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncCacheHit increments the cache hit counter
func IncCacheHit() {
	if m := Global(); m != nil {
		m.CacheHitsTotal.Inc()
	}
}

// IncCacheMiss increments the cache miss counter
func IncCacheMiss() {
	if m := Global(); m != nil {
		m.CacheMissesTotal.Inc()
	}
}

// IncInvalidation increments the invalidation counter for a tag
func IncInvalidation(tag string) {
	if m := Global(); m != nil {
		m.CacheInvalidationsTotal.WithLabelValues(tag).Inc()
	}
}

// IncPollTick increments the poll tick counter for a tag
func IncPollTick(tag string) {
	if m := Global(); m != nil {
		m.PollTicksTotal.WithLabelValues(tag).Inc()
	}
}

// IncHTTPErrors increments the console error counter
func IncHTTPErrors(errorType string) {
	if m := Global(); m != nil {
		m.HTTPErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
