package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Request lifecycle metrics
	RequestsCreatedTotal *prometheus.CounterVec
	RequestsClosedTotal  *prometheus.CounterVec
	RequestCloseRaces    prometheus.Counter
	ExpirationRunsTotal  *prometheus.CounterVec
	ExpirationDuration   prometheus.Histogram

	// Authority metrics
	AuthorityCallsTotal   *prometheus.CounterVec
	AuthorityCallDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Business metrics
	GroupsTotal       prometheus.Gauge
	OpenRequestsTotal prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groups_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "groups_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "groups_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "groups_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Request lifecycle metrics
		RequestsCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groups_requests_created_total",
				Help: "Total number of requests created",
			},
			[]string{"request_type", "resource_type"},
		),
		RequestsClosedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groups_requests_closed_total",
				Help: "Total number of request close transitions",
			},
			[]string{"status"},
		),
		RequestCloseRaces: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "groups_request_close_races_total",
				Help: "Total number of close transitions lost to a racing close",
			},
		),
		ExpirationRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groups_expiration_runs_total",
				Help: "Total number of expiration agent runs",
			},
			[]string{"status"},
		),
		ExpirationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "groups_expiration_run_duration_seconds",
				Help:    "Expiration agent run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		// Authority metrics
		AuthorityCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groups_authority_calls_total",
				Help: "Total number of external authority calls",
			},
			[]string{"resource_type", "operation", "status"},
		),
		AuthorityCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "groups_authority_call_duration_seconds",
				Help:    "External authority call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"resource_type", "operation"},
		),

		// Cache metrics
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groups_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groups_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "groups_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "groups_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		// Business metrics
		GroupsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "groups_total",
				Help: "Total number of groups",
			},
		),
		OpenRequestsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "groups_open_requests_total",
				Help: "Number of open requests",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.RequestsCreatedTotal,
		m.RequestsClosedTotal,
		m.RequestCloseRaces,
		m.ExpirationRunsTotal,
		m.ExpirationDuration,
		m.AuthorityCallsTotal,
		m.AuthorityCallDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.GroupsTotal,
		m.OpenRequestsTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status and size
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			// Record request size
			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(r.ContentLength))
			}

			// Serve the request
			next.ServeHTTP(rw, r)

			// Record metrics
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
