package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Key update sources for the key_updates_total counter.
const (
	SourceWS    = "ws"    // write arrived over the sync socket
	SourceREST  = "rest"  // write arrived over the REST surface
	SourceLocal = "local" // write made by in-process code
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "optimist").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// defaultMetricsConfig returns the default metrics configuration.
func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace:   "optimist",
		Subsystem:   "",
		ConstLabels: nil,
		Buckets:     prometheus.DefBuckets,
		Registry:    prometheus.DefaultRegisterer,
	}
}

// metrics holds the Prometheus metrics for the sync server.
type metrics struct {
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	wsSessions   prometheus.Gauge
	keyUpdates   *prometheus.CounterVec
	commits      *prometheus.CounterVec
	reverts      prometheus.Counter
}

// globalMetrics is the singleton metrics instance.
// Created on first call to Metrics().
var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

// initMetrics initializes the Prometheus metrics.
func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests processed",
			ConstLabels: config.ConstLabels,
		}, []string{"method", "path", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"method", "path"}),

		wsSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "ws_sessions_active",
			Help:        "Number of active sync sessions",
			ConstLabels: config.ConstLabels,
		}),

		keyUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "key_updates_total",
			Help:        "Total key writes by source",
			ConstLabels: config.ConstLabels,
		}, []string{"source"}),

		commits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "commits_total",
			Help:        "Total optimistic commits by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"outcome"}),

		reverts: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reverts_total",
			Help:        "Total optimistic rollbacks after failed commits",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// Metrics creates middleware that collects Prometheus metrics for every
// HTTP request. Requests are labeled by method, route pattern, and
// status; when the handler is not mounted on a chi router the raw URL
// path is used instead.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Use(middleware.Metrics())
//	r.Handle("/metrics", promhttp.Handler())
func Metrics(opts ...MetricsOption) func(http.Handler) http.Handler {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	// Initialize metrics once
	globalMetricsMu.Lock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	m := globalMetrics
	globalMetricsMu.Unlock()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			// Route pattern is only complete after routing ran.
			path := routePattern(r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			m.httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
			m.httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		})
	}
}

// routePattern returns the chi route pattern for the request, falling
// back to the raw URL path outside a chi router. Patterns keep the
// label cardinality bounded when keys appear in the path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	if r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// RecordSessionStart records a sync session opening.
func RecordSessionStart() {
	if globalMetrics != nil {
		globalMetrics.wsSessions.Inc()
	}
}

// RecordSessionEnd records a sync session closing.
func RecordSessionEnd() {
	if globalMetrics != nil {
		globalMetrics.wsSessions.Dec()
	}
}

// RecordKeyUpdate records a key write from the given source.
func RecordKeyUpdate(source string) {
	if globalMetrics != nil {
		globalMetrics.keyUpdates.WithLabelValues(source).Inc()
	}
}

// RecordCommit records a finished commit.
func RecordCommit(success bool) {
	if globalMetrics != nil {
		outcome := "success"
		if !success {
			outcome = "failure"
		}
		globalMetrics.commits.WithLabelValues(outcome).Inc()
	}
}

// RecordRevert records an optimistic rollback after a failed commit.
func RecordRevert() {
	if globalMetrics != nil {
		globalMetrics.reverts.Inc()
	}
}

// =============================================================================
// Metrics Collector
// =============================================================================

// Collector exposes the metrics for custom registration and inspection.
type Collector struct {
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	wsSessions   prometheus.Gauge
	keyUpdates   *prometheus.CounterVec
	commits      *prometheus.CounterVec
	reverts      prometheus.Counter
}

// GetMetrics returns the global metrics collector.
// Returns nil if the Metrics middleware has not been initialized.
func GetMetrics() *Collector {
	if globalMetrics == nil {
		return nil
	}
	return &Collector{
		httpRequests: globalMetrics.httpRequests,
		httpDuration: globalMetrics.httpDuration,
		wsSessions:   globalMetrics.wsSessions,
		keyUpdates:   globalMetrics.keyUpdates,
		commits:      globalMetrics.commits,
		reverts:      globalMetrics.reverts,
	}
}
