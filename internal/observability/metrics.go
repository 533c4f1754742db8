package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpDurationBuckets   = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	workerDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Command metrics
	CommandsTotal        *prometheus.CounterVec
	CommandDuration      *prometheus.HistogramVec
	RateLimitedTotal     *prometheus.CounterVec
	AsyncQueueDepth      prometheus.Gauge
	AsyncDispatchDropped prometheus.Counter

	// Worker call metrics
	WorkerRequestsTotal       *prometheus.CounterVec
	WorkerRequestDuration     prometheus.Histogram
	WorkerCircuitBreakerState prometheus.Gauge

	// Event ingestion metrics
	EventsIngestedTotal *prometheus.CounterVec

	// Stream metrics
	StreamSubscribers           prometheus.Gauge
	NotificationsPublishedTotal *prometheus.CounterVec

	// Process metrics
	ProcessTransitionsTotal *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_commands_total",
			Help: "Total number of dispatched commands.",
		}, []string{"kind", "status"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_command_duration_seconds",
			Help:    "Command dispatch duration in seconds.",
			Buckets: workerDurationBuckets,
		}, []string{"kind"}),
		RateLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_rate_limited_total",
			Help: "Total number of rate-limited command rejections.",
		}, []string{"kind"}),
		AsyncQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_async_queue_depth",
			Help: "Number of queued fire-and-forget command tasks.",
		}),
		AsyncDispatchDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_async_dispatch_dropped_total",
			Help: "Total number of async command tasks rejected because the queue was full.",
		}),

		WorkerRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_worker_requests_total",
			Help: "Total number of outbound automation worker requests.",
		}, []string{"status"}),
		WorkerRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_worker_request_duration_seconds",
			Help:    "Outbound worker request duration in seconds.",
			Buckets: workerDurationBuckets,
		}),
		WorkerCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_worker_circuit_breaker_state",
			Help: "Worker circuit breaker state (0=closed, 1=open, 2=half-open).",
		}),

		EventsIngestedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_ingested_total",
			Help: "Total number of ingested worker events.",
		}, []string{"event_name"}),

		StreamSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_stream_subscribers",
			Help: "Number of currently open client stream sinks.",
		}),
		NotificationsPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_notifications_published_total",
			Help: "Total number of notifications published to the fan-out.",
		}, []string{"type"}),

		ProcessTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_process_transitions_total",
			Help: "Total number of process status transitions.",
		}, []string{"from", "to", "status"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CommandsTotal,
		m.CommandDuration,
		m.RateLimitedTotal,
		m.AsyncQueueDepth,
		m.AsyncDispatchDropped,
		m.WorkerRequestsTotal,
		m.WorkerRequestDuration,
		m.WorkerCircuitBreakerState,
		m.EventsIngestedTotal,
		m.StreamSubscribers,
		m.NotificationsPublishedTotal,
		m.ProcessTransitionsTotal,
	)

	return m
}

// RecordCommand records a command dispatch outcome.
func (m *Metrics) RecordCommand(kind, status string, duration time.Duration) {
	m.CommandsTotal.WithLabelValues(kind, status).Inc()
	m.CommandDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordRateLimited records a rate-limited rejection.
func (m *Metrics) RecordRateLimited(kind string) {
	m.RateLimitedTotal.WithLabelValues(kind).Inc()
}

// RecordWorkerRequest records an outbound worker call.
func (m *Metrics) RecordWorkerRequest(status int, duration time.Duration) {
	m.WorkerRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	m.WorkerRequestDuration.Observe(duration.Seconds())
}

// RecordEventIngested records an ingested worker event.
func (m *Metrics) RecordEventIngested(eventName string) {
	m.EventsIngestedTotal.WithLabelValues(eventName).Inc()
}

// RecordNotificationPublished records a fan-out publish.
func (m *Metrics) RecordNotificationPublished(notificationType string) {
	m.NotificationsPublishedTotal.WithLabelValues(notificationType).Inc()
}

// RecordTransition records a process status transition attempt.
func (m *Metrics) RecordTransition(from, to, status string) {
	m.ProcessTransitionsTotal.WithLabelValues(from, to, status).Inc()
}

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		pattern := routePattern(r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(sw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status code.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

// Flush forwards flushes to the wrapped writer so streaming responses keep
// working behind the metrics middleware.
func (w *metricsResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
