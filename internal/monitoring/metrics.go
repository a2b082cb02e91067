package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Session lifecycle metrics
	SessionsOpened     prometheus.Counter
	SessionTransitions *prometheus.CounterVec
	SessionsActive     prometheus.Gauge

	// Extraction metrics
	ExtractionsTotal   *prometheus.CounterVec
	ExtractionDuration prometheus.Histogram

	// Upload metrics
	FilesUploaded *prometheus.CounterVec
	UploadBytes   prometheus.Counter

	// Reclamation metrics
	OrphansFound     *prometheus.GaugeVec
	OrphansReclaimed *prometheus.CounterVec
	ReclaimedBytes   prometheus.Counter

	// Rate limiting metrics
	RateLimitHits prometheus.Counter

	// Upstream metrics (browser provider, LLM)
	UpstreamLatency     *prometheus.HistogramVec
	UpstreamRequests    *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

var metrics *Metrics

// Init initializes all Prometheus metrics
func Init() *Metrics {
	if metrics != nil {
		return metrics
	}

	metrics = &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		// Session lifecycle metrics
		SessionsOpened: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "browser_sessions_opened_total",
				Help: "Total number of browser sessions opened",
			},
		),
		SessionTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "browser_session_transitions_total",
				Help: "Total number of session state transitions",
			},
			[]string{"from", "to"},
		),
		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "browser_sessions_active",
				Help: "Number of browser sessions currently open",
			},
		),

		// Extraction metrics
		ExtractionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "content_extractions_total",
				Help: "Total number of content extractions",
			},
			[]string{"status"},
		),
		ExtractionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "content_extraction_duration_seconds",
				Help:    "Content extraction duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		// Upload metrics
		FilesUploaded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "files_uploaded_total",
				Help: "Total number of files uploaded",
			},
			[]string{"category"},
		),
		UploadBytes: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "upload_bytes_total",
				Help: "Total bytes written by the upload service",
			},
		),

		// Reclamation metrics
		OrphansFound: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orphans_found",
				Help: "Orphan candidates found by the last reclamation run",
			},
			[]string{"kind"},
		),
		OrphansReclaimed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orphans_reclaimed_total",
				Help: "Total orphans deleted by reclamation",
			},
			[]string{"kind"},
		),
		ReclaimedBytes: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "reclaimed_bytes_total",
				Help: "Total bytes freed by reclamation",
			},
		),

		// Rate limiting metrics
		RateLimitHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
		),

		// Upstream metrics
		UpstreamLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upstream_latency_seconds",
				Help:    "Upstream request latency in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"upstream"},
		),
		UpstreamRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upstream_requests_total",
				Help: "Total number of upstream requests",
			},
			[]string{"upstream", "status"},
		),
		CircuitBreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 0.5=half-open)",
			},
			[]string{"upstream"},
		),

		// Database metrics
		DBConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	return metrics
}

// Get returns the global metrics instance
func Get() *Metrics {
	if metrics == nil {
		return Init()
	}
	return metrics
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// GinHandler returns a Gin-compatible handler for Prometheus metrics
func GinHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// MetricsMiddleware is a Gin middleware for collecting HTTP metrics
func MetricsMiddleware() gin.HandlerFunc {
	m := Get()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		// Track in-flight requests
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		// Process request
		c.Next()

		// Record metrics
		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// RecordSessionOpened records a new browser session
func RecordSessionOpened() {
	Get().SessionsOpened.Inc()
	Get().SessionsActive.Inc()
}

// RecordSessionClosed records a closed browser session
func RecordSessionClosed() {
	Get().SessionsActive.Dec()
}

// RecordSessionTransition records a session state transition
func RecordSessionTransition(from, to string) {
	Get().SessionTransitions.WithLabelValues(from, to).Inc()
}

// RecordExtraction records a content extraction
func RecordExtraction(status string, duration time.Duration) {
	Get().ExtractionsTotal.WithLabelValues(status).Inc()
	Get().ExtractionDuration.Observe(duration.Seconds())
}

// RecordFileUploaded records an uploaded file
func RecordFileUploaded(category string, size int64) {
	Get().FilesUploaded.WithLabelValues(category).Inc()
	Get().UploadBytes.Add(float64(size))
}

// RecordReclaimRun records the outcome of a reclamation run
func RecordReclaimRun(registryOrphans, diskOrphans int, executed bool, reclaimedBytes int64) {
	m := Get()
	m.OrphansFound.WithLabelValues("registry").Set(float64(registryOrphans))
	m.OrphansFound.WithLabelValues("disk").Set(float64(diskOrphans))
	if executed {
		m.OrphansReclaimed.WithLabelValues("registry").Add(float64(registryOrphans))
		m.OrphansReclaimed.WithLabelValues("disk").Add(float64(diskOrphans))
		m.ReclaimedBytes.Add(float64(reclaimedBytes))
	}
}

// RecordRateLimitHit records a rate limit hit
func RecordRateLimitHit() {
	Get().RateLimitHits.Inc()
}

// RecordUpstreamRequest records an upstream request
func RecordUpstreamRequest(upstream, status string, duration time.Duration) {
	Get().UpstreamRequests.WithLabelValues(upstream, status).Inc()
	Get().UpstreamLatency.WithLabelValues(upstream).Observe(duration.Seconds())
}

// SetCircuitBreakerState sets the circuit breaker state
// state: 0=closed, 1=open, 0.5=half-open
func SetCircuitBreakerState(upstream string, state float64) {
	Get().CircuitBreakerState.WithLabelValues(upstream).Set(state)
}

// SetDBConnections sets database connection metrics
func SetDBConnections(active, idle int) {
	Get().DBConnectionsActive.Set(float64(active))
	Get().DBConnectionsIdle.Set(float64(idle))
}
