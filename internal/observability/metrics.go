package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API and worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	enqueuedTotal         *prometheus.CounterVec
	processedTotal        *prometheus.CounterVec
	retriedTotal          *prometheus.CounterVec
	deadLetteredTotal     *prometheus.CounterVec
	claimConflictsTotal   prometheus.Counter
	retentionDeletedTotal prometheus.Counter
	processingRunDuration prometheus.Histogram
	pendingBatchSize      prometheus.Histogram
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_queue",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "notification_queue",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		enqueuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_queue",
				Name:      "notifications_enqueued_total",
				Help:      "Total number of notifications accepted into the queue.",
			},
			[]string{"type"},
		),
		processedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_queue",
				Name:      "notifications_processed_total",
				Help:      "Total number of notifications dispatched successfully.",
			},
			[]string{"type"},
		),
		retriedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_queue",
				Name:      "notifications_retried_total",
				Help:      "Total number of notifications marked for retry after a failed dispatch.",
			},
			[]string{"type"},
		),
		deadLetteredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_queue",
				Name:      "notifications_dead_lettered_total",
				Help:      "Total number of notifications moved to the dead-letter state.",
			},
			[]string{"type"},
		),
		claimConflictsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "notification_queue",
				Name:      "claim_conflicts_total",
				Help:      "Total number of claims lost to a concurrent processing run.",
			},
		),
		retentionDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "notification_queue",
				Name:      "retention_deleted_total",
				Help:      "Total number of processed notifications removed by the retention sweep.",
			},
		),
		processingRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "notification_queue",
				Name:      "processing_run_duration_seconds",
				Help:      "Duration of one full processing run in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		pendingBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "notification_queue",
				Name:      "pending_batch_size",
				Help:      "Number of pending notifications fetched per processing run.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.enqueuedTotal,
		m.processedTotal,
		m.retriedTotal,
		m.deadLetteredTotal,
		m.claimConflictsTotal,
		m.retentionDeletedTotal,
		m.processingRunDuration,
		m.pendingBatchSize,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncEnqueued(notificationType string) {
	if m == nil {
		return
	}
	m.enqueuedTotal.WithLabelValues(normalizeType(notificationType)).Inc()
}

func (m *Metrics) IncProcessed(notificationType string) {
	if m == nil {
		return
	}
	m.processedTotal.WithLabelValues(normalizeType(notificationType)).Inc()
}

func (m *Metrics) IncRetried(notificationType string) {
	if m == nil {
		return
	}
	m.retriedTotal.WithLabelValues(normalizeType(notificationType)).Inc()
}

func (m *Metrics) IncDeadLettered(notificationType string) {
	if m == nil {
		return
	}
	m.deadLetteredTotal.WithLabelValues(normalizeType(notificationType)).Inc()
}

func (m *Metrics) IncClaimConflict() {
	if m == nil {
		return
	}
	m.claimConflictsTotal.Inc()
}

func (m *Metrics) AddRetentionDeleted(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.retentionDeletedTotal.Add(float64(count))
}

func (m *Metrics) ObserveProcessingRun(duration time.Duration, fetched int) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.processingRunDuration.Observe(seconds)
	m.pendingBatchSize.Observe(float64(fetched))
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeType(notificationType string) string {
	normalized := strings.ToLower(strings.TrimSpace(notificationType))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
