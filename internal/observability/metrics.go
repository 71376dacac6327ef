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

const namespace = "notify"

// Metrics stores Prometheus collectors used by the webhook server and workers.
// Every method is safe to call on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	notificationTotalTime *prometheus.HistogramVec
	providerSendDuration  *prometheus.HistogramVec
	providerDemotedTotal  *prometheus.CounterVec
	providerFailuresTotal *prometheus.CounterVec
	sesCallbacksTotal     *prometheus.CounterVec
	sesCallbackElapsed    prometheus.Histogram
	serviceCallbacksTotal *prometheus.CounterVec
	tasksRetriedTotal     *prometheus.CounterVec
	tasksDeadLettered     *prometheus.CounterVec
	workerInflight        *prometheus.GaugeVec
	replayedTotal         *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		notificationTotalTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "notification_total_time_seconds",
				Help:      "Time from notification creation to provider hand-off, by channel.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
			},
			[]string{"channel"},
		),
		providerSendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_send_duration_seconds",
				Help:      "Provider API call duration in seconds by provider.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"provider"},
		),
		providerDemotedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_demoted_total",
				Help:      "Total number of times a provider was deactivated after a send error.",
			},
			[]string{"provider"},
		),
		providerFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_send_failures_total",
				Help:      "Failed provider sends by provider and whether the error was transient.",
			},
			[]string{"provider", "transient"},
		),
		sesCallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "callback_ses_total",
				Help:      "SES delivery events applied, by resulting notification status.",
			},
			[]string{"status"},
		),
		sesCallbackElapsed: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "callback_ses_elapsed_seconds",
				Help:      "Time between sending an email and receiving its SES event.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
			},
		),
		serviceCallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "service_callbacks_total",
				Help:      "Outbound service webhook attempts by callback type and outcome.",
			},
			[]string{"type", "outcome"},
		),
		tasksRetriedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_retried_total",
				Help:      "Total number of tasks republished to a retry queue.",
			},
			[]string{"queue"},
		),
		tasksDeadLettered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_dead_lettered_total",
				Help:      "Total number of tasks rejected to a dead-letter queue.",
			},
			[]string{"queue"},
		),
		workerInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_inflight",
				Help:      "Current number of in-flight tasks grouped by queue.",
			},
			[]string{"queue"},
		),
		replayedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_replayed_total",
				Help:      "Notifications re-enqueued after being left in created.",
			},
			[]string{"channel"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.notificationTotalTime,
		m.providerSendDuration,
		m.providerDemotedTotal,
		m.providerFailuresTotal,
		m.sesCallbacksTotal,
		m.sesCallbackElapsed,
		m.serviceCallbacksTotal,
		m.tasksRetriedTotal,
		m.tasksDeadLettered,
		m.workerInflight,
		m.replayedTotal,
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
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

// ObserveNotificationTotalTime records how long a notification waited before hand-off.
func (m *Metrics) ObserveNotificationTotalTime(channel string, duration time.Duration) {
	if m == nil {
		return
	}
	m.notificationTotalTime.WithLabelValues(normalizeLabel(channel)).Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) ObserveProviderSend(provider string, duration time.Duration) {
	if m == nil {
		return
	}
	m.providerSendDuration.WithLabelValues(normalizeLabel(provider)).Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) IncProviderDemoted(provider string) {
	if m == nil {
		return
	}
	m.providerDemotedTotal.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncProviderSendFailure counts a failed send, split by the provider error
// classification.
func (m *Metrics) IncProviderSendFailure(provider string, transient bool) {
	if m == nil {
		return
	}
	m.providerFailuresTotal.WithLabelValues(normalizeLabel(provider), strconv.FormatBool(transient)).Inc()
}

// IncSESCallback counts an applied SES event, exported as callback_ses_total{status}.
func (m *Metrics) IncSESCallback(status string) {
	if m == nil {
		return
	}
	m.sesCallbacksTotal.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *Metrics) ObserveSESCallbackElapsed(duration time.Duration) {
	if m == nil {
		return
	}
	m.sesCallbackElapsed.Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) IncServiceCallback(callbackType string, outcome string) {
	if m == nil {
		return
	}
	m.serviceCallbacksTotal.WithLabelValues(normalizeLabel(callbackType), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncTaskRetried(queue string) {
	if m == nil {
		return
	}
	m.tasksRetriedTotal.WithLabelValues(normalizeLabel(queue)).Inc()
}

func (m *Metrics) IncTaskDeadLettered(queue string) {
	if m == nil {
		return
	}
	m.tasksDeadLettered.WithLabelValues(normalizeLabel(queue)).Inc()
}

func (m *Metrics) IncWorkerInFlight(queue string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(queue)).Inc()
}

func (m *Metrics) DecWorkerInFlight(queue string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(queue)).Dec()
}

func (m *Metrics) IncReplayed(channel string) {
	if m == nil {
		return
	}
	m.replayedTotal.WithLabelValues(normalizeLabel(channel)).Inc()
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

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

func nonNegativeSeconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return d.Seconds()
}
