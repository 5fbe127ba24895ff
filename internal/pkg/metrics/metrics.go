package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 30, 120, 300},
		},
		[]string{"method", "route"},
	)

	admissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "usage",
			Name:      "admissions_total",
			Help:      "Admission decisions by plan and outcome",
		},
		[]string{"plan", "outcome"},
	)

	processingAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "processing",
			Name:      "attempts_total",
			Help:      "Upstream call attempts by result",
		},
		[]string{"result"},
	)

	processingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "processing",
			Name:      "job_duration_seconds",
			Help:      "End to end processing job duration",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Billing webhook deliveries by event kind and result",
		},
		[]string{"kind", "result"},
	)
)

// RecordAdmission counts one admission decision. outcome is "admitted" or a
// denial code.
func RecordAdmission(plan, outcome string) {
	if plan == "" {
		plan = "none"
	}
	admissionsTotal.WithLabelValues(plan, outcome).Inc()
}

// RecordAttempt counts one upstream call attempt.
func RecordAttempt(result string) {
	processingAttemptsTotal.WithLabelValues(result).Inc()
}

// ObserveJob records a finished processing job.
func ObserveJob(outcome string, d time.Duration) {
	processingDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordWebhook counts one webhook delivery.
func RecordWebhook(kind, result string) {
	if kind == "" {
		kind = "unknown"
	}
	webhookEventsTotal.WithLabelValues(kind, result).Inc()
}

// Middleware records request counts and latency labelled by route pattern.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		route := c.Route().Path
		httpRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
