package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trustchain_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	tcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trustchain_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	tcSubmissionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trustchain_submissions_accepted_total",
		Help: "Total submissions committed to the ledger.",
	})

	tcSubmissionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trustchain_submissions_rejected_total",
		Help: "Total rejected submissions by reason.",
	}, []string{"reason"})

	tcWebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trustchain_webhook_deliveries_total",
		Help: "Total webhook delivery attempts by outcome.",
	}, []string{"status"})
)

// PrometheusMiddleware returns a gin middleware recording per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		tcRequestsTotal.WithLabelValues(method, path, status).Inc()
		tcRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a gin handler serving Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordSubmissionAccepted counts a committed submission.
func RecordSubmissionAccepted() {
	tcSubmissionsAccepted.Inc()
}

// RecordSubmissionRejected counts a rejected submission by reason.
func RecordSubmissionRejected(reason string) {
	tcSubmissionsRejected.WithLabelValues(reason).Inc()
}

// RecordWebhookDelivery counts a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		tcWebhookDeliveries.WithLabelValues("success").Inc()
	} else {
		tcWebhookDeliveries.WithLabelValues("failure").Inc()
	}
}
