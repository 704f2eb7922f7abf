// Package metrics registers the engine's Prometheus collectors, grounded
// on LumenPrima-tr-engine/internal/metrics/metrics.go's shape (package-level
// collector vars, one init() registering them all, an HTTP instrumentation
// middleware keyed off the route pattern rather than the raw path).
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chronicle"

// HTTP metrics, incremented by Instrument.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Session metrics, incremented directly by the Conversation Controller
// and the duplex websocket handler.
var (
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of duplex audio sessions currently connected.",
	})

	SessionsEndedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_ended_total",
		Help:      "Total conversations ended, labeled by end reason.",
	}, []string{"reason"})

	AudioChunksIngestedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_chunks_ingested_total",
		Help:      "Total audio chunks received over duplex connections.",
	})
)

// Job metrics, incremented by the Scheduler in jobs/infrastructure.
// JobDuration is registered, but nothing observes it.
var (
	JobsEnqueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_enqueued_total",
		Help:      "Total jobs enqueued, labeled by queue and function.",
	}, []string{"queue", "function"})

	JobsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_completed_total",
		Help:      "Total jobs completed, labeled by queue, function and outcome.",
	}, []string{"queue", "function", "outcome"})

	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Job execution duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"queue", "function"})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SessionsActive,
		SessionsEndedTotal,
		AudioChunksIngestedTotal,
		JobsEnqueuedTotal,
		JobsCompletedTotal,
		JobDuration,
	)
}

// Instrument returns gin middleware recording request count and latency,
// keyed off the matched route pattern (c.FullPath()) rather than the raw
// path so per-conversation-ID routes don't blow up cardinality.
func Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		pattern := c.FullPath()
		if pattern == "" {
			pattern = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(c.Request.Method, pattern, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, pattern).Observe(duration)
	}
}
