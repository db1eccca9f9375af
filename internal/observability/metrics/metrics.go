// Package metrics exposes prometheus counters for the billing core.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

type Metrics struct {
	// UsageRecords counts ledger writes by outcome: accepted, deduplicated, error.
	UsageRecords *prometheus.CounterVec

	// WebhookEvents counts reconciler outcomes by event type and outcome:
	// applied, skipped_stale, org_not_found, acknowledged, rejected, failed.
	WebhookEvents *prometheus.CounterVec

	// HTTPRequestDuration observes handler latency by route and status.
	HTTPRequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		UsageRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantly_usage_records_total",
			Help: "Usage ledger record outcomes.",
		}, []string{"outcome"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantly_webhook_events_total",
			Help: "Webhook reconciler outcomes by event type.",
		}, []string{"type", "outcome"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenantly_http_request_duration_seconds",
			Help:    "HTTP handler latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
	prometheus.MustRegister(m.UsageRecords, m.WebhookEvents, m.HTTPRequestDuration)
	return m
}

// GinMiddleware records request latency per route.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestDuration.
			WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

var Module = fx.Module("observability.metrics",
	fx.Provide(New),
)
