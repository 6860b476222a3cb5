package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agence",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method, and status code.",
	}, []string{"route", "method", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agence",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	RealtimeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agence",
		Subsystem: "realtime",
		Name:      "events_total",
		Help:      "Realtime events published by event name.",
	}, []string{"event"})

	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agence",
		Subsystem: "notifications",
		Name:      "created_total",
		Help:      "Notifications created by type.",
	}, []string{"type"})

	PersistErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agence",
		Subsystem: "store",
		Name:      "persist_errors_total",
		Help:      "Failed document writes.",
	})

	ConnectedAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agence",
		Subsystem: "realtime",
		Name:      "connected_agents",
		Help:      "Distinct agents with an open event stream.",
	})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agence",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-client rate limiter.",
	})
)

// MetricsHandler serves the prometheus registry for /metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
