// Package observability provides Prometheus metrics, OpenTelemetry tracing,
// and structured logging setup for the chat server.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LatencyBuckets defines histogram buckets for request latencies, ranging
// from 1ms to 5s. Login and register are dominated by Argon2id cost, so the
// upper buckets matter.
var LatencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LatencyBuckets,
		},
		[]string{"method"},
	)

	// AuthFailuresTotal counts requests rejected by the authentication gate.
	// reason is "missing" or "invalid".
	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_auth_failures_total",
			Help: "Authentication gate rejections",
		},
		[]string{"reason"},
	)

	// LoginAttemptsTotal counts login attempts by outcome
	// (success, invalid_credentials, limited, error).
	LoginAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_login_attempts_total",
			Help: "Login attempts",
		},
		[]string{"outcome"},
	)

	// NotifySubscribers tracks the number of connected SSE notify clients.
	NotifySubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_notify_subscribers",
			Help: "Connected notify stream subscribers",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthFailuresTotal,
		LoginAttemptsTotal,
		NotifySubscribers,
	)
}
