package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_requests_latency_seconds",
			Help:    "Latency of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)

	// Users
	UsersRegistered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "users_registered_total",
			Help: "Total successful registrations",
		},
	)
	UsersUpdated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "users_updated_total",
			Help: "Total successful profile updates",
		},
	)
	AvatarUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avatar_uploads_total",
			Help: "Avatar uploads by result",
		},
		[]string{"result"}, // stored|rejected|failed
	)
	PasswordVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "password_verifications_total",
			Help: "Password verifications by result",
		},
		[]string{"result"}, // match|mismatch
	)

	initOnce sync.Once
)

// /metrics endpoint handler
var Handler = promhttp.Handler

// Init registers the collectors on the default registry. Safe to call twice.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			RequestLatency,
			UsersRegistered,
			UsersUpdated,
			AvatarUploads,
			PasswordVerifications,
		)
	})
}
