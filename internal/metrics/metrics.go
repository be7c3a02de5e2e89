// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector so tests can use a private registry.
type Metrics struct {
	// HTTPRequests counts handled requests by method, route and status.
	HTTPRequests *prometheus.CounterVec
	// HTTPDuration observes request latency by method and route.
	HTTPDuration *prometheus.HistogramVec
	// LendingOperations counts successful lending operations by kind
	// (created, returned, renewed, overdue_marked).
	LendingOperations *prometheus.CounterVec
	// LendingRejections counts refused lending operations by kind and error code.
	LendingRejections *prometheus.CounterVec
	// LoginAttempts counts logins by result.
	LoginAttempts *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses a throwaway registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lending_http_requests_total",
			Help: "The total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lending_http_request_duration_seconds",
			Help:    "The HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		LendingOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lending_operations_total",
			Help: "The total number of borrowings created, returned, renewed or marked overdue",
		}, []string{"operation"}),
		LendingRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lending_rejections_total",
			Help: "The total number of refused lending operations",
		}, []string{"operation", "code"}),
		LoginAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lending_login_attempts_total",
			Help: "The total number of login attempts",
		}, []string{"result"}),
	}
}
