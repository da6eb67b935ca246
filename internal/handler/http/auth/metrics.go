package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// authRequestsTotal counts service authentication attempts by caller and result.
	authRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_requests_total",
			Help: "Total service authentication requests by service and result",
		},
		[]string{"service", "result"}, // result: success | failure
	)

	// authDuration tracks credential check duration.
	authDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auth_duration_seconds",
			Help:    "Service credential check duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01},
		},
	)
)

// RecordAuthRequest records an authentication attempt.
// Unknown callers are folded into one label to bound cardinality.
func RecordAuthRequest(service, result string) {
	authRequestsTotal.WithLabelValues(service, result).Inc()
}

// RecordAuthDuration records credential check duration.
func RecordAuthDuration(durationSeconds float64) {
	authDuration.Observe(durationSeconds)
}
