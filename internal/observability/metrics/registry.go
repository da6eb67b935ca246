// Package metrics provides centralized Prometheus metrics for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Broker metrics track traffic through the notifications exchange.
var (
	// BrokerPublishedTotal counts publishes by routing key and result (success, failure)
	BrokerPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_published_total",
			Help: "Total number of messages published to the broker",
		},
		[]string{"routing_key", "result"},
	)

	// BrokerPublishDuration measures publish latency including confirms and retries
	BrokerPublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_publish_duration_seconds",
			Help:    "Time taken to publish a message and receive the broker confirm",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"routing_key"},
	)

	// BrokerConsumedTotal counts settled deliveries by queue and outcome (ack, requeue, dead_letter)
	BrokerConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_consumed_total",
			Help: "Total number of deliveries settled by consumers",
		},
		[]string{"queue", "outcome"},
	)

	// BrokerReconnectsTotal counts reconnects by connection name
	BrokerReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_reconnects_total",
			Help: "Total number of broker reconnects",
		},
		[]string{"connection", "result"},
	)
)

// Database metrics track database performance
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// RetryAttemptsTotal counts backoff decisions by operation and result
// (retry, recovered, exhausted, aborted).
var RetryAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "retry_attempts_total",
		Help: "Retry decisions taken by bounded backoff loops",
	},
	[]string{"operation", "result"},
)

// RecordRetry counts one retry decision. Unnamed operations are reported as "unnamed".
func RecordRetry(operation, result string) {
	if operation == "" {
		operation = "unnamed"
	}
	RetryAttemptsTotal.WithLabelValues(operation, result).Inc()
}
