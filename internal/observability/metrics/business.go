package metrics

import (
	"database/sql"
	"time"
)

// RecordPublish records one logical publish (all retries included).
func RecordPublish(routingKey string, err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	BrokerPublishedTotal.WithLabelValues(routingKey, result).Inc()
	BrokerPublishDuration.WithLabelValues(routingKey).Observe(duration.Seconds())
}

// RecordConsumed records how a delivery was settled.
func RecordConsumed(queue, outcome string) {
	BrokerConsumedTotal.WithLabelValues(queue, outcome).Inc()
}

// RecordReconnect records a broker reconnect attempt.
func RecordReconnect(connection string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	BrokerReconnectsTotal.WithLabelValues(connection, result).Inc()
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}

// ReportDBStats copies the pool statistics of db into the connection gauges.
func ReportDBStats(db *sql.DB) {
	stats := db.Stats()
	UpdateDBConnectionStats(stats.InUse, stats.Idle)
}
