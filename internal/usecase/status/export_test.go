package status

import (
	"github.com/prometheus/client_golang/prometheus"

	"notification-pipeline/internal/domain/entity"
)

// ReportsCounter exposes the report counter to the external test package.
func ReportsCounter(st entity.Status, result string) prometheus.Counter {
	return statusReportsTotal.WithLabelValues(string(st), result)
}
