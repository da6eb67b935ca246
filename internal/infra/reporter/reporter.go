// Package reporter sends worker status reports to the gateway's status reconciler.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/infra/httpclient"
	"notification-pipeline/internal/resilience/retry"
)

// StatusPath is the reconciler endpoint on the gateway.
const StatusPath = "/api/v1/status"

type poster interface {
	PostJSON(ctx context.Context, path string, body, result any) error
}

// HTTPReporter posts status reports with retries.
type HTTPReporter struct {
	http  poster
	retry retry.Config
}

// New creates an HTTPReporter on top of an authenticated gateway client.
func New(hc *httpclient.Client) *HTTPReporter {
	return &HTTPReporter{http: hc, retry: retry.HTTPClientConfig().Named("status_report")}
}

// Report delivers report. A notification unknown to the gateway yields an error
// wrapping entity.ErrNotFound; retrying it is pointless.
func (r *HTTPReporter) Report(ctx context.Context, report *entity.StatusReport) error {
	err := retry.WithBackoff(ctx, r.retry, func() error {
		return r.http.PostJSON(ctx, StatusPath, report, nil)
	})
	if err == nil {
		return nil
	}
	var httpErr *retry.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("report %s: %w", report.NotificationID, entity.ErrNotFound)
	}
	return fmt.Errorf("report %s status: %w", report.NotificationID, err)
}
