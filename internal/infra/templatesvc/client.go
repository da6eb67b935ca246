// Package templatesvc resolves templates through the template service's substitute endpoint.
package templatesvc

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/infra/httpclient"
	"notification-pipeline/internal/resilience/circuitbreaker"
	"notification-pipeline/internal/resilience/retry"
)

const substitutePath = "/api/v1/templates/substitute/"

type poster interface {
	PostJSON(ctx context.Context, path string, body, result any) error
}

type substituteRequest struct {
	TemplateCode string         `json:"template_code"`
	Language     string         `json:"language"`
	Variables    map[string]any `json:"variables"`
}

// Client implements the template resolver over HTTP behind a circuit breaker.
type Client struct {
	http    poster
	breaker *circuitbreaker.CircuitBreaker
	retry   retry.Config
}

// New creates a Client.
func New(hc *httpclient.Client) *Client {
	cbCfg := circuitbreaker.TemplateServiceConfig()
	cbCfg.IsSuccessful = func(err error) bool { return errors.Is(err, entity.ErrTemplateNotFound) }

	return &Client{
		http:    hc,
		breaker: circuitbreaker.New(cbCfg),
		retry:   retry.HTTPClientConfig().Named("template_service"),
	}
}

// Resolve asks the template service to render code in language with variables.
func (c *Client) Resolve(ctx context.Context, code, language string, variables map[string]any) (*entity.RenderedContent, error) {
	if language == "" {
		language = entity.DefaultLanguage
	}
	if variables == nil {
		variables = map[string]any{}
	}
	req := substituteRequest{TemplateCode: code, Language: language, Variables: variables}

	var out entity.RenderedContent
	err := c.breaker.Do(func() error {
		return retry.WithBackoff(ctx, c.retry, func() error {
			err := c.http.PostJSON(ctx, substitutePath, req, &out)
			var httpErr *retry.HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
				return fmt.Errorf("%w: %s/%s", entity.ErrTemplateNotFound, code, language)
			}
			return err
		})
	})
	if err != nil {
		if errors.Is(err, entity.ErrTemplateNotFound) {
			return nil, err
		}
		return nil, &entity.DependencyError{Dependency: "template_service", Err: err}
	}
	return &out, nil
}

// BreakerState exposes the breaker state for health reporting.
func (c *Client) BreakerState() string {
	return c.breaker.State()
}
