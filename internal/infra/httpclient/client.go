// Package httpclient is the JSON client used for service-to-service calls.
// Every request carries the caller's X-Service-Name / X-Service-Key pair, and
// responses use the shared {success, message, data, error, meta} envelope.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"notification-pipeline/internal/resilience/retry"
)

// Header names used for service authentication.
const (
	HeaderServiceName = "X-Service-Name"
	HeaderServiceKey  = "X-Service-Key"
)

const maxErrorBody = 4096

// Config configures a Client.
type Config struct {
	BaseURL     string
	ServiceName string
	ServiceKey  string
	Timeout     time.Duration
}

// Envelope is the response body shape shared by every peer service.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Meta    json.RawMessage `json:"meta,omitempty"`
}

// Client is a JSON HTTP client bound to one peer service.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	serviceName string
	serviceKey  string
}

// New creates a client. A zero Timeout defaults to 10s.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		serviceName: cfg.ServiceName,
		serviceKey:  cfg.ServiceKey,
	}
}

// GetJSON sends a GET and decodes the envelope's data into result.
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, result)
}

// PostJSON sends body as JSON and decodes the envelope's data into result.
func (c *Client) PostJSON(ctx context.Context, path string, body, result any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, result)
}

// doJSON returns *retry.HTTPError for non-2xx responses so callers can
// classify with retry.IsRetryable and inspect StatusCode.
func (c *Client) doJSON(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.serviceName != "" {
		req.Header.Set(HeaderServiceName, c.serviceName)
		req.Header.Set(HeaderServiceKey, c.serviceKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &retry.HTTPError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	if result == nil {
		return nil
	}

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		return fmt.Errorf("peer reported failure: %s", firstNonEmpty(env.Error, env.Message))
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("peer response has no data")
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// errorMessage prefers the envelope's error code, falling back to the raw body.
func errorMessage(raw []byte) string {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err == nil {
		if m := firstNonEmpty(env.Error, env.Message); m != "" {
			return m
		}
	}
	return strings.TrimSpace(string(raw))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
