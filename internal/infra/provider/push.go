package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/resilience/circuitbreaker"
)

// PushConfig configures the push gateway transport.
type PushConfig struct {
	// URL is the gateway send endpoint.
	URL string
	// Token is sent as a bearer credential.
	Token     string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

// Validate checks required fields.
func (c PushConfig) Validate() error {
	if c.URL == "" {
		return errors.New("PUSH_GATEWAY_URL is required")
	}
	return nil
}

// PushSender posts notifications to an FCM-style HTTP gateway.
type PushSender struct {
	cfg        PushConfig
	httpClient *http.Client
	limiter    *RateLimiter
	breaker    *circuitbreaker.CircuitBreaker
}

// NewPushSender creates a sender. A zero Timeout defaults to 10s.
func NewPushSender(cfg PushConfig) *PushSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cbCfg := circuitbreaker.PushGatewayConfig()
	cbCfg.IsSuccessful = func(err error) bool {
		var clientErr *ClientError
		return IsPermanent(err) || errors.As(err, &clientErr)
	}
	return &PushSender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    NewRateLimiter(cfg.RateLimit, cfg.Burst),
		breaker:    circuitbreaker.New(cbCfg),
	}
}

type pushMessage struct {
	Message pushBody `json:"message"`
}

type pushBody struct {
	Token        string            `json:"token"`
	Notification pushNotification  `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type pushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type pushResponse struct {
	Name  string `json:"name"`
	Error *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Send pushes content to the device token in destination. data is flattened to strings.
func (p *PushSender) Send(ctx context.Context, destination string, content *entity.RenderedContent, data map[string]any) (*Receipt, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("push rate limit: %w", err)
	}

	payload, err := json.Marshal(pushMessage{Message: pushBody{
		Token:        destination,
		Notification: pushNotification{Title: content.Subject, Body: content.Body},
		Data:         stringify(data),
	}})
	if err != nil {
		return nil, fmt.Errorf("marshal push payload: %w", err)
	}

	var receipt *Receipt
	err = p.breaker.Do(func() error {
		r, err := p.post(ctx, payload)
		receipt = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (p *PushSender) post(ctx context.Context, payload []byte) (*Receipt, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var parsed pushResponse
	_ = json.Unmarshal(body, &parsed)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if parsed.Name == "" {
			return nil, &ServerError{StatusCode: resp.StatusCode, Message: "push gateway returned no message name"}
		}
		return &Receipt{MessageID: parsed.Name, Response: string(body)}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{Message: "push gateway rate limit exceeded", RetryAfter: retryAfter(resp)}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		if parsed.Error != nil && (parsed.Error.Status == "UNREGISTERED" || parsed.Error.Status == "NOT_FOUND") {
			return nil, &InvalidTokenError{Reason: parsed.Error.Status}
		}
		return nil, &ClientError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("push gateway client error: %s", string(body))}
	default:
		return nil, &ServerError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("push gateway server error: %d", resp.StatusCode)}
	}
}

// BreakerState exposes the breaker state for health reporting.
func (p *PushSender) BreakerState() string {
	return p.breaker.State()
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 5 * time.Second
}

func stringify(data map[string]any) map[string]string {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		default:
			b, err := json.Marshal(val)
			if err != nil {
				out[k] = fmt.Sprint(val)
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}
