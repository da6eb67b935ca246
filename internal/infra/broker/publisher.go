package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"notification-pipeline/internal/observability/correlation"
	"notification-pipeline/internal/observability/metrics"
	"notification-pipeline/internal/observability/tracing"
	"notification-pipeline/internal/resilience/retry"
)

// ErrNotConfirmed is returned when the broker nacks a publish.
var ErrNotConfirmed = errors.New("broker: publish not confirmed")

// Publisher publishes persistent JSON messages to Exchange and waits for broker confirms.
type Publisher struct {
	src            channelSource
	retry          retry.Config
	confirmTimeout time.Duration
}

// NewPublisher creates a publisher over conn using retry.PublishConfig.
func NewPublisher(conn *Connection) *Publisher {
	return &Publisher{
		src:            conn,
		retry:          retry.PublishConfig(),
		confirmTimeout: 5 * time.Second,
	}
}

// Publish sends body with routingKey. Failed attempts trigger a reconnect before the next one.
func (p *Publisher) Publish(ctx context.Context, routingKey string, body []byte, headers map[string]string) error {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Headers:      withCorrelation(ctx, toTable(tracing.InjectHeaders(ctx, headers))),
		Body:         body,
	}

	start := time.Now()
	err := retry.WithBackoff(ctx, p.retry, func() error {
		err := p.publishOnce(ctx, routingKey, msg)
		if err != nil && !errors.Is(err, context.Canceled) {
			if rerr := p.src.Reconnect(ctx); rerr != nil {
				return fmt.Errorf("publish %s: %w (reconnect: %v)", routingKey, err, rerr)
			}
		}
		return err
	})
	metrics.RecordPublish(routingKey, err, time.Since(start))
	return err
}

func (p *Publisher) publishOnce(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	ch, err := p.src.openChannel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("enable confirms: %w", err)
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	if err := ch.Publish(Exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	timer := time.NewTimer(p.confirmTimeout)
	defer timer.Stop()
	select {
	case confirm, ok := <-confirms:
		if !ok || !confirm.Ack {
			return ErrNotConfirmed
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("publish %s: confirm timeout", routingKey)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func toTable(headers map[string]string) amqp.Table {
	if len(headers) == 0 {
		return nil
	}
	t := make(amqp.Table, len(headers))
	for k, v := range headers {
		t[k] = v
	}
	return t
}

// withCorrelation stamps the context's correlation ID unless the caller set one.
func withCorrelation(ctx context.Context, t amqp.Table) amqp.Table {
	id := correlation.FromContext(ctx)
	if id == "" {
		return t
	}
	if t == nil {
		t = amqp.Table{}
	}
	if _, ok := t[correlation.MessageHeader]; !ok {
		t[correlation.MessageHeader] = id
	}
	return t
}

func fromTable(t amqp.Table) map[string]string {
	out := make(map[string]string, len(t))
	for k, v := range t {
		switch val := v.(type) {
		case string:
			out[k] = val
		case []byte:
			out[k] = string(val)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
