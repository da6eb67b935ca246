package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/observability/correlation"
	"notification-pipeline/internal/observability/metrics"
	"notification-pipeline/internal/observability/tracing"
)

// Delivery is a received message stripped of transport details.
type Delivery struct {
	Body        []byte
	Headers     map[string]string
	MessageID   string
	RoutingKey  string
	Redelivered bool
}

// Handler processes one delivery and decides whether it is acked or requeued.
type Handler func(ctx context.Context, d Delivery) entity.Outcome

// Consumer reads a queue with manual acknowledgements.
type Consumer struct {
	src       channelSource
	prefetch  int
	tag       string
	reconnect time.Duration
}

// NewConsumer creates a consumer. prefetch bounds unacknowledged deliveries per consumer.
func NewConsumer(conn *Connection, tag string, prefetch int) *Consumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Consumer{src: conn, prefetch: prefetch, tag: tag, reconnect: 2 * time.Second}
}

// Run consumes queue until ctx is cancelled. When the channel closes it reconnects and resumes.
// A delivery already handed to h is always settled, even during shutdown.
func (c *Consumer) Run(ctx context.Context, queue string, h Handler) error {
	for {
		err := c.consume(ctx, queue, h)
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("consumer interrupted, reconnecting",
			slog.String("queue", queue),
			slog.Any("error", err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.reconnect):
		}
		if err := c.src.Reconnect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("consumer %s: %w", queue, err)
		}
	}
}

func (c *Consumer) consume(ctx context.Context, queue string, h Handler) error {
	ch, err := c.src.openChannel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	slog.Info("consumer started",
		slog.String("queue", queue),
		slog.Int("prefetch", c.prefetch))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.settle(ctx, queue, d, h)
		}
	}
}

func (c *Consumer) settle(ctx context.Context, queue string, d amqp.Delivery, h Handler) {
	headers := fromTable(d.Headers)
	// シャットダウン中でも受け取った配信は最後まで処理する
	hctx := correlation.FromHeaders(context.WithoutCancel(ctx), headers)
	hctx = tracing.ExtractHeaders(hctx, headers)
	outcome := h(hctx, Delivery{
		Body:        d.Body,
		Headers:     headers,
		MessageID:   d.MessageId,
		RoutingKey:  d.RoutingKey,
		Redelivered: d.Redelivered,
	})

	metrics.RecordConsumed(queue, outcome.String())

	var err error
	switch outcome {
	case entity.OutcomeRequeue:
		err = d.Nack(false, true)
	default:
		err = d.Ack(false)
	}
	if err != nil {
		slog.Error("failed to settle delivery",
			slog.String("outcome", outcome.String()),
			slog.String("correlation_id", correlation.FromContext(hctx)),
			slog.Any("error", err))
	}
}
