// Package events publishes status events to the event stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"notification-pipeline/internal/domain/entity"
)

// DefaultTopic receives status events when no topic is configured.
const DefaultTopic = "notification.status"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes StatusEvents keyed by notification id, so all events of
// one notification land in the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
	}
	return &KafkaPublisher{writer: w, topic: topic}
}

// Publish writes one event.
func (p *KafkaPublisher) Publish(ctx context.Context, event *entity.StatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.NotificationID),
		Value: payload,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(event.Status)},
			{Key: "service_name", Value: []byte(event.ServiceName)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write status event to %s: %w", p.topic, err)
	}
	slog.Debug("status event published",
		slog.String("notification_id", event.NotificationID),
		slog.String("status", string(event.Status)),
		slog.String("topic", p.topic))
	return nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop discards events. It is used when no event stream is configured.
type Noop struct{}

// Publish implements the publisher interface and does nothing.
func (Noop) Publish(context.Context, *entity.StatusEvent) error { return nil }

// Close does nothing.
func (Noop) Close() error { return nil }
