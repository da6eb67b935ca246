// Package broker implements the RabbitMQ transport: topology, a lock-guarded
// shared connection, a confirming publisher and a manual-ack consumer.
package broker

import (
	"fmt"

	"github.com/streadway/amqp"

	"notification-pipeline/internal/domain/entity"
)

const (
	// Exchange is the durable direct exchange every notification is routed through.
	Exchange = "notifications.direct"

	// FailedQueue holds dead-lettered notifications.
	FailedQueue = "failed.queue"
	// FailedRoutingKey routes messages to FailedQueue.
	FailedRoutingKey = entity.DeadLetterRoutingKey

	// HeaderFailureReason is set on messages published to FailedQueue.
	HeaderFailureReason = entity.HeaderFailureReason
)

// Binding pairs a queue with its routing key.
type Binding struct {
	Queue      string
	RoutingKey string
}

// Bindings returns the full queue layout: one queue per channel plus the failed queue.
func Bindings() []Binding {
	out := make([]Binding, 0, len(entity.Channels)+1)
	for _, c := range entity.Channels {
		out = append(out, Binding{Queue: c.QueueName(), RoutingKey: c.RoutingKey()})
	}
	return append(out, Binding{Queue: FailedQueue, RoutingKey: FailedRoutingKey})
}

type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// DeclareTopology ensures the exchange, queues and bindings exist. It is idempotent.
func DeclareTopology(ch declarer) error {
	if err := ch.ExchangeDeclare(
		Exchange,
		amqp.ExchangeDirect,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, b := range Bindings() {
		if _, err := ch.QueueDeclare(b.Queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.Queue, err)
		}
		if err := ch.QueueBind(b.Queue, b.RoutingKey, Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.Queue, err)
		}
	}
	return nil
}
