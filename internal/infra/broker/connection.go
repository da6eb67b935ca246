package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"notification-pipeline/internal/observability/metrics"
	"notification-pipeline/internal/resilience/retry"
)

// ErrNotConnected is returned when the shared connection is closed or was never opened.
var ErrNotConnected = errors.New("broker: not connected")

// channel is the subset of *amqp.Channel used by the publisher and consumer.
type channel interface {
	declarer
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	Close() error
}

// channelSource hands out channels and repairs the underlying connection.
type channelSource interface {
	openChannel() (channel, error)
	Reconnect(ctx context.Context) error
}

// Connection is one AMQP connection shared by a process.
// Channels are opened under the read lock; Reconnect swaps the connection under the write lock.
type Connection struct {
	url    string
	name   string
	dialFn func(url string, cfg amqp.Config) (*amqp.Connection, error)
	retry  retry.Config

	mu   sync.RWMutex
	conn *amqp.Connection
}

// Dial opens the connection, retrying with backoff until ctx is done or attempts run out,
// and declares the topology.
func Dial(ctx context.Context, url, name string) (*Connection, error) {
	if url == "" {
		return nil, errors.New("broker: RABBITMQ_URL not set")
	}
	c := &Connection{url: url, name: name, dialFn: amqp.DialConfig, retry: retry.ReconnectConfig()}
	if err := c.Reconnect(ctx); err != nil {
		return nil, err
	}

	ch, err := c.Channel()
	if err != nil {
		return nil, err
	}
	defer func() { _ = ch.Close() }()
	if err := DeclareTopology(ch); err != nil {
		return nil, err
	}
	return c, nil
}

// Channel opens a new AMQP channel on the current connection.
func (c *Connection) Channel() (*amqp.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil || c.conn.IsClosed() {
		return nil, ErrNotConnected
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, nil
}

func (c *Connection) openChannel() (channel, error) {
	ch, err := c.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Reconnect replaces a closed connection. It is a no-op while the connection is open,
// so concurrent callers that observed the same failure dial only once.
func (c *Connection) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		return nil
	}

	err := retry.WithBackoff(ctx, c.retry, func() error {
		conn, err := c.dialFn(c.url, amqp.Config{
			Heartbeat:  10 * time.Second,
			Locale:     "en_US",
			Dial:       amqp.DefaultDial(10 * time.Second),
			Properties: amqp.Table{"connection_name": c.name},
		})
		if err != nil {
			return fmt.Errorf("dial rabbitmq: %w", err)
		}
		c.conn = conn
		slog.Info("rabbitmq connected", slog.String("connection", c.name))
		go c.watch(conn)
		return nil
	})
	metrics.RecordReconnect(c.name, err)
	return err
}

func (c *Connection) watch(conn *amqp.Connection) {
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	if err, ok := <-closed; ok && err != nil {
		slog.Warn("rabbitmq connection closed",
			slog.String("connection", c.name),
			slog.Int("code", err.Code),
			slog.String("reason", err.Reason))
	}
}

// Check reports whether the connection is usable; used by health endpoints.
func (c *Connection) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil || c.conn.IsClosed() {
		return ErrNotConnected
	}
	return nil
}

// Close closes the connection. Later calls are no-ops.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}
