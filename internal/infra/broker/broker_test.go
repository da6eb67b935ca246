package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/observability/correlation"
	"notification-pipeline/internal/resilience/retry"
)

/* ── fakes ── */

type fakeChannel struct {
	mu         sync.Mutex
	published  []amqp.Publishing
	keys       []string
	ack        bool
	publishErr error
	confirms   chan amqp.Confirmation
	deliveries chan amqp.Delivery
	prefetch   int
	closed     bool

	exchanges []string
	queues    []string
	binds     map[string]string
}

var _ channel = (*fakeChannel)(nil)

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.exchanges = append(f.exchanges, name+":"+kind)
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.queues = append(f.queues, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	if f.binds == nil {
		f.binds = map[string]string{}
	}
	f.binds[name] = key
	return nil
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	f.prefetch = prefetchCount
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	f.keys = append(f.keys, key)
	f.confirms <- amqp.Confirmation{DeliveryTag: uint64(len(f.published)), Ack: f.ack}
	return nil
}

func (f *fakeChannel) Confirm(noWait bool) error { return nil }

func (f *fakeChannel) NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation {
	f.confirms = confirm
	return confirm
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type fakeSource struct {
	mu         sync.Mutex
	channels   []*fakeChannel
	next       int
	reconnects int
}

var _ channelSource = (*fakeSource)(nil)

func (s *fakeSource) openChannel() (channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.channels) {
		return nil, ErrNotConnected
	}
	ch := s.channels[s.next]
	if len(s.channels) > 1 {
		s.next++
	}
	return ch, nil
}

func (s *fakeSource) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	return nil
}

type fakeAcker struct {
	mu     sync.Mutex
	acks   []uint64
	nacks  []uint64
	requeu []bool
}

func (a *fakeAcker) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, tag)
	return nil
}

func (a *fakeAcker) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks = append(a.nacks, tag)
	a.requeu = append(a.requeu, requeue)
	return nil
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error { return nil }

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
		RetryIf:      func(err error) bool { return !errors.Is(err, context.Canceled) },
	}
}

/* ── topology ── */

func TestDeclareTopology(t *testing.T) {
	ch := &fakeChannel{}

	require.NoError(t, DeclareTopology(ch))

	assert.Equal(t, []string{"notifications.direct:direct"}, ch.exchanges)
	assert.ElementsMatch(t, []string{"email.queue", "push.queue", "failed.queue"}, ch.queues)
	assert.Equal(t, map[string]string{
		"email.queue":  "email",
		"push.queue":   "push",
		"failed.queue": "failed",
	}, ch.binds)
}

/* ── publisher ── */

func TestPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{ack: true}
	src := &fakeSource{channels: []*fakeChannel{ch}}
	p := &Publisher{src: src, retry: fastRetry(), confirmTimeout: time.Second}

	err := p.Publish(context.Background(), "email", []byte(`{"a":1}`), map[string]string{HeaderFailureReason: "malformed_payload"})

	require.NoError(t, err)
	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "email", ch.keys[0])
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "malformed_payload", msg.Headers[HeaderFailureReason])
	assert.NotEmpty(t, msg.MessageId)
	assert.True(t, ch.closed)
	assert.Zero(t, src.reconnects)
}

func TestPublisher_Publish_RetriesAndReconnects(t *testing.T) {
	bad := &fakeChannel{publishErr: amqp.ErrClosed}
	good := &fakeChannel{ack: true}
	src := &fakeSource{channels: []*fakeChannel{bad, good}}
	p := &Publisher{src: src, retry: fastRetry(), confirmTimeout: time.Second}

	err := p.Publish(context.Background(), "push", []byte(`{}`), nil)

	require.NoError(t, err)
	assert.Equal(t, 1, src.reconnects)
	assert.Len(t, good.published, 1)
}

func TestPublisher_Publish_NackExhaustsAttempts(t *testing.T) {
	ch := &fakeChannel{ack: false}
	src := &fakeSource{channels: []*fakeChannel{ch}}
	p := &Publisher{src: src, retry: fastRetry(), confirmTimeout: time.Second}

	err := p.Publish(context.Background(), "email", []byte(`{}`), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConfirmed)
	assert.Len(t, ch.published, 3)
	assert.Equal(t, 3, src.reconnects)
}

func TestPublisher_Publish_NotConnected(t *testing.T) {
	src := &fakeSource{}
	p := &Publisher{src: src, retry: fastRetry(), confirmTimeout: time.Second}

	err := p.Publish(context.Background(), "email", []byte(`{}`), nil)

	assert.ErrorIs(t, err, ErrNotConnected)
}

/* ── consumer ── */

func TestConsumer_Run_SettlesByOutcome(t *testing.T) {
	acker := &fakeAcker{}
	deliveries := make(chan amqp.Delivery, 2)
	deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: []byte("ok")}
	deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 2, Body: []byte("again"),
		Headers: amqp.Table{"x-failure-reason": "malformed_payload"}}

	ch := &fakeChannel{deliveries: deliveries}
	c := &Consumer{src: &fakeSource{channels: []*fakeChannel{ch}}, prefetch: 1, reconnect: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []Delivery
	var mu sync.Mutex
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, "email.queue", func(_ context.Context, d Delivery) entity.Outcome {
			mu.Lock()
			seen = append(seen, d)
			n := len(seen)
			mu.Unlock()
			if n == 2 {
				defer cancel()
				return entity.OutcomeRequeue
			}
			return entity.OutcomeAck
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}

	assert.Equal(t, 1, ch.prefetch)
	assert.Equal(t, []uint64{1}, acker.acks)
	assert.Equal(t, []uint64{2}, acker.nacks)
	assert.Equal(t, []bool{true}, acker.requeu)
	require.Len(t, seen, 2)
	assert.Equal(t, "malformed_payload", seen[1].Headers["x-failure-reason"])
}

func TestConsumer_Run_ReconnectsWhenChannelCloses(t *testing.T) {
	first := make(chan amqp.Delivery)
	close(first)
	second := make(chan amqp.Delivery)

	src := &fakeSource{channels: []*fakeChannel{{deliveries: first}, {deliveries: second}}}
	c := &Consumer{src: src, prefetch: 1, reconnect: time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := c.Run(ctx, "push.queue", func(context.Context, Delivery) entity.Outcome { return entity.OutcomeAck })

	require.NoError(t, err)
	assert.Equal(t, 1, src.reconnects)
}

func TestPublisher_Publish_StampsCorrelationID(t *testing.T) {
	ch := &fakeChannel{ack: true}
	p := &Publisher{src: &fakeSource{channels: []*fakeChannel{ch}}, retry: fastRetry(), confirmTimeout: time.Second}
	ctx := correlation.WithID(context.Background(), "corr-1")

	require.NoError(t, p.Publish(ctx, "email", []byte(`{}`), nil))

	assert.Equal(t, "corr-1", ch.published[0].Headers[correlation.MessageHeader])
}

func TestWithCorrelation_KeepsCallerValue(t *testing.T) {
	ctx := correlation.WithID(context.Background(), "from-ctx")

	got := withCorrelation(ctx, amqp.Table{correlation.MessageHeader: "explicit"})
	assert.Equal(t, "explicit", got[correlation.MessageHeader])

	assert.Nil(t, withCorrelation(context.Background(), nil))
}

func TestConsumer_Run_RestoresCorrelationID(t *testing.T) {
	deliveries := make(chan amqp.Delivery, 1)
	deliveries <- amqp.Delivery{Acknowledger: &fakeAcker{}, DeliveryTag: 1,
		Headers: amqp.Table{correlation.MessageHeader: "corr-9"}}
	c := &Consumer{src: &fakeSource{channels: []*fakeChannel{{deliveries: deliveries}}}, prefetch: 1, reconnect: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got string
	err := c.Run(ctx, "email.queue", func(hctx context.Context, _ Delivery) entity.Outcome {
		got = correlation.FromContext(hctx)
		cancel()
		return entity.OutcomeAck
	})

	require.NoError(t, err)
	assert.Equal(t, "corr-9", got)
}

func TestHeaderTables(t *testing.T) {
	assert.Nil(t, toTable(nil))

	got := fromTable(amqp.Table{"a": "x", "b": []byte("y"), "c": int32(3)})
	assert.Equal(t, map[string]string{"a": "x", "b": "y", "c": "3"}, got)
}

func TestConnection_NotConnected(t *testing.T) {
	c := &Connection{}

	_, err := c.Channel()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, c.Check(context.Background()), ErrNotConnected)
	assert.NoError(t, c.Close())
}

func TestDial_RequiresURL(t *testing.T) {
	_, err := Dial(context.Background(), "", "test")
	assert.Error(t, err)
}
