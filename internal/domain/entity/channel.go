package entity

import (
	"fmt"
	"strings"
)

// Channel is a notification delivery medium. Each channel owns a queue,
// a routing key and a worker.
type Channel int

const (
	ChannelUnknown Channel = iota
	ChannelEmail
	ChannelPush
)

// Channels lists every deliverable channel in declaration order.
var Channels = []Channel{ChannelEmail, ChannelPush}

// ParseChannel converts the wire value of notification_type into a Channel.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "email":
		return ChannelEmail, nil
	case "push":
		return ChannelPush, nil
	default:
		return ChannelUnknown, &ValidationError{
			Field:   "notification_type",
			Message: fmt.Sprintf("must be one of email, push (got %q)", s),
		}
	}
}

func (c Channel) String() string {
	switch c {
	case ChannelEmail:
		return "email"
	case ChannelPush:
		return "push"
	default:
		return "unknown"
	}
}

// RoutingKey is the direct-exchange routing key bound to the channel queue.
func (c Channel) RoutingKey() string {
	return c.String()
}

// QueueName returns the durable queue consumed by the channel worker.
func (c Channel) QueueName() string {
	return c.String() + ".queue"
}

// ServiceName is the identity the channel worker uses towards other services.
func (c Channel) ServiceName() string {
	return c.String() + "_service"
}

// FailureCode is the error code reported upstream when delivery terminally fails.
func (c Channel) FailureCode() string {
	return strings.ToUpper(c.String()) + "_SEND_FAILED"
}

// MarshalText implements encoding.TextMarshaler.
func (c Channel) MarshalText() ([]byte, error) {
	if c == ChannelUnknown {
		return nil, fmt.Errorf("marshal unknown channel")
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Channel) UnmarshalText(b []byte) error {
	parsed, err := ParseChannel(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
