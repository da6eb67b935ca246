// Package config holds the per-process configuration of the gateway, the
// channel workers and the dead-letter consumer. Each Load* function reads the
// environment once at start and returns a validated struct.
package config

import (
	"fmt"
	"time"

	pkgconfig "notification-pipeline/pkg/config"
)

// Identity is the service name/key pair a process sends on outbound calls.
type Identity struct {
	// Name is sent as X-Service-Name.
	Name string
	// Key is sent as X-Service-Key.
	Key string
}

// Endpoint is a peer service reached over HTTP.
type Endpoint struct {
	URL     string
	Timeout time.Duration
}

// BrokerConfig is shared by every process.
type BrokerConfig struct {
	// URL is the AMQP URL. Required.
	URL string
	// Prefetch bounds unacknowledged deliveries per consumer.
	Prefetch int
}

func loadIdentity(defaultName string) Identity {
	return Identity{
		Name: pkgconfig.GetEnvString("SERVICE_NAME", defaultName),
		Key:  pkgconfig.GetEnvString("SERVICE_KEY", ""),
	}
}

func (i Identity) validate() error {
	if i.Name == "" {
		return fmt.Errorf("SERVICE_NAME cannot be empty")
	}
	if i.Key == "" {
		return fmt.Errorf("SERVICE_KEY is required")
	}
	return nil
}

func (e Endpoint) validate(name string) error {
	if e.URL == "" {
		return fmt.Errorf("%s_URL is required", name)
	}
	if err := pkgconfig.ValidateDurationRange(e.Timeout, 100*time.Millisecond, 2*time.Minute); err != nil {
		return fmt.Errorf("%s_TIMEOUT: %w", name, err)
	}
	return nil
}
