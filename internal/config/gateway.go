package config

import (
	"fmt"
	"time"

	pkgconfig "notification-pipeline/pkg/config"
)

// GatewayConfig configures cmd/gateway.
type GatewayConfig struct {
	// Addr is the HTTP listen address. Default: ":8080"
	Addr string

	// Version is reported by /health. Default: "dev"
	Version string

	Broker BrokerConfig

	// RedisURL enables the idempotency lock and the contact cache.
	// Empty disables both; submissions then rely on the unique request_id.
	RedisURL string

	// UserService is the user directory. Required.
	UserService Endpoint

	// Identity is presented to the user directory.
	Identity Identity

	// LockTTL bounds how long a submission holds its request_id lock. Default: 30s
	LockTTL time.Duration

	// RequestTimeout bounds each API request. Default: 30s
	RequestTimeout time.Duration

	// RateLimit is requests per second per caller; zero disables. Default: 50
	RateLimit float64
	// RateBurst is the per-caller burst. Default: 100
	RateBurst int

	// StatusEventsBrokers from the comma-separated STATUS_EVENTS_BROKERS. Empty disables the event stream.
	StatusEventsBrokers []string
	// StatusEventsTopic. Default: "notification-status"
	StatusEventsTopic string

	// ShutdownTimeout bounds graceful shutdown. Default: 15s
	ShutdownTimeout time.Duration
}

// LoadGatewayConfig loads the gateway configuration from environment variables.
func LoadGatewayConfig() (*GatewayConfig, error) {
	cfg := &GatewayConfig{
		Addr:    pkgconfig.GetEnvString("GATEWAY_ADDR", ":8080"),
		Version: pkgconfig.GetEnvString("APP_VERSION", "dev"),
		Broker: BrokerConfig{
			URL: pkgconfig.GetEnvString("RABBITMQ_URL", ""),
		},
		RedisURL: pkgconfig.GetEnvString("REDIS_URL", ""),
		UserService: Endpoint{
			URL:     pkgconfig.GetEnvString("USER_SERVICE_URL", ""),
			Timeout: pkgconfig.GetEnvDuration("USER_SERVICE_TIMEOUT", 5*time.Second),
		},
		Identity:            loadIdentity("api_gateway"),
		LockTTL:             pkgconfig.GetEnvDuration("IDEMPOTENCY_LOCK_TTL", 30*time.Second),
		RequestTimeout:      pkgconfig.GetEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		RateLimit:           pkgconfig.GetEnvFloat("RATE_LIMIT_RPS", 50),
		RateBurst:           pkgconfig.GetEnvInt("RATE_LIMIT_BURST", 100),
		StatusEventsBrokers: pkgconfig.GetEnvStringList("STATUS_EVENTS_BROKERS", nil),
		StatusEventsTopic:   pkgconfig.GetEnvString("STATUS_EVENTS_TOPIC", "notification-status"),
		ShutdownTimeout:     pkgconfig.GetEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gateway configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration correctness.
func (c *GatewayConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("GATEWAY_ADDR cannot be empty")
	}
	if c.Broker.URL == "" {
		return fmt.Errorf("RABBITMQ_URL is required")
	}
	if err := c.UserService.validate("USER_SERVICE"); err != nil {
		return err
	}
	if err := c.Identity.validate(); err != nil {
		return err
	}
	if err := pkgconfig.ValidatePositiveDuration(c.LockTTL); err != nil {
		return fmt.Errorf("IDEMPOTENCY_LOCK_TTL: %w", err)
	}
	if err := pkgconfig.ValidatePositiveDuration(c.RequestTimeout); err != nil {
		return fmt.Errorf("REQUEST_TIMEOUT: %w", err)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS cannot be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1")
	}
	if len(c.StatusEventsBrokers) > 0 && c.StatusEventsTopic == "" {
		return fmt.Errorf("STATUS_EVENTS_TOPIC cannot be empty when STATUS_EVENTS_BROKERS is set")
	}
	if err := pkgconfig.ValidatePositiveDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}
	return nil
}
