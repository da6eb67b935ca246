package config

import (
	"fmt"

	pkgconfig "notification-pipeline/pkg/config"
)

// DeadLetterConfig configures cmd/deadletter.
type DeadLetterConfig struct {
	Version string

	// Broker.Prefetch default: 10. Dead letters are cheap to record.
	Broker BrokerConfig

	// HealthPort serves health and metrics. Default: 9092
	HealthPort int
}

// LoadDeadLetterConfig loads the dead-letter consumer configuration.
func LoadDeadLetterConfig() (*DeadLetterConfig, error) {
	cfg := &DeadLetterConfig{
		Version: pkgconfig.GetEnvString("APP_VERSION", "dev"),
		Broker: BrokerConfig{
			URL:      pkgconfig.GetEnvString("RABBITMQ_URL", ""),
			Prefetch: pkgconfig.GetEnvInt("DEADLETTER_PREFETCH", 10),
		},
		HealthPort: pkgconfig.GetEnvInt("DEADLETTER_HEALTH_PORT", 9092),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dead-letter configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration correctness.
func (c *DeadLetterConfig) Validate() error {
	if c.Broker.URL == "" {
		return fmt.Errorf("RABBITMQ_URL is required")
	}
	if c.Broker.Prefetch < 1 || c.Broker.Prefetch > 100 {
		return fmt.Errorf("DEADLETTER_PREFETCH must be between 1 and 100")
	}
	if c.HealthPort < 1024 || c.HealthPort > 65535 {
		return fmt.Errorf("DEADLETTER_HEALTH_PORT must be between 1024 and 65535")
	}
	return nil
}
