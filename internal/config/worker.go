package config

import (
	"fmt"
	"time"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/infra/provider"
	pkgconfig "notification-pipeline/pkg/config"
)

// Template sources.
const (
	TemplateSourceService  = "service"
	TemplateSourceDatabase = "database"
)

// ChannelWorkerConfig configures the external collaborators of cmd/worker.
// Tunables such as backoff and sweep cadence live in infra/worker.WorkerConfig.
type ChannelWorkerConfig struct {
	Channel entity.Channel
	Version string

	Broker BrokerConfig

	// RedisURL enables the template cache. Optional.
	RedisURL string

	// Identity is presented to the gateway and the template service.
	// Default name: the channel's service name (email_service, push_service).
	Identity Identity

	// StatusService is the gateway base URL receiving status reports. Required.
	StatusService Endpoint

	// TemplateSource selects the resolver: "service" (default) or "database".
	TemplateSource string
	// TemplateService is required when TemplateSource is "service".
	TemplateService Endpoint
	// TemplateCacheTTL applies to the database resolver. Default: 1h
	TemplateCacheTTL time.Duration

	// SMTP is loaded for the email channel only.
	SMTP provider.SMTPConfig
	// Push is loaded for the push channel only.
	Push provider.PushConfig
}

// LoadChannelWorkerConfig loads the worker configuration for one channel.
func LoadChannelWorkerConfig(ch entity.Channel) (*ChannelWorkerConfig, error) {
	cfg := &ChannelWorkerConfig{
		Channel: ch,
		Version: pkgconfig.GetEnvString("APP_VERSION", "dev"),
		Broker: BrokerConfig{
			URL: pkgconfig.GetEnvString("RABBITMQ_URL", ""),
		},
		RedisURL: pkgconfig.GetEnvString("REDIS_URL", ""),
		Identity: loadIdentity(ch.ServiceName()),
		StatusService: Endpoint{
			URL:     pkgconfig.GetEnvString("STATUS_SERVICE_URL", ""),
			Timeout: pkgconfig.GetEnvDuration("STATUS_SERVICE_TIMEOUT", 10*time.Second),
		},
		TemplateSource: pkgconfig.GetEnvString("TEMPLATE_SOURCE", TemplateSourceService),
		TemplateService: Endpoint{
			URL:     pkgconfig.GetEnvString("TEMPLATE_SERVICE_URL", ""),
			Timeout: pkgconfig.GetEnvDuration("TEMPLATE_SERVICE_TIMEOUT", 5*time.Second),
		},
		TemplateCacheTTL: pkgconfig.GetEnvDuration("TEMPLATE_CACHE_TTL", time.Hour),
	}

	switch ch {
	case entity.ChannelEmail:
		cfg.SMTP = provider.SMTPConfig{
			Host:      pkgconfig.GetEnvString("SMTP_HOST", ""),
			Port:      pkgconfig.GetEnvInt("SMTP_PORT", 587),
			Username:  pkgconfig.GetEnvString("SMTP_USERNAME", ""),
			Password:  pkgconfig.GetEnvString("SMTP_PASSWORD", ""),
			From:      pkgconfig.GetEnvString("SMTP_FROM", ""),
			FromName:  pkgconfig.GetEnvString("SMTP_FROM_NAME", ""),
			StartTLS:  pkgconfig.GetEnvBool("SMTP_STARTTLS", true),
			Timeout:   pkgconfig.GetEnvDuration("SMTP_TIMEOUT", 30*time.Second),
			RateLimit: pkgconfig.GetEnvFloat("SMTP_RATE_LIMIT", 10),
		}
	case entity.ChannelPush:
		cfg.Push = provider.PushConfig{
			URL:       pkgconfig.GetEnvString("PUSH_GATEWAY_URL", ""),
			Token:     pkgconfig.GetEnvString("PUSH_GATEWAY_TOKEN", ""),
			Timeout:   pkgconfig.GetEnvDuration("PUSH_TIMEOUT", 10*time.Second),
			RateLimit: pkgconfig.GetEnvFloat("PUSH_RATE_LIMIT", 50),
			Burst:     pkgconfig.GetEnvInt("PUSH_BURST", 10),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s worker configuration: %w", ch, err)
	}
	return cfg, nil
}

// Validate checks configuration correctness.
func (c *ChannelWorkerConfig) Validate() error {
	if c.Broker.URL == "" {
		return fmt.Errorf("RABBITMQ_URL is required")
	}
	if err := c.Identity.validate(); err != nil {
		return err
	}
	if err := c.StatusService.validate("STATUS_SERVICE"); err != nil {
		return err
	}

	switch c.TemplateSource {
	case TemplateSourceService:
		if err := c.TemplateService.validate("TEMPLATE_SERVICE"); err != nil {
			return err
		}
	case TemplateSourceDatabase:
		if c.TemplateCacheTTL <= 0 {
			return fmt.Errorf("TEMPLATE_CACHE_TTL must be positive")
		}
	default:
		return fmt.Errorf("TEMPLATE_SOURCE must be %q or %q, got %q",
			TemplateSourceService, TemplateSourceDatabase, c.TemplateSource)
	}

	switch c.Channel {
	case entity.ChannelEmail:
		return c.SMTP.Validate()
	case entity.ChannelPush:
		return c.Push.Validate()
	default:
		return fmt.Errorf("unsupported channel %v", c.Channel)
	}
}
