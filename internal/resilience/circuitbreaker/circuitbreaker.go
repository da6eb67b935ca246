// Package circuitbreaker wraps github.com/sony/gobreaker for outbound dependency calls.
//
// Breakers trip after a run of consecutive failures, stay open for a recovery
// timeout and then admit a single probe. A successful probe closes the circuit;
// a failed probe re-opens it.
package circuitbreaker

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned when a call is short-circuited by an open (or probing) breaker.
var ErrOpen = errors.New("circuit breaker is open")

// State names exposed through health and metrics.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

// Config holds the configuration for a circuit breaker.
type Config struct {
	// Name is the circuit breaker name for logging and metrics
	Name string

	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold uint32

	// RecoveryTimeout is how long the circuit stays open before a probe is admitted
	RecoveryTimeout time.Duration

	// IsSuccessful reports whether an error should count as a success.
	// Business outcomes such as "not found" must not trip the breaker.
	IsSuccessful func(err error) bool
}

// DefaultConfig returns a default configuration for circuit breakers.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
	}
}

// UserDirectoryConfig returns configuration for the user directory client.
func UserDirectoryConfig() Config {
	return Config{
		Name:             "user-directory",
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// TemplateServiceConfig returns configuration for the template service client.
func TemplateServiceConfig() Config {
	return Config{
		Name:             "template-service",
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
	}
}

// TemplateStoreConfig returns configuration for template reads from the database.
func TemplateStoreConfig() Config {
	return Config{
		Name:             "template-store",
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// PushGatewayConfig returns configuration for the push provider.
func PushGatewayConfig() Config {
	return Config{
		Name:             "push-gateway",
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
	}
}

// CircuitBreaker wraps gobreaker.CircuitBreaker with additional functionality.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
	name    string
}

// New creates a new circuit breaker with the given configuration.
func New(cfg Config) *CircuitBreaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 1
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				slog.String("circuit", name),
				slog.String("from", stateName(from)),
				slog.String("to", stateName(to)))
		},
	}
	if cfg.IsSuccessful != nil {
		isSuccessful := cfg.IsSuccessful
		settings.IsSuccessful = func(err error) bool {
			return err == nil || isSuccessful(err)
		}
	}

	return &CircuitBreaker{
		breaker: gobreaker.NewCircuitBreaker(settings),
		name:    cfg.Name,
	}
}

// Execute runs fn through the circuit breaker.
// Rejections caused by the open or half-open state are reported as ErrOpen.
func (cb *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := cb.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrOpen
	}
	return result, err
}

// Do is Execute for calls that only return an error.
func (cb *CircuitBreaker) Do(fn func() error) error {
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// State returns the current state name: closed, open or half_open.
func (cb *CircuitBreaker) State() string {
	return stateName(cb.breaker.State())
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// IsOpen returns true if the circuit breaker is in the open state.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.breaker.State() == gobreaker.StateOpen
}

func stateName(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
