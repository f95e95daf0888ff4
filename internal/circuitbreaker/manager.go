package circuitbreaker

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ServiceType identifies different external services for circuit breaker isolation.
type ServiceType string

const (
	ServiceLedgerRPC  ServiceType = "ledger_rpc"
	ServiceRateOracle ServiceType = "rate_oracle"
	ServiceArchive    ServiceType = "archive"
)

// Manager manages circuit breakers for the hub's external collaborators.
// Each service has its own breaker so a dead oracle cannot poison ledger
// calls and vice versa.
type Manager struct {
	breakers map[ServiceType]*gobreaker.CircuitBreaker
	enabled  bool
}

// BreakerConfig configures a single circuit breaker.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32

	// Interval is the cyclic period in closed state to clear internal counts.
	Interval time.Duration

	// Timeout is the open-state period before becoming half-open.
	Timeout time.Duration

	// Trip thresholds: consecutive failures, or failure ratio over a minimum
	// request count.
	ConsecutiveFailures uint32
	FailureRatio        float64
	MinRequests         uint32
}

// Config holds circuit breaker configuration for all services.
type Config struct {
	Enabled    bool
	LedgerRPC  BreakerConfig
	RateOracle BreakerConfig
	Archive    BreakerConfig
}

// NewManager creates a circuit breaker manager with the given configuration.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		breakers: make(map[ServiceType]*gobreaker.CircuitBreaker),
		enabled:  cfg.Enabled,
	}

	if !cfg.Enabled {
		return m
	}

	m.breakers[ServiceLedgerRPC] = gobreaker.NewCircuitBreaker(toGobreakerSettings(string(ServiceLedgerRPC), cfg.LedgerRPC))
	m.breakers[ServiceRateOracle] = gobreaker.NewCircuitBreaker(toGobreakerSettings(string(ServiceRateOracle), cfg.RateOracle))
	m.breakers[ServiceArchive] = gobreaker.NewCircuitBreaker(toGobreakerSettings(string(ServiceArchive), cfg.Archive))

	return m
}

// Execute wraps a function call with circuit breaker protection.
// If breakers are disabled or the service has none, executes directly.
func (m *Manager) Execute(service ServiceType, fn func() (interface{}, error)) (interface{}, error) {
	if !m.enabled {
		return fn()
	}

	breaker, ok := m.breakers[service]
	if !ok {
		return fn()
	}

	return breaker.Execute(fn)
}

// State returns the current state of a circuit breaker.
func (m *Manager) State(service ServiceType) string {
	if !m.enabled {
		return "disabled"
	}

	breaker, ok := m.breakers[service]
	if !ok {
		return "not_configured"
	}

	return breaker.State().String()
}

// toGobreakerSettings converts our config to gobreaker.Settings.
func toGobreakerSettings(name string, cfg BreakerConfig) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}

			if cfg.FailureRatio > 0 && cfg.MinRequests > 0 && counts.Requests >= cfg.MinRequests {
				failureRate := float64(counts.TotalFailures) / float64(counts.Requests)
				if failureRate >= cfg.FailureRatio {
					return true
				}
			}

			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuitbreaker.state_change")
		},
	}
}

// DefaultConfig returns sensible defaults for circuit breaker configuration.
func DefaultConfig() Config {
	std := BreakerConfig{
		MaxRequests:         3,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
		FailureRatio:        0.5,
		MinRequests:         10,
	}

	return Config{
		Enabled:    true,
		LedgerRPC:  std,
		RateOracle: std,
		Archive:    std,
	}
}
