package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or
// numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits
// human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and
// environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Hub            HubConfig            `yaml:"hub"`
	Oracle         OracleConfig         `yaml:"oracle"`
	Archive        ArchiveConfig        `yaml:"archive"`
	Snapshots      SnapshotConfig       `yaml:"snapshots"`
	Tokens         []TokenConfig        `yaml:"tokens"`
	Scheduler      SchedulerConfig      `yaml:"scheduler"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	APIKey         APIKeyConfig         `yaml:"api_key"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Address      string   `yaml:"address"`
	RoutePrefix  string   `yaml:"route_prefix"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	IdleTimeout  Duration `yaml:"idle_timeout"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Environment string `yaml:"environment"`
}

// HubConfig names the hub's own identities.
type HubConfig struct {
	// Identity is the principal ledgers know this hub by.
	Identity string `yaml:"identity"`

	// Admin may manage tokens and force-unlock invoices.
	Admin string `yaml:"admin"`

	// FeeCollector receives the platform's share of withdrawal fees.
	FeeCollector string `yaml:"fee_collector"`
}

// OracleConfig selects and points at the exchange rate source.
type OracleConfig struct {
	// Mock switches to the deterministic in-process oracle for dev/test.
	Mock    bool   `yaml:"mock"`
	BaseURL string `yaml:"base_url"`
}

// ArchiveConfig selects the settled-invoice archive backend.
type ArchiveConfig struct {
	// Backend is "http" or "memory".
	Backend string `yaml:"backend"`
	BaseURL string `yaml:"base_url"`
}

// SnapshotConfig selects the state snapshot backend.
type SnapshotConfig struct {
	// Backend is "file", "postgres" or "none".
	Backend     string `yaml:"backend"`
	FilePath    string `yaml:"file_path"`
	PostgresURL string `yaml:"postgres_url"`

	// History is how many superseded snapshots Postgres retains.
	History int `yaml:"history"`
}

// TokenConfig declares one supported token.
type TokenConfig struct {
	ID           string `yaml:"id"`
	Ticker       string `yaml:"ticker"`
	OracleTicker string `yaml:"oracle_ticker"`
	Decimals     uint8  `yaml:"decimals"`

	// Fee is the ledger transfer fee in whole-token units, e.g. "0.0001".
	Fee       string `yaml:"fee"`
	LogoSrc   string `yaml:"logo_src"`
	LedgerURL string `yaml:"ledger_url"`
}

// SchedulerConfig controls the background maintenance cadence.
type SchedulerConfig struct {
	SweepInterval    Duration `yaml:"sweep_interval"`
	DailyHourUTC     int      `yaml:"daily_hour_utc"`
	ArchiveBatchSize int      `yaml:"archive_batch_size"`
}

// RateLimitConfig controls HTTP request throttling.
type RateLimitConfig struct {
	Enabled    bool     `yaml:"enabled"`
	PerIPLimit int      `yaml:"per_ip_limit"`
	Window     Duration `yaml:"window"`
}

// APIKeyConfig maps API keys to the principals they authenticate as.
type APIKeyConfig struct {
	Enabled bool `yaml:"enabled"`

	// Keys maps key material to a principal.
	Keys map[string]string `yaml:"keys"`
}

// BreakerServiceConfig configures one service's circuit breaker.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`
	Interval            Duration `yaml:"interval"`
	Timeout             Duration `yaml:"timeout"`
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"`
	FailureRatio        float64  `yaml:"failure_ratio"`
	MinRequests         uint32   `yaml:"min_requests"`
}

// CircuitBreakerConfig configures breakers for all external services.
type CircuitBreakerConfig struct {
	Enabled    bool                 `yaml:"enabled"`
	LedgerRPC  BreakerServiceConfig `yaml:"ledger_rpc"`
	RateOracle BreakerServiceConfig `yaml:"rate_oracle"`
	Archive    BreakerServiceConfig `yaml:"archive"`
}
