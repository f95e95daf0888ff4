package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration. All env
// vars use the MESAPAY_ prefix for namespace isolation.
func (c *Config) applyEnvOverrides() {
	// Server config
	setIfEnv(&c.Server.Address, "MESAPAY_SERVER_ADDRESS")
	setIfEnv(&c.Server.RoutePrefix, "MESAPAY_ROUTE_PREFIX")
	if c.Server.RoutePrefix != "" {
		c.Server.RoutePrefix = normalizeRoutePrefix(c.Server.RoutePrefix)
	}

	// Logging config
	setIfEnv(&c.Logging.Level, "MESAPAY_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "MESAPAY_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "MESAPAY_ENVIRONMENT")

	// Hub identities
	setIfEnv(&c.Hub.Identity, "MESAPAY_IDENTITY")
	setIfEnv(&c.Hub.Admin, "MESAPAY_ADMIN")
	setIfEnv(&c.Hub.FeeCollector, "MESAPAY_FEE_COLLECTOR")

	// Oracle config
	setBoolIfEnv(&c.Oracle.Mock, "MESAPAY_ORACLE_MOCK")
	setIfEnv(&c.Oracle.BaseURL, "MESAPAY_ORACLE_URL")

	// Archive config
	setIfEnv(&c.Archive.Backend, "MESAPAY_ARCHIVE_BACKEND")
	setIfEnv(&c.Archive.BaseURL, "MESAPAY_ARCHIVE_URL")

	// Snapshot config
	setIfEnv(&c.Snapshots.Backend, "MESAPAY_SNAPSHOT_BACKEND")
	setIfEnv(&c.Snapshots.FilePath, "MESAPAY_SNAPSHOT_FILE_PATH")
	setIfEnv(&c.Snapshots.PostgresURL, "MESAPAY_SNAPSHOT_POSTGRES_URL")

	// Scheduler config
	setDurationIfEnv(&c.Scheduler.SweepInterval, "MESAPAY_SWEEP_INTERVAL")
	setIntIfEnv(&c.Scheduler.DailyHourUTC, "MESAPAY_DAILY_HOUR_UTC")
	setIntIfEnv(&c.Scheduler.ArchiveBatchSize, "MESAPAY_ARCHIVE_BATCH_SIZE")

	// Rate limit config
	setBoolIfEnv(&c.RateLimit.Enabled, "MESAPAY_RATE_LIMIT_ENABLED")
	setIntIfEnv(&c.RateLimit.PerIPLimit, "MESAPAY_RATE_LIMIT_PER_IP")
	setDurationIfEnv(&c.RateLimit.Window, "MESAPAY_RATE_LIMIT_WINDOW")

	// API key config: MESAPAY_API_KEY_<NAME>=<key>:<principal>
	setBoolIfEnv(&c.APIKey.Enabled, "MESAPAY_API_KEY_ENABLED")
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, "MESAPAY_API_KEY_") || strings.HasPrefix(env, "MESAPAY_API_KEY_ENABLED=") {
			continue
		}
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		keyAndPrincipal := strings.SplitN(parts[1], ":", 2)
		if len(keyAndPrincipal) != 2 || keyAndPrincipal[0] == "" || keyAndPrincipal[1] == "" {
			continue
		}
		if c.APIKey.Keys == nil {
			c.APIKey.Keys = make(map[string]string)
		}
		c.APIKey.Keys[keyAndPrincipal[0]] = keyAndPrincipal[1]
	}

	// Circuit breaker config
	setBoolIfEnv(&c.CircuitBreaker.Enabled, "MESAPAY_CIRCUIT_BREAKER_ENABLED")
}

// setIfEnv assigns the env value to target when the variable is set and
// non-empty.
func setIfEnv(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

func setIntIfEnv(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

// normalizeRoutePrefix ensures the prefix starts with / and doesn't end
// with /.
func normalizeRoutePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || prefix == "/" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimSuffix(prefix, "/")
}
