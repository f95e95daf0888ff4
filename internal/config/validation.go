package config

import (
	"fmt"

	"github.com/MesaPay/hub/internal/money"
)

// finalize validates the aggregated configuration and fills derived fields.
func (c *Config) finalize() error {
	if c.Hub.Identity == "" {
		return fmt.Errorf("config: hub.identity is required")
	}
	if c.Hub.Admin == "" {
		return fmt.Errorf("config: hub.admin is required")
	}
	if c.Hub.FeeCollector == "" {
		return fmt.Errorf("config: hub.fee_collector is required")
	}

	if !c.Oracle.Mock && c.Oracle.BaseURL == "" {
		return fmt.Errorf("config: oracle.base_url is required when oracle.mock is false")
	}

	switch c.Archive.Backend {
	case "memory":
	case "http":
		if c.Archive.BaseURL == "" {
			return fmt.Errorf("config: archive.base_url is required for the http backend")
		}
	default:
		return fmt.Errorf("config: unknown archive backend %q", c.Archive.Backend)
	}

	switch c.Snapshots.Backend {
	case "none":
	case "file":
		if c.Snapshots.FilePath == "" {
			return fmt.Errorf("config: snapshots.file_path is required for the file backend")
		}
	case "postgres":
		if c.Snapshots.PostgresURL == "" {
			return fmt.Errorf("config: snapshots.postgres_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown snapshot backend %q", c.Snapshots.Backend)
	}

	if c.Scheduler.DailyHourUTC < 0 || c.Scheduler.DailyHourUTC > 23 {
		return fmt.Errorf("config: scheduler.daily_hour_utc must be in [0, 23]")
	}

	seen := make(map[string]bool, len(c.Tokens))
	for i, t := range c.Tokens {
		if t.ID == "" || t.Ticker == "" || t.LedgerURL == "" {
			return fmt.Errorf("config: tokens[%d]: id, ticker and ledger_url are required", i)
		}
		if seen[t.Ticker] {
			return fmt.Errorf("config: tokens[%d]: duplicate ticker %s", i, t.Ticker)
		}
		seen[t.Ticker] = true

		if t.OracleTicker == "" {
			c.Tokens[i].OracleTicker = t.Ticker
		}
		if _, err := money.Parse(t.Fee, t.Decimals); err != nil {
			return fmt.Errorf("config: tokens[%d]: invalid fee %q: %w", i, t.Fee, err)
		}
	}

	return nil
}
