package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv() {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "MESAPAY_") {
			os.Unsetenv(strings.SplitN(env, "=", 2)[0])
		}
	}
}

func setRequiredEnv() {
	os.Setenv("MESAPAY_IDENTITY", "hub-principal")
	os.Setenv("MESAPAY_ADMIN", "admin-principal")
	os.Setenv("MESAPAY_FEE_COLLECTOR", "collector-principal")
}

func TestLoad_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr string
	}{
		{
			name: "missing identity",
			envVars: map[string]string{
				"MESAPAY_ADMIN":         "admin-principal",
				"MESAPAY_FEE_COLLECTOR": "collector-principal",
			},
			wantErr: "hub.identity is required",
		},
		{
			name: "missing admin",
			envVars: map[string]string{
				"MESAPAY_IDENTITY":      "hub-principal",
				"MESAPAY_FEE_COLLECTOR": "collector-principal",
			},
			wantErr: "hub.admin is required",
		},
		{
			name: "missing fee collector",
			envVars: map[string]string{
				"MESAPAY_IDENTITY": "hub-principal",
				"MESAPAY_ADMIN":    "admin-principal",
			},
			wantErr: "hub.fee_collector is required",
		},
		{
			name: "real oracle needs a url",
			envVars: map[string]string{
				"MESAPAY_IDENTITY":      "hub-principal",
				"MESAPAY_ADMIN":         "admin-principal",
				"MESAPAY_FEE_COLLECTOR": "collector-principal",
				"MESAPAY_ORACLE_MOCK":   "false",
			},
			wantErr: "oracle.base_url is required",
		},
		{
			name: "http archive needs a url",
			envVars: map[string]string{
				"MESAPAY_IDENTITY":        "hub-principal",
				"MESAPAY_ADMIN":           "admin-principal",
				"MESAPAY_FEE_COLLECTOR":   "collector-principal",
				"MESAPAY_ARCHIVE_BACKEND": "http",
			},
			wantErr: "archive.base_url is required",
		},
		{
			name: "unknown snapshot backend",
			envVars: map[string]string{
				"MESAPAY_IDENTITY":         "hub-principal",
				"MESAPAY_ADMIN":            "admin-principal",
				"MESAPAY_FEE_COLLECTOR":    "collector-principal",
				"MESAPAY_SNAPSHOT_BACKEND": "redis",
			},
			wantErr: "unknown snapshot backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}
			defer clearEnv()

			_, err := Load("")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestLoad_ValidMinimal(t *testing.T) {
	clearEnv()
	setRequiredEnv()
	defer clearEnv()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error with valid config, got: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Errorf("expected default address :8080, got %s", cfg.Server.Address)
	}
	if !cfg.Oracle.Mock {
		t.Error("expected the mock oracle by default")
	}
	if cfg.Snapshots.Backend != "file" || cfg.Snapshots.FilePath == "" {
		t.Errorf("expected the file snapshot backend by default, got %+v", cfg.Snapshots)
	}
	if cfg.Scheduler.SweepInterval.Duration != 10*time.Minute {
		t.Errorf("expected default sweep interval 10m, got %v", cfg.Scheduler.SweepInterval.Duration)
	}
	if cfg.Scheduler.DailyHourUTC != 2 {
		t.Errorf("expected default daily hour 2, got %d", cfg.Scheduler.DailyHourUTC)
	}
	if !cfg.CircuitBreaker.Enabled {
		t.Error("expected circuit breakers enabled by default")
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv()
	defer clearEnv()

	yml := `
server:
  address: ":9090"
  read_timeout: 30s
hub:
  identity: hub-principal
  admin: admin-principal
  fee_collector: collector-principal
tokens:
  - id: wtn-ledger
    ticker: WTN
    decimals: 8
    fee: "0.0001"
    ledger_url: http://wtn-ledger.local
scheduler:
  sweep_interval: 5m
  daily_hour_utc: 4
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Address != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Server.Address)
	}
	if cfg.Server.ReadTimeout.Duration != 30*time.Second {
		t.Errorf("expected read timeout 30s, got %v", cfg.Server.ReadTimeout.Duration)
	}
	if cfg.Scheduler.SweepInterval.Duration != 5*time.Minute {
		t.Errorf("expected sweep interval 5m, got %v", cfg.Scheduler.SweepInterval.Duration)
	}
	if cfg.Scheduler.DailyHourUTC != 4 {
		t.Errorf("expected daily hour 4, got %d", cfg.Scheduler.DailyHourUTC)
	}

	if len(cfg.Tokens) != 1 {
		t.Fatalf("expected 1 token, got %d", len(cfg.Tokens))
	}
	// An omitted oracle ticker falls back to the ticker itself.
	if cfg.Tokens[0].OracleTicker != "WTN" {
		t.Errorf("expected oracle ticker WTN, got %s", cfg.Tokens[0].OracleTicker)
	}
}

func TestLoad_TokenValidation(t *testing.T) {
	tests := []struct {
		name    string
		tokens  string
		wantErr string
	}{
		{
			name: "missing ledger url",
			tokens: `
tokens:
  - id: wtn-ledger
    ticker: WTN
    decimals: 8
    fee: "0.0001"
`,
			wantErr: "ledger_url are required",
		},
		{
			name: "duplicate ticker",
			tokens: `
tokens:
  - id: wtn-ledger
    ticker: WTN
    decimals: 8
    fee: "0.0001"
    ledger_url: http://a.local
  - id: wtn-ledger-2
    ticker: WTN
    decimals: 8
    fee: "0.0001"
    ledger_url: http://b.local
`,
			wantErr: "duplicate ticker",
		},
		{
			name: "malformed fee",
			tokens: `
tokens:
  - id: wtn-ledger
    ticker: WTN
    decimals: 8
    fee: "cheap"
    ledger_url: http://a.local
`,
			wantErr: "invalid fee",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv()
			setRequiredEnv()
			defer clearEnv()

			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.tokens), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}

			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestLoad_DailyHourBounds(t *testing.T) {
	clearEnv()
	setRequiredEnv()
	os.Setenv("MESAPAY_DAILY_HOUR_UTC", "24")
	defer clearEnv()

	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "daily_hour_utc") {
		t.Fatalf("expected daily hour bounds error, got: %v", err)
	}
}
