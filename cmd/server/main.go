package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MesaPay/hub/internal/archive"
	"github.com/MesaPay/hub/internal/circuitbreaker"
	"github.com/MesaPay/hub/internal/config"
	"github.com/MesaPay/hub/internal/hub"
	"github.com/MesaPay/hub/internal/httpserver"
	"github.com/MesaPay/hub/internal/ledger"
	"github.com/MesaPay/hub/internal/lifecycle"
	"github.com/MesaPay/hub/internal/logger"
	"github.com/MesaPay/hub/internal/metrics"
	"github.com/MesaPay/hub/internal/money"
	"github.com/MesaPay/hub/internal/persist"
	"github.com/MesaPay/hub/internal/rates"
	"github.com/MesaPay/hub/internal/tokens"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// Optional .env for local development; real deployments set env vars.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "mesapay-hub",
		Environment: cfg.Logging.Environment,
	})

	resources := lifecycle.NewManager()
	defer func() {
		if err := resources.Close(); err != nil {
			log.Error().Err(err).Msg("main.shutdown_incomplete")
		}
	}()

	collector := metrics.New(prometheus.DefaultRegisterer)
	breakers := circuitbreaker.NewManager(breakerConfig(cfg))

	// State and service wiring.
	state := hub.NewState(ledger.Principal(cfg.Hub.FeeCollector), cfg.Oracle.Mock)

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return fmt.Errorf("seed invoice id generator: %w", err)
	}
	state.Invoices.InitIDSeed(seed)

	var oracle rates.Oracle
	if cfg.Oracle.Mock {
		oracle = &rates.MockOracle{}
		log.Warn().Msg("main.mock_oracle_active")
	} else {
		oracle = rates.NewHTTPOracle(cfg.Oracle.BaseURL, breakers)
	}

	var pusher archive.Pusher
	if cfg.Archive.Backend == "http" {
		pusher = archive.NewHTTPPusher(cfg.Archive.BaseURL, breakers)
	} else {
		pusher = archive.NewMemory()
		log.Warn().Msg("main.memory_archive_active")
	}

	var snapshots hub.Snapshotter
	switch cfg.Snapshots.Backend {
	case "file":
		store, err := persist.NewFileStore(cfg.Snapshots.FilePath)
		if err != nil {
			return err
		}
		snapshots = store
	case "postgres":
		store, err := persist.NewPostgresStore(cfg.Snapshots.PostgresURL, cfg.Snapshots.History)
		if err != nil {
			return err
		}
		resources.Register("snapshot-store", store)
		snapshots = store
	}

	svc := hub.NewService(state, hub.Dependencies{
		Ledgers:   ledger.NewHTTPDialer(breakers),
		Oracle:    oracle,
		Archive:   pusher,
		Snapshots: snapshots,
		Metrics:   collector,
		Logger:    log,
		Identity:  ledger.Principal(cfg.Hub.Identity),
		Admin:     ledger.Principal(cfg.Hub.Admin),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.RestoreSnapshot(ctx); err != nil {
		return err
	}
	if err := registerConfiguredTokens(ctx, svc, cfg); err != nil {
		return err
	}

	// First rate snapshot before taking traffic; invoices cannot be created
	// without one.
	if err := svc.RefreshExchangeRates(ctx); err != nil {
		log.Error().Err(err).Msg("main.initial_rate_fetch_failed")
	}

	scheduler := hub.NewScheduler(svc, hub.SchedulerConfig{
		SweepInterval:    cfg.Scheduler.SweepInterval.Duration,
		DailyHourUTC:     cfg.Scheduler.DailyHourUTC,
		ArchiveBatchSize: cfg.Scheduler.ArchiveBatchSize,
	}, log)
	scheduler.Start(ctx)
	resources.Register("scheduler", scheduler)

	server := httpserver.New(cfg, svc, log)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("main.server_listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("main.shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("main.server_shutdown_failed")
	}

	// Last snapshot on the way out so a clean restart resumes where we left.
	if err := svc.SaveSnapshot(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("main.final_snapshot_failed")
	}

	return nil
}

// registerConfiguredTokens installs the config-declared tokens as the admin.
func registerConfiguredTokens(ctx context.Context, svc *hub.Service, cfg *config.Config) error {
	admin := ledger.Principal(cfg.Hub.Admin)
	for _, t := range cfg.Tokens {
		fee, err := money.Parse(t.Fee, t.Decimals)
		if err != nil {
			return fmt.Errorf("token %s: %w", t.Ticker, err)
		}
		token := tokens.Token{
			ID:           ledger.TokenID(t.ID),
			Ticker:       tokens.Ticker(t.Ticker),
			OracleTicker: tokens.Ticker(t.OracleTicker),
			Fee:          fee,
			LogoSrc:      t.LogoSrc,
			LedgerURL:    t.LedgerURL,
		}
		if err := svc.AddToken(ctx, token, admin); err != nil {
			return fmt.Errorf("register token %s: %w", t.Ticker, err)
		}
	}
	return nil
}

func breakerConfig(cfg *config.Config) circuitbreaker.Config {
	return circuitbreaker.Config{
		Enabled:    cfg.CircuitBreaker.Enabled,
		LedgerRPC:  toBreaker(cfg.CircuitBreaker.LedgerRPC),
		RateOracle: toBreaker(cfg.CircuitBreaker.RateOracle),
		Archive:    toBreaker(cfg.CircuitBreaker.Archive),
	}
}

func toBreaker(c config.BreakerServiceConfig) circuitbreaker.BreakerConfig {
	return circuitbreaker.BreakerConfig{
		MaxRequests:         c.MaxRequests,
		Interval:            c.Interval.Duration,
		Timeout:             c.Timeout.Duration,
		ConsecutiveFailures: c.ConsecutiveFailures,
		FailureRatio:        c.FailureRatio,
		MinRequests:         c.MinRequests,
	}
}
