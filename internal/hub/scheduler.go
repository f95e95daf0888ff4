package hub

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SchedulerConfig tunes the background maintenance cadence.
type SchedulerConfig struct {
	// SweepInterval is how often expired invoices are purged, settled ones
	// archived, and the state snapshot saved.
	SweepInterval time.Duration

	// DailyHourUTC is the UTC hour of the daily exchange rate refresh.
	DailyHourUTC int

	// ArchiveBatchSize caps how many settled invoices one archival run
	// hands off.
	ArchiveBatchSize int
}

// DefaultSchedulerConfig returns the production cadence: a sweep every ten
// minutes and a rate refresh at 02:00 UTC.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		SweepInterval:    10 * time.Minute,
		DailyHourUTC:     2,
		ArchiveBatchSize: 500,
	}
}

// Scheduler drives the hub's periodic maintenance: the short-interval sweep
// and the daily exchange rate refresh.
type Scheduler struct {
	svc  *Service
	cfg  SchedulerConfig
	log  zerolog.Logger
	done chan struct{}
	now  func() time.Time
}

// NewScheduler creates a stopped scheduler around svc.
func NewScheduler(svc *Service, cfg SchedulerConfig, log zerolog.Logger) *Scheduler {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Minute
	}
	if cfg.ArchiveBatchSize <= 0 {
		cfg.ArchiveBatchSize = 500
	}
	return &Scheduler{
		svc:  svc,
		cfg:  cfg,
		log:  log,
		done: make(chan struct{}),
		now:  time.Now,
	}
}

// Start launches the background loops. They run until Close.
func (s *Scheduler) Start(ctx context.Context) {
	go s.sweepLoop(ctx)
	go s.dailyLoop(ctx)
}

// Close stops the background loops. Implements io.Closer for lifecycle
// registration.
func (s *Scheduler) Close() error {
	close(s.done)
	return nil
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

func (s *Scheduler) runSweep(ctx context.Context) {
	s.svc.PurgeExpiredInvoices(ctx)

	if _, err := s.svc.ArchiveSettledInvoices(ctx, s.cfg.ArchiveBatchSize); err != nil {
		s.log.Warn().Err(err).Msg("scheduler.archival_failed")
	}

	if err := s.svc.SaveSnapshot(ctx); err != nil {
		s.log.Error().Err(err).Msg("scheduler.snapshot_failed")
	}
}

func (s *Scheduler) dailyLoop(ctx context.Context) {
	for {
		wait := time.Until(nextDailyRun(s.now(), s.cfg.DailyHourUTC))
		timer := time.NewTimer(wait)

		select {
		case <-s.done:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := s.svc.RefreshExchangeRates(ctx); err != nil {
				// Invoices keep locking to the last good snapshot until the
				// next successful refresh.
				s.log.Error().Err(err).Msg("scheduler.rate_refresh_failed")
			}
		}
	}
}

// nextDailyRun returns the next occurrence of hourUTC after now.
func nextDailyRun(now time.Time, hourUTC int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
