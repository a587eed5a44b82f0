package service

import (
	"context"
	"time"

	"github.com/medflow/pharmacy-backend/pkg/logger"
)

// ExpiryScheduler runs the expiry scan on an interval and prunes old alerts
// and idempotency records after each cycle.
type ExpiryScheduler struct {
	scanner        *ExpiryScanner
	alerts         AlertStore
	purger         LedgerPurger
	interval       time.Duration
	alertRetention time.Duration
	ledgerTTL      time.Duration
	logger         *logger.Logger
	cancel         context.CancelFunc
	done           chan struct{}
}

// SchedulerOptions tunes the housekeeping done by ExpiryScheduler
type SchedulerOptions struct {
	Interval       time.Duration
	AlertRetention time.Duration
	// LedgerTTL is how long applied request ids are kept; zero keeps them forever
	LedgerTTL time.Duration
}

// NewExpiryScheduler creates a new scheduler. purger may be nil.
func NewExpiryScheduler(scanner *ExpiryScanner, alerts AlertStore, purger LedgerPurger, opts SchedulerOptions, log *logger.Logger) *ExpiryScheduler {
	return &ExpiryScheduler{
		scanner:        scanner,
		alerts:         alerts,
		purger:         purger,
		interval:       opts.Interval,
		alertRetention: opts.AlertRetention,
		ledgerTTL:      opts.LedgerTTL,
		logger:         log.WithComponent("expiry-scheduler"),
	}
}

// Start runs a cycle immediately and then on every tick until Stop
func (s *ExpiryScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.logger.Info().Dur("interval", s.interval).Msg("expiry scheduler started")

		s.RunCycle(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("expiry scheduler stopped")
				return
			case <-ticker.C:
				s.RunCycle(ctx)
			}
		}
	}()
}

// Stop stops the scheduler goroutine and waits for the running cycle
func (s *ExpiryScheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// RunCycle scans every warehouse and does housekeeping once
func (s *ExpiryScheduler) RunCycle(ctx context.Context) {
	start := time.Now()

	res, err := s.scanner.ScanAll(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("expiry scan cycle had failures")
	}

	if s.alertRetention > 0 {
		deleted, err := s.alerts.DeleteOld(ctx, s.alertRetention)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to delete old alerts")
		} else if deleted > 0 {
			s.logger.Info().Int64("deleted", deleted).Msg("old alerts deleted")
		}
	}

	if s.purger != nil && s.ledgerTTL > 0 {
		purged, err := s.purger.PurgeBefore(ctx, time.Now().Add(-s.ledgerTTL))
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to purge applied requests")
		} else if purged > 0 {
			s.logger.Info().Int64("purged", purged).Msg("applied requests purged")
		}
	}

	s.logger.Info().
		Dur("duration", time.Since(start)).
		Int("warehouses", res.Warehouses).
		Int("scanned", res.Scanned).
		Int("alerts_created", res.Created).
		Msg("expiry scan cycle completed")
}
