package service

import (
	"context"
	"time"

	"github.com/batchflow/batchflow-backend/pkg/logger"
)

// ExpiryScheduler runs the expiry sweep on a fixed interval.
type ExpiryScheduler struct {
	expiry   *ExpiryService
	interval time.Duration
	logger   *logger.Logger
	cancel   context.CancelFunc
}

// NewExpiryScheduler creates a new expiry scheduler
func NewExpiryScheduler(expiry *ExpiryService, interval time.Duration, log *logger.Logger) *ExpiryScheduler {
	return &ExpiryScheduler{
		expiry:   expiry,
		interval: interval,
		logger:   log,
	}
}

// Start starts the scheduler in a background goroutine.
// An initial sweep runs immediately, then one per interval.
func (s *ExpiryScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		s.logger.Info().Dur("interval", s.interval).Msg("expiry scheduler started")

		s.runSweep(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("expiry scheduler stopped")
				return
			case <-ticker.C:
				s.runSweep(ctx)
			}
		}
	}()
}

// Stop stops the scheduler goroutine
func (s *ExpiryScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *ExpiryScheduler) runSweep(ctx context.Context) {
	start := time.Now()

	count, err := s.expiry.LockExpiredBatches(ctx, time.Time{})
	if err != nil {
		s.logger.Error().Err(err).Msg("expiry sweep failed")
		return
	}

	s.logger.Info().
		Dur("duration", time.Since(start)).
		Int("locked", count).
		Msg("expiry sweep completed")
}
