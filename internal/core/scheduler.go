package core

// scheduler.go runs background maintenance for the error ledger.
//
// The retention sweeper purges resolved ETLErrors whose resolution is older
// than ResolvedErrorDays. It runs once on start and then every
// CheckInterval until its context is cancelled. A failed sweep is logged and
// retried on the next tick.

import (
	"context"
	"time"
)

// RetentionConfig configures the retention sweeper. Zero fields take
// defaults.
type RetentionConfig struct {
	ResolvedErrorDays int           // default: 30
	CheckInterval     time.Duration // default: 24h
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.ResolvedErrorDays <= 0 {
		c.ResolvedErrorDays = 30
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 24 * time.Hour
	}
	return c
}

// StartRetentionSweeper blocks, sweeping the service's error ledger until
// ctx is cancelled. Run it in its own goroutine.
func (s *Service) StartRetentionSweeper(ctx context.Context, cfg RetentionConfig) {
	cfg = cfg.withDefaults()
	s.log.Info("retention sweeper started",
		"resolved_error_days", cfg.ResolvedErrorDays,
		"check_interval", cfg.CheckInterval.String(),
	)

	s.sweep(ctx, cfg, time.Now())

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("retention sweeper stopped")
			return
		case now := <-ticker.C:
			s.sweep(ctx, cfg, now)
		}
	}
}

// sweep performs one purge and returns the number of entries removed.
func (s *Service) sweep(ctx context.Context, cfg RetentionConfig, now time.Time) int {
	start := time.Now()
	cutoff := now.AddDate(0, 0, -cfg.ResolvedErrorDays)
	purged, err := s.tracker.Store().PurgeResolved(ctx, cutoff)
	if err != nil {
		s.log.Error("purge resolved errors failed", "error", err)
		return 0
	}
	s.log.Info("purged resolved errors",
		"entries_purged", purged,
		"cutoff", cutoff.Format(time.DateOnly),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return purged
}
