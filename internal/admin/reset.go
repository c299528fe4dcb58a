// Package admin provides destructive maintenance operations on the
// persisted ledger and inventory records.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/parque/internal/core"
	"github.com/JonMunkholm/parque/internal/store"
)

// ResetTimeout is the maximum duration of one maintenance operation.
const ResetTimeout = 30 * time.Second

// Maintenance runs housekeeping against a database.
type Maintenance struct {
	DB     store.DBTX
	Errors core.ErrorStore
	Log    *slog.Logger
}

type resetFn func(ctx context.Context) error

// ResetAll empties every table. This is a destructive operation.
func (m *Maintenance) ResetAll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	var resets []resetFn
	for _, table := range store.Tables {
		resets = append(resets, func(ctx context.Context) error {
			if err := store.Truncate(ctx, m.DB, table); err != nil {
				return err
			}
			m.logger().Warn("table reset", "table", table)
			return nil
		})
	}
	return runResets(ctx, resets)
}

// PurgeResolved deletes ledger entries resolved more than olderThan ago.
func (m *Maintenance) PurgeResolved(ctx context.Context, olderThan time.Duration, now time.Time) (int, error) {
	if olderThan < 0 {
		return 0, fmt.Errorf("purge: negative age %s", olderThan)
	}
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	n, err := m.Errors.PurgeResolved(ctx, now.Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("purge resolved errors: %w", err)
	}
	m.logger().Info("resolved errors purged", "count", n, "older_than", olderThan)
	return n, nil
}

func (m *Maintenance) logger() *slog.Logger {
	if m.Log != nil {
		return m.Log
	}
	return slog.Default()
}

func runResets(ctx context.Context, resets []resetFn) error {
	for _, reset := range resets {
		if err := reset(ctx); err != nil {
			return err
		}
	}
	return nil
}
