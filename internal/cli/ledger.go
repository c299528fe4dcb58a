package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/parque/internal/admin"
	"github.com/JonMunkholm/parque/internal/config"
	"github.com/JonMunkholm/parque/internal/store"
)

var errNoDatabase = errors.New("DATABASE_URL is not set")

func newLedgerCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Maintain the persisted error ledger",
	}

	var days int
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete errors resolved more than --days ago",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMaintenance(cmd.Context(), root, func(m *admin.Maintenance) error {
				n, err := m.PurgeResolved(cmd.Context(), time.Duration(days)*24*time.Hour, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d errores resueltos eliminados\n", n)
				return nil
			})
		},
	}
	purge.Flags().IntVar(&days, "days", 30, "age in days of the resolutions to delete")

	var confirm bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Empty the error ledger and the stored records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errors.New("reset deletes every stored error and record; pass --yes to confirm")
			}
			return withMaintenance(cmd.Context(), root, func(m *admin.Maintenance) error {
				if err := m.ResetAll(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "tablas vaciadas")
				return nil
			})
		},
	}
	reset.Flags().BoolVar(&confirm, "yes", false, "confirm the reset")

	cmd.AddCommand(purge, reset)
	return cmd
}

// openStore connects with the environment configuration and applies the
// schema.
func openStore(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if !cfg.Database.Enabled() {
		return nil, errNoDatabase
	}
	pool, err := store.Connect(ctx, cfg.Database.URL, store.PoolOptions{
		MaxConns:        2,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func withMaintenance(ctx context.Context, root *rootOptions, fn func(*admin.Maintenance) error) error {
	pool, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(&admin.Maintenance{DB: pool, Errors: store.NewErrorStore(pool), Log: root.logger})
}
