// Package cli implements parquectl, the command-line front of the inventory
// pipeline: process files offline, inspect business rules and maintain the
// persisted error ledger.
package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/parque/internal/logging"
)

// rootOptions are the persistent flags.
type rootOptions struct {
	logLevel  string
	logFormat string
	logger    *slog.Logger
}

// NewRootCmd builds the command tree. Logs go to stderr, results to
// stdout, so output can be piped.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "parquectl",
		Short: "Inventory spreadsheet ETL tool",
		Long: `parquectl runs provider inventory spreadsheets through the same
pipeline as the HTTP service.

Commands:
- process: map, normalize, validate and score one .xlsx or .csv file
- rules:   list the business rules with their thresholds and scope
- ledger:  purge or reset the error ledger in PostgreSQL`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logger = logging.New(stderr, opts.logLevel, opts.logFormat)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(newProcessCmd(opts))
	root.AddCommand(newRulesCmd())
	root.AddCommand(newLedgerCmd(opts))
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	root := NewRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
