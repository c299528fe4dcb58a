package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/parque/internal/core"
	"github.com/JonMunkholm/parque/internal/store"
)

type processOptions struct {
	auditID      string
	cycle        string
	version      string
	workers      int
	strict       bool
	rulesFile    string
	skip         []string
	format       string
	withRecords  bool
	failOnErrors bool
	persist      bool
}

// processResult is the JSON output of process.
type processResult struct {
	Job     core.JobStatus         `json:"trabajo"`
	Report  *core.ValidationReport `json:"reporte,omitempty"`
	Errors  []core.ETLError        `json:"errores"`
	Records []core.InventoryRecord `json:"registros,omitempty"`
}

func newProcessCmd(root *rootOptions) *cobra.Command {
	opts := &processOptions{}
	cmd := &cobra.Command{
		Use:   "process FILE",
		Short: "Process one inventory file and print the results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, root, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.auditID, "audit-id", "", "audit identifier stored on every record")
	f.StringVar(&opts.cycle, "cycle", "", "audit cycle, e.g. 2024-Q1")
	f.StringVar(&opts.version, "version", "", "audit version")
	f.IntVar(&opts.workers, "workers", 4, "rows processed in parallel")
	f.BoolVar(&opts.strict, "strict", false, "treat schema warnings as errors")
	f.StringVar(&opts.rulesFile, "rules", "", "YAML file overriding business rules")
	f.StringSliceVar(&opts.skip, "skip", nil, "business rule ids to skip")
	f.StringVar(&opts.format, "format", "summary", "output format: summary or json")
	f.BoolVar(&opts.withRecords, "records", false, "include every record in json output")
	f.BoolVar(&opts.failOnErrors, "fail-on-errors", false, "exit non-zero when any record has errors")
	f.BoolVar(&opts.persist, "persist", false, "store records and errors in the DATABASE_URL database")
	return cmd
}

func runProcess(cmd *cobra.Command, root *rootOptions, opts *processOptions, path string) error {
	if opts.format != "summary" && opts.format != "json" {
		return fmt.Errorf("unknown format: %s (use summary or json)", opts.format)
	}

	rules, err := core.LoadRuleSet(opts.rulesFile)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	if info.Size() > core.MaxFileSize {
		return fmt.Errorf("%w: %s", core.ErrFileTooLarge, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	ctx := cmd.Context()
	deps := core.Dependencies{Logger: root.logger}
	if opts.persist {
		pool, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		deps.Errors = store.NewErrorStore(pool)
		deps.Sink = store.NewRecordSink(pool)
	}

	svc := core.NewService(core.ServiceConfig{
		Workers:           opts.workers,
		StrictMode:        opts.strict,
		MaxConcurrentJobs: 1,
		Rules:             rules,
	}, deps)

	st, runErr := svc.Run(ctx, core.JobRequest{
		FileName: filepath.Base(path),
		Data:     data,
		Meta:     core.JobMeta{AuditID: opts.auditID, AuditCycle: opts.cycle, AuditVersion: opts.version},
		Skip:     opts.skip,
	})
	if st.ID == "" {
		return runErr
	}

	ledger, err := svc.Errors(ctx, core.ErrorFilter{JobID: st.ID, Page: core.Page{Size: core.MaxPageSize}})
	if err != nil {
		return fmt.Errorf("read error ledger: %w", err)
	}
	var report *core.ValidationReport
	if st.State.Terminal() {
		report, _ = svc.Report(st.ID)
	}

	out := cmd.OutOrStdout()
	switch opts.format {
	case "json":
		res := processResult{Job: st, Report: report, Errors: ledger.Items}
		if opts.withRecords {
			page, err := svc.Records(st.ID, core.Page{Size: core.MaxPageSize}, "")
			if err != nil {
				return err
			}
			res.Records = allRecords(svc, st.ID, page)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	default:
		if err := writeSummary(out, st, report, ledger); err != nil {
			return err
		}
	}

	if runErr != nil {
		return fmt.Errorf("job %s: %s", st.State, core.FormatUserError(runErr))
	}
	if opts.failOnErrors && st.Errored > 0 {
		return fmt.Errorf("%d of %d records have errors", st.Errored, st.Processed)
	}
	return nil
}

// allRecords follows the pages of a finished job.
func allRecords(svc *core.Service, jobID string, first core.RecordPage) []core.InventoryRecord {
	out := append([]core.InventoryRecord(nil), first.Items...)
	for n := 2; n <= first.Pages; n++ {
		page, err := svc.Records(jobID, core.Page{Number: n, Size: first.Size}, "")
		if err != nil {
			break
		}
		out = append(out, page.Items...)
	}
	return out
}

var tierOrder = []core.Tier{core.TierExcellent, core.TierGood, core.TierAcceptable, core.TierDeficient, core.TierCritical}

func writeSummary(w io.Writer, st core.JobStatus, report *core.ValidationReport, ledger core.ErrorPage) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Archivo:\t%s\n", st.FileName)
	fmt.Fprintf(tw, "Trabajo:\t%s\n", st.ID)
	fmt.Fprintf(tw, "Estado:\t%s\n", st.State)
	if st.ErrorDetail != "" {
		fmt.Fprintf(tw, "Detalle:\t%s\n", st.ErrorDetail)
	}
	fmt.Fprintf(tw, "Registros:\t%d procesados, %d válidos, %d con error, %d con advertencia\n",
		st.Processed, st.Valid, st.Errored, st.Warned)
	fmt.Fprintf(tw, "Duración:\t%.2fs\n", st.Elapsed)

	if s := st.Stats; s != nil {
		fmt.Fprintf(tw, "Cumplimiento:\t%d de %d (%.2f%%)\n", s.Meeting, s.Total, s.ComplianceRate)
		fmt.Fprintf(tw, "Score promedio:\t%.2f\n", s.AverageScore)
		var tiers []string
		for _, t := range tierOrder {
			if n := s.ByTier[t]; n > 0 {
				tiers = append(tiers, fmt.Sprintf("%s=%d", t, n))
			}
		}
		if len(tiers) > 0 {
			fmt.Fprintf(tw, "Niveles:\t%s\n", strings.Join(tiers, " "))
		}
		c := s.Components
		fmt.Fprintf(tw, "Componentes:\tCPU %.1f%%  RAM %.1f%%  Disco %.1f%%  SO %.1f%%  Red %.1f%%\n",
			c.CPU, c.RAM, c.Storage, c.OS, c.Speed)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if st.Stats != nil && len(st.Stats.FailureReasons) > 0 {
		fmt.Fprintln(w, "\nRazones de incumplimiento:")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, r := range st.Stats.FailureReasons {
			fmt.Fprintf(tw, "  %d\t%s\n", r.Count, r.Reason)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if report != nil && len(report.Recommendations) > 0 {
		fmt.Fprintln(w, "\nRecomendaciones:")
		for _, r := range report.Recommendations {
			fmt.Fprintf(w, "  [%s] %s (%d afectados)\n", r.Priority, r.Message, r.Affected)
		}
	}

	if ledger.Total > 0 {
		fmt.Fprintf(w, "\nErrores registrados: %d\n", ledger.Total)
		items := append([]core.ETLError(nil), ledger.Items...)
		sort.SliceStable(items, func(i, j int) bool { return rowOf(items[i]) < rowOf(items[j]) })
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  FILA\tCÓDIGO\tSEVERIDAD\tCAMPO\tMENSAJE")
		for _, e := range items {
			row := "-"
			if e.Row != nil {
				row = fmt.Sprint(*e.Row)
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", row, e.Code, e.Severity, e.Field, e.Message)
		}
		return tw.Flush()
	}
	return nil
}

func rowOf(e core.ETLError) int {
	if e.Row == nil {
		return 0
	}
	return *e.Row
}
