package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestService(t *testing.T, deps Dependencies) *Service {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return NewService(ServiceConfig{Workers: 1}, deps)
}

func mixedInventory() []byte {
	return inventoryCSV(
		rowWith(0, nil),
		rowWith(0, map[string]string{"Nombre del Equipo": "PC-002", "Memoria RAM": "4 GB"}),
		rowWith(0, map[string]string{"Nombre del Equipo": "pc-001"}),
		Row{Cells: map[string]string{}},
		rowWith(0, map[string]string{"Nombre del Equipo": "PC-003", "Disco Duro": "1 TB SSD"}),
	)
}

func TestService_RunPartialFailure(t *testing.T) {
	svc := newTestService(t, Dependencies{})
	st, err := svc.Run(context.Background(), JobRequest{
		FileName: "inventario.csv",
		Data:     mixedInventory(),
		Meta:     JobMeta{AuditID: "AUD-7"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.State != JobCompleted {
		t.Fatalf("got state %s, want %s", st.State, JobCompleted)
	}
	// The blank line is dropped by the reader.
	if st.Total != 4 || st.Processed != 4 || st.Valid != 2 || st.Errored != 2 {
		t.Errorf("got total %d processed %d valid %d errored %d, want 4/4/2/2",
			st.Total, st.Processed, st.Valid, st.Errored)
	}
	if st.Percent != 100 || st.Stats == nil || st.Stats.Total != 4 {
		t.Errorf("got percent %v stats %+v", st.Percent, st.Stats)
	}
	if st.AuditID != "AUD-7" {
		t.Errorf("got audit id %q", st.AuditID)
	}

	page, err := svc.Records(st.ID, Page{Number: 1, Size: 3}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 4 || page.Pages != 2 || len(page.Items) != 3 {
		t.Errorf("got total %d pages %d items %d, want 4/2/3", page.Total, page.Pages, len(page.Items))
	}
	if page.Items[0].Hostname != "PC-001" || page.Items[1].Hostname != "PC-002" {
		t.Errorf("records out of file order: %s, %s", page.Items[0].Hostname, page.Items[1].Hostname)
	}

	dups, _ := svc.Records(st.ID, Page{}, StateDuplicate)
	if dups.Total != 1 || dups.Items[0].Row != 4 {
		t.Errorf("got duplicates %+v, want the row 4 record", dups.Items)
	}

	errs, _ := svc.Errors(context.Background(), ErrorFilter{JobID: st.ID, Severity: SeverityError})
	if errs.Total == 0 {
		t.Error("expected ledger entries for the failing row")
	}

	report, err := svc.Report(st.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalRecords != 4 {
		t.Errorf("got report total %d, want 4", report.TotalRecords)
	}
}

func TestService_MappingFailure(t *testing.T) {
	svc := newTestService(t, Dependencies{})
	st, err := svc.Run(context.Background(), JobRequest{
		FileName: "sin_cpu.csv",
		Data:     []byte("Equipo;Sede\nPC-1;Bogotá\n"),
	})
	if !errors.Is(err, ErrProcessorColumnMissing) {
		t.Fatalf("got %v, want ErrProcessorColumnMissing", err)
	}
	if st.State != JobError {
		t.Errorf("got state %s, want %s", st.State, JobError)
	}
	if !strings.HasPrefix(st.ErrorDetail, StepMapping) {
		t.Errorf("got detail %q, want it to name %s", st.ErrorDetail, StepMapping)
	}

	page, _ := svc.Errors(context.Background(), ErrorFilter{JobID: st.ID})
	if page.Total != 1 || page.Items[0].Code != "MAP001" || page.Items[0].Severity != SeverityCritical {
		t.Errorf("got ledger %+v, want one critical MAP001", page.Items)
	}
}

func TestService_NoFile(t *testing.T) {
	svc := newTestService(t, Dependencies{})
	if _, err := svc.Run(context.Background(), JobRequest{FileName: "a.csv"}); !errors.Is(err, ErrNoFile) {
		t.Errorf("got %v, want ErrNoFile", err)
	}
	if _, err := svc.Start(context.Background(), JobRequest{FileName: "a.csv"}); !errors.Is(err, ErrNoFile) {
		t.Errorf("got %v, want ErrNoFile", err)
	}
}

func TestService_UnknownJob(t *testing.T) {
	svc := newTestService(t, Dependencies{})
	if _, err := svc.Status("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
	if err := svc.Cancel("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
}

func TestService_StartAndWait(t *testing.T) {
	svc := newTestService(t, Dependencies{})
	id, err := svc.Start(context.Background(), JobRequest{FileName: "inv.csv", Data: mixedInventory()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := svc.Wait(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.State != JobCompleted {
		t.Errorf("got state %s, want %s", st.State, JobCompleted)
	}
	if err := svc.WaitForJobs(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jobs := svc.Jobs(); len(jobs) != 1 || jobs[0].ID != id {
		t.Errorf("got jobs %+v, want the started job", jobs)
	}
	stats, err := svc.Stats(id)
	if err != nil || stats.Total != 4 {
		t.Errorf("got stats %+v err %v", stats, err)
	}
}

// blockingSink holds SaveRecords until its context ends.
type blockingSink struct {
	entered chan struct{}
}

func (b *blockingSink) SaveRecords(ctx context.Context, _ string, _ []InventoryRecord) error {
	close(b.entered)
	<-ctx.Done()
	return ctx.Err()
}

func TestService_Cancel(t *testing.T) {
	sink := &blockingSink{entered: make(chan struct{})}
	svc := newTestService(t, Dependencies{Sink: sink})
	id, err := svc.Start(context.Background(), JobRequest{FileName: "inv.csv", Data: mixedInventory()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-sink.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("job never reached the sink")
	}
	if _, err := svc.Records(id, Page{}, ""); !errors.Is(err, ErrJobRunning) {
		t.Errorf("got %v, want ErrJobRunning", err)
	}
	if err := svc.Cancel(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := svc.Wait(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.State != JobCancelled {
		t.Errorf("got state %s, want %s", st.State, JobCancelled)
	}
	if err := svc.WaitForJobs(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	page, _ := svc.Errors(context.Background(), ErrorFilter{JobID: id, Severity: SeverityCritical})
	if page.Total != 0 {
		t.Errorf("a cancelled job should not file a failure, got %+v", page.Items)
	}
	if err := svc.Cancel(id); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("got %v, want ErrInvalidTransition", err)
	}
}

type failingSink struct{}

func (failingSink) SaveRecords(context.Context, string, []InventoryRecord) error {
	return errors.New("connection refused")
}

func TestService_PersistenceFailure(t *testing.T) {
	svc := newTestService(t, Dependencies{Sink: failingSink{}})
	st, err := svc.Run(context.Background(), JobRequest{FileName: "inv.csv", Data: mixedInventory()})
	if err == nil {
		t.Fatal("expected an error")
	}
	if st.State != JobError {
		t.Errorf("got state %s, want %s", st.State, JobError)
	}
	page, _ := svc.Errors(context.Background(), ErrorFilter{JobID: st.ID, Type: ErrorDatabase})
	if page.Total != 1 || page.Items[0].Code != "DB001" {
		t.Errorf("got %+v, want one DB001 entry", page.Items)
	}
	// Records stay queryable after a failed save.
	if recs, err := svc.Records(st.ID, Page{}, ""); err != nil || recs.Total != 4 {
		t.Errorf("got %d records err %v, want 4", recs.Total, err)
	}
}

func TestService_RetentionSweep(t *testing.T) {
	store := NewMemoryErrorStore()
	svc := newTestService(t, Dependencies{Errors: store})
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	old, _ := svc.tracker.Create(ctx, ledgerEntry("job-1", "BR001", "viejo"))
	recent, _ := svc.tracker.Create(ctx, ledgerEntry("job-1", "BR002", "reciente"))
	store.now = func() time.Time { return now.AddDate(0, 0, -45) }
	_, _ = store.Resolve(ctx, old.ID, "")
	store.now = func() time.Time { return now.AddDate(0, 0, -5) }
	_, _ = store.Resolve(ctx, recent.ID, "")

	if n := svc.sweep(ctx, RetentionConfig{}.withDefaults(), now); n != 1 {
		t.Errorf("got %d purged, want 1", n)
	}
	page, _ := store.List(ctx, ErrorFilter{})
	if page.Total != 1 || page.Items[0].ID != recent.ID {
		t.Errorf("got %+v, want only the recent entry", page.Items)
	}
}

func TestService_DuplicatesFollowFileOrder(t *testing.T) {
	const n = 64
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = rowWith(0, map[string]string{
			"Nombre del Equipo": "PC-SAME",
			"ID Usuario":        fmt.Sprintf("user%02d", i),
		})
	}
	data := inventoryCSV(rows...)

	for run := 0; run < 20; run++ {
		svc := NewService(ServiceConfig{Workers: 8}, Dependencies{
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		st, err := svc.Run(context.Background(), JobRequest{FileName: "inv.csv", Data: data})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		page, err := svc.Records(st.ID, Page{Number: 1, Size: n}, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.Items[0].Row != 2 || page.Items[0].State != StateValidated {
			t.Fatalf("run %d: got first row %d in state %s, want row 2 %s",
				run, page.Items[0].Row, page.Items[0].State, StateValidated)
		}
		for _, rec := range page.Items[1:] {
			if rec.State != StateDuplicate {
				t.Fatalf("run %d: got row %d in state %s, want %s", run, rec.Row, rec.State, StateDuplicate)
			}
		}

		ledger, _ := svc.Errors(context.Background(), ErrorFilter{JobID: st.ID, Severity: SeverityWarning})
		var dup *ETLError
		for i := range ledger.Items {
			if ledger.Items[i].Code == CodeDuplicateHost {
				dup = &ledger.Items[i]
			}
		}
		if dup == nil || dup.Occurrences != n-1 || dup.Row == nil || *dup.Row != 3 {
			t.Fatalf("run %d: got ledger entry %+v, want %d occurrences first seen at row 3", run, dup, n-1)
		}
	}
}

func TestService_RowNumbersAcrossBlankLines(t *testing.T) {
	header := strings.Join(inventoryHeader, ";")
	line := func(host, ram string) string {
		cells := rowWith(0, map[string]string{"Nombre del Equipo": host, "Memoria RAM": ram}).Cells
		vals := make([]string, len(inventoryHeader))
		for i, h := range inventoryHeader {
			vals[i] = cells[h]
		}
		return strings.Join(vals, ";")
	}
	data := header + "\n" + line("PC-1", "16 GB") + "\n\n\n" + line("PC-2", "4 GB") + "\n"

	svc := newTestService(t, Dependencies{})
	st, err := svc.Run(context.Background(), JobRequest{FileName: "inv.csv", Data: []byte(data)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	page, _ := svc.Records(st.ID, Page{}, StateError)
	if page.Total != 1 || page.Items[0].Row != 5 {
		t.Fatalf("got %+v, want PC-2 at file line 5", page.Items)
	}
	ledger, _ := svc.Errors(context.Background(), ErrorFilter{JobID: st.ID, Severity: SeverityError})
	for _, e := range ledger.Items {
		if e.Row == nil || *e.Row != 5 {
			t.Errorf("got %s at fila %v, want 5", e.Code, e.Row)
		}
	}
}

func TestService_ValidationLeavesCountersAlone(t *testing.T) {
	svc := newTestService(t, Dependencies{})
	st, err := svc.Run(context.Background(), JobRequest{FileName: "inventario.csv", Data: mixedInventory()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r, ok := svc.Rules().Get(RuleRAMMinimum)
	if !ok {
		t.Fatal("service rules lack the RAM rule")
	}
	applied, failed := r.Usage()
	if applied != 4 || failed != 1 {
		t.Fatalf("after the run got applied=%d failed=%d, want 4 and 1", applied, failed)
	}

	for i := 0; i < 3; i++ {
		out, err := svc.Validation(st.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(out.Records) != 4 || out.Invalid != 1 {
			t.Errorf("got %d entries %d invalid, want 4 and 1", len(out.Records), out.Invalid)
		}
	}
	if a, f := r.Usage(); a != applied || f != failed {
		t.Errorf("got applied=%d failed=%d after reading the index, want %d and %d", a, f, applied, failed)
	}
}
