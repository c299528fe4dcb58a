package metrics

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/JonMunkholm/parque/internal/core"
)

func TestPipelineCounters(t *testing.T) {
	r := NewRegistry(false)
	m := r.Pipeline()

	m.JobStarted()
	m.JobStarted()
	m.JobFinished(core.JobCompleted, 2*time.Second)
	m.RowProcessed(core.StateValidated)
	m.RowProcessed(core.StateValidated)
	m.RowProcessed(core.StateDuplicate)
	m.ErrorRecorded(core.ErrorBusinessRule, core.SeverityError)

	if got := testutil.ToFloat64(r.JobsActive); got != 1 {
		t.Errorf("got %v active jobs, want 1", got)
	}
	if got := testutil.ToFloat64(r.RowsProcessed.WithLabelValues("VALIDATED")); got != 2 {
		t.Errorf("got %v validated rows, want 2", got)
	}
	if got := testutil.ToFloat64(r.ETLErrors.WithLabelValues("BUSINESS_RULE", "ERROR")); got != 1 {
		t.Errorf("got %v errors, want 1", got)
	}
	if n := testutil.CollectAndCount(r.JobDuration); n != 1 {
		t.Errorf("got %d duration series, want 1", n)
	}
}

func TestServiceReportsToRegistry(t *testing.T) {
	r := NewRegistry(false)
	svc := core.NewService(core.ServiceConfig{Workers: 1}, core.Dependencies{
		Metrics: r.Pipeline(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	data := "Nombre del Equipo;Procesador;Memoria RAM\nPC-1;Intel Core i7-10700;16 GB\nPC-1;Intel Core i7-10700;16 GB\n"
	if _, err := svc.Run(context.Background(), core.JobRequest{FileName: "a.csv", Data: []byte(data)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := testutil.ToFloat64(r.RowsProcessed.WithLabelValues("DUPLICATE")); got != 1 {
		t.Errorf("got %v duplicate rows, want 1", got)
	}
	if got := testutil.ToFloat64(r.JobsActive); got != 0 {
		t.Errorf("got %v active jobs, want 0", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRegistry(false)
	r.Pipeline().RowProcessed(core.StateError)
	r.ObserveRequest("/api/jobs", http.MethodPost, http.StatusAccepted, 30*time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`parque_rows_processed_total{estado="ERROR"} 1`,
		`parque_http_requests_total{method="POST",route="/api/jobs",status_code="202"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in exposition", want)
		}
	}
}
