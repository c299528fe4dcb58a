package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/parque/internal/config"
	"github.com/JonMunkholm/parque/internal/core"
	"github.com/JonMunkholm/parque/internal/logging"
	"github.com/JonMunkholm/parque/internal/metrics"
)

const inventoryCSV = "Proveedor;Sede;Tipo de Atención;ID Usuario;Nombre del Equipo;Procesador;Memoria RAM;Disco Duro;Sistema Operativo;Navegador;Antivirus;Velocidad Descarga (Mbps);Velocidad Subida (Mbps)\n" +
	"Konecta;Bogotá;Chat;jperez;PC-001;Intel Core i7-10700 @ 2.90GHz;16 GB DDR4;512 GB SSD;Windows 11 Pro;Chrome 126;CrowdStrike;50 Mbps;20 Mbps\n" +
	"Konecta;Bogotá;Chat;mlopez;PC-002;Intel Core i7-10700 @ 2.90GHz;4 GB;512 GB SSD;Windows 11 Pro;Chrome 126;CrowdStrike;50 Mbps;20 Mbps\n"

const noProcessorCSV = "Proveedor;Sede;Memoria RAM\nKonecta;Bogotá;16 GB\n"

type testEnv struct {
	svc     *core.Service
	srv     *Server
	metrics *metrics.Registry
}

func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()
	svc := core.NewService(core.ServiceConfig{Workers: 1}, core.Dependencies{Logger: logging.Discard()})
	reg := metrics.NewRegistry(false)
	opts := Options{Metrics: reg, Logger: logging.Discard()}
	if mutate != nil {
		mutate(&opts)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.WaitForJobs(ctx)
	})
	return &testEnv{svc: svc, srv: NewServer(svc, opts), metrics: reg}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

// uploadRequest builds a multipart POST; an empty name omits the file part.
func uploadRequest(t *testing.T, path, name, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if name != "" {
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		fw.Write([]byte(content))
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestCreateJob_WaitReturnsFinalStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, uploadRequest(t, "/api/jobs?wait=true", "inventario.csv", inventoryCSV,
		map[string]string{"audit_id": "AUD-9", "audit_cycle": "2024-Q2"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200: %s", rec.Code, rec.Body.String())
	}
	st := decode[core.JobStatus](t, rec)
	if st.State != core.JobCompleted {
		t.Errorf("got state %s, want %s", st.State, core.JobCompleted)
	}
	if st.Processed != 2 || st.Valid != 1 || st.Errored != 1 {
		t.Errorf("got processed %d valid %d errored %d, want 2/1/1", st.Processed, st.Valid, st.Errored)
	}
	if st.AuditID != "AUD-9" || st.AuditCycle != "2024-Q2" {
		t.Errorf("got audit %q cycle %q", st.AuditID, st.AuditCycle)
	}
	if st.Stats == nil || st.Stats.Total != 2 {
		t.Errorf("got stats %+v, want 2 records", st.Stats)
	}
}

func TestCreateJob_AsyncThenQueryResults(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, uploadRequest(t, "/api/jobs", "inventario.csv", inventoryCSV, nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("got %d, want 202: %s", rec.Code, rec.Body.String())
	}
	accepted := decode[jobAccepted](t, rec)
	if rec.Header().Get("Location") != accepted.StatusURL {
		t.Errorf("Location = %q, want %q", rec.Header().Get("Location"), accepted.StatusURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := env.svc.Wait(ctx, accepted.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status := env.get(t, accepted.StatusURL)
	if status.Code != http.StatusOK {
		t.Fatalf("status: got %d", status.Code)
	}
	var contract map[string]any
	if err := json.Unmarshal(status.Body.Bytes(), &contract); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, key := range []string{"estado", "progreso_porcentaje", "registros_procesados",
		"tiempo_transcurrido", "tiempo_estimado_restante", "estadisticas"} {
		if _, ok := contract[key]; !ok {
			t.Errorf("status response lacks %q", key)
		}
	}

	records := env.get(t, accepted.StatusURL+"/records?estado=error&size=10")
	if records.Code != http.StatusOK {
		t.Fatalf("records: got %d: %s", records.Code, records.Body.String())
	}
	page := decode[core.RecordPage](t, records)
	if page.Total != 1 || len(page.Items) != 1 || page.Items[0].Hostname != "PC-002" {
		t.Errorf("got %+v, want PC-002 as the only ERROR record", page)
	}

	for _, suffix := range []string{"/stats", "/report", "/mapping"} {
		if rec := env.get(t, accepted.StatusURL+suffix); rec.Code != http.StatusOK {
			t.Errorf("%s: got %d: %s", suffix, rec.Code, rec.Body.String())
		}
	}

	validation := decode[core.BatchValidation](t, env.get(t, accepted.StatusURL+"/validation"))
	if validation.Valid != 1 || validation.Invalid != 1 || len(validation.Records) != 2 {
		t.Errorf("got %+v, want one valid and one invalid record", validation)
	}

	list := decode[struct {
		Jobs  []core.JobStatus `json:"jobs"`
		Total int              `json:"total"`
	}](t, env.get(t, "/api/jobs?estado=COMPLETED"))
	if list.Total != 1 || list.Jobs[0].ID != accepted.ID || list.Jobs[0].Log != nil {
		t.Errorf("got %+v, want the job without its log", list)
	}
}

func TestCreateJob_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		opts     func(*Options)
		file     string
		content  string
		wantCode int
		wantErr  string
	}{
		{"missing file", nil, "", "", http.StatusBadRequest, "FILE005"},
		{"too large", func(o *Options) { o.MaxUploadSize = 16 }, "inventario.csv", inventoryCSV,
			http.StatusRequestEntityTooLarge, "FILE001"},
	}

	for _, tt := range tests {
		env := newTestEnv(t, tt.opts)
		rec := env.do(t, uploadRequest(t, "/api/jobs", tt.file, tt.content, nil))
		if rec.Code != tt.wantCode {
			t.Errorf("%s: got %d, want %d", tt.name, rec.Code, tt.wantCode)
			continue
		}
		body := decode[ErrorResponse](t, rec)
		if body.Code != tt.wantErr || body.Message == "" || body.RequestID == "" {
			t.Errorf("%s: got %+v, want code %s with message and request id", tt.name, body, tt.wantErr)
		}
	}
}

func TestJobEndpoints_Errors(t *testing.T) {
	env := newTestEnv(t, nil)
	st, _ := env.svc.Run(context.Background(), core.JobRequest{FileName: "a.csv", Data: []byte(inventoryCSV)})

	tests := []struct {
		name     string
		method   string
		path     string
		wantCode int
		wantErr  string
	}{
		{"unknown job", http.MethodGet, "/api/jobs/nope", http.StatusNotFound, "JOB002"},
		{"unknown job stats", http.MethodGet, "/api/jobs/nope/stats", http.StatusNotFound, "JOB002"},
		{"bad page", http.MethodGet, "/api/jobs/" + st.ID + "/records?page=0", http.StatusBadRequest, "REQ001"},
		{"bad state", http.MethodGet, "/api/jobs/" + st.ID + "/records?estado=RARO", http.StatusBadRequest, "REQ001"},
		{"cancel finished", http.MethodPost, "/api/jobs/" + st.ID + "/cancel", http.StatusConflict, "JOB003"},
		{"bad error type", http.MethodGet, "/api/errors?tipo=OTRO", http.StatusBadRequest, "REQ001"},
		{"bad since", http.MethodGet, "/api/errors/summary?desde=ayer", http.StatusBadRequest, "REQ001"},
		{"unknown error", http.MethodPost, "/api/errors/nope/resolve", http.StatusNotFound, "ERR001"},
	}

	for _, tt := range tests {
		rec := env.do(t, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.wantCode {
			t.Errorf("%s: got %d, want %d: %s", tt.name, rec.Code, tt.wantCode, rec.Body.String())
			continue
		}
		if got := decode[ErrorResponse](t, rec).Code; got != tt.wantErr {
			t.Errorf("%s: got code %s, want %s", tt.name, got, tt.wantErr)
		}
	}
}

func TestErrorLedgerEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, uploadRequest(t, "/api/jobs?wait=true", "sin_cpu.csv", noProcessorCSV, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	st := decode[core.JobStatus](t, rec)
	if st.State != core.JobError {
		t.Fatalf("got state %s, want %s", st.State, core.JobError)
	}

	page := decode[core.ErrorPage](t, env.get(t, "/api/errors?job_id="+st.ID+"&severidad=critical&resuelto=false"))
	if page.Total != 1 || page.Items[0].Code != "MAP001" {
		t.Fatalf("got %+v, want one MAP001", page)
	}

	sum := decode[core.ErrorSummary](t, env.get(t, "/api/errors/summary?job_id="+st.ID+"&desde=1h"))
	if sum.Total != 1 || sum.Unresolved != 1 || sum.ByType[core.ErrorParsing] != 1 {
		t.Errorf("got %+v, want one unresolved PARSING error", sum)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/errors/"+page.Items[0].ID+"/resolve",
		strings.NewReader(`{"notas":"plantilla corregida"}`))
	resolved := env.do(t, req)
	if resolved.Code != http.StatusOK {
		t.Fatalf("resolve: got %d: %s", resolved.Code, resolved.Body.String())
	}
	e := decode[core.ETLError](t, resolved)
	if !e.Resolved || e.ResolutionNote != "plantilla corregida" || e.ResolvedAt == nil {
		t.Errorf("got %+v, want a resolved entry with its note", e)
	}

	after := decode[core.ErrorPage](t, env.get(t, "/api/errors?job_id="+st.ID+"&resuelto=false"))
	if after.Total != 0 {
		t.Errorf("got %d unresolved, want 0", after.Total)
	}
}

func TestJobEvents_FinishedJobCompletes(t *testing.T) {
	env := newTestEnv(t, nil)
	st, err := env.svc.Run(context.Background(), core.JobRequest{FileName: "a.csv", Data: []byte(inventoryCSV)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := env.get(t, "/api/jobs/"+st.ID+"/events")
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: progress") || !strings.Contains(body, "event: complete") {
		t.Errorf("got %q, want a progress and a complete event", body)
	}
	if !strings.Contains(body, `"estado":"COMPLETED"`) {
		t.Errorf("got %q, want the final state", body)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	if rec := env.get(t, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("got %d, want 200", rec.Code)
	}

	down := newTestEnv(t, func(o *Options) {
		o.Ready = func(context.Context) error { return errors.New("dial tcp: connection refused") }
	})
	rec := down.get(t, "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want 503", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["estado"] != "degradado" {
		t.Errorf("got %v, want degradado", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.get(t, "/api/jobs/nope")

	rec := env.get(t, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `parque_http_requests_total{method="GET",route="/api/jobs/{jobID}",status_code="404"} 1`) {
		t.Errorf("request not counted under its route pattern:\n%s", body)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 2, UploadLimit: 1}
	})

	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, env.get(t, "/api/jobs").Code)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("got %v, want the third request throttled", codes)
	}
	if rec := env.get(t, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("health check got %d, want it outside the limiter", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrTooManyJobs, http.StatusServiceUnavailable},
		{core.ErrJobRunning, http.StatusConflict},
		{core.ErrProcessorColumnMissing, http.StatusUnprocessableEntity},
		{badRequest("x"), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
