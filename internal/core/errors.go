package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrErrorNotFound is returned when an ETLError id is unknown.
var ErrErrorNotFound = errors.New("etl error not found")

// Pipeline steps recorded on ETLErrors.
const (
	StepReading       = "lectura"
	StepMapping       = "mapeo_columnas"
	StepNormalization = "normalizacion"
	StepValidation    = "validacion"
	StepBusinessRules = "reglas_negocio"
	StepScoring       = "puntuacion"
	StepProcessing    = "procesamiento"
	StepPersistence   = "persistencia"
)

// ETLError is one deduplicated entry of the error ledger.
type ETLError struct {
	ID              string     `json:"id"`
	JobID           string     `json:"job_id"`
	Type            ErrorType  `json:"tipo"`
	Severity        Severity   `json:"severidad"`
	Code            string     `json:"codigo"`
	Field           string     `json:"campo"`
	Message         string     `json:"mensaje"`
	Row             *int       `json:"fila"`
	Column          string     `json:"columna"`
	Step            string     `json:"paso"`
	OriginalValue   string     `json:"valor_original"`
	ExpectedValue   string     `json:"valor_esperado"`
	SuggestedAction string     `json:"accion_sugerida"`
	Resolved        bool       `json:"resuelto"`
	ResolvedAt      *time.Time `json:"fecha_resolucion"`
	ResolutionNote  string     `json:"nota_resolucion"`
	Occurrences     int        `json:"veces_ocurrido"`
	Recurrent       bool       `json:"es_recurrente"`
	FirstSeen       time.Time  `json:"primera_ocurrencia"`
	LastSeen        time.Time  `json:"ultima_ocurrencia"`
}

// Signature identifies an error for deduplication: job, type, code, field
// and message.
func (e *ETLError) Signature() string {
	h := sha256.New()
	for _, part := range []string{e.JobID, string(e.Type), e.Code, e.Field, e.Message} {
		h.Write([]byte(part))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ErrorFilter selects a page of the error feed. Zero values match anything.
type ErrorFilter struct {
	JobID    string
	Type     ErrorType
	Severity Severity
	Resolved *bool
	Page     Page
}

// Matches reports whether e passes the filter.
func (f ErrorFilter) Matches(e *ETLError) bool {
	switch {
	case f.JobID != "" && e.JobID != f.JobID:
		return false
	case f.Type != "" && e.Type != f.Type:
		return false
	case f.Severity != "" && e.Severity != f.Severity:
		return false
	case f.Resolved != nil && e.Resolved != *f.Resolved:
		return false
	}
	return true
}

// ErrorPage is one page of the error feed.
type ErrorPage struct {
	Items []ETLError `json:"items"`
	Total int        `json:"total"`
	Page  int        `json:"pagina"`
	Size  int        `json:"tamano"`
	Pages int        `json:"paginas"`
}

// SummaryQuery scopes an error summary. A zero Since covers all time.
type SummaryQuery struct {
	JobID string
	Since time.Time
	TopN  int
}

// DefaultTopN is the number of recurrent errors a summary lists by default.
const DefaultTopN = 10

// ErrorSummary aggregates the ledger.
type ErrorSummary struct {
	Total        int               `json:"total"`
	Occurrences  int               `json:"ocurrencias"`
	Unresolved   int               `json:"sin_resolver"`
	ByType       map[ErrorType]int `json:"por_tipo"`
	BySeverity   map[Severity]int  `json:"por_severidad"`
	TopRecurrent []ETLError        `json:"top_recurrentes"`
}

// ErrorStore persists the error ledger. FindOrCreate must be atomic per
// signature: concurrent calls with one signature produce one entry.
type ErrorStore interface {
	FindOrCreate(ctx context.Context, e *ETLError) (*ETLError, error)
	List(ctx context.Context, f ErrorFilter) (ErrorPage, error)
	Summary(ctx context.Context, q SummaryQuery) (ErrorSummary, error)
	Resolve(ctx context.Context, id, note string) (*ETLError, error)
	PurgeResolved(ctx context.Context, before time.Time) (int, error)
}

// MemoryErrorStore is an ErrorStore held in process memory.
type MemoryErrorStore struct {
	mu    sync.Mutex
	bySig map[string]*ETLError
	byID  map[string]*ETLError
	order []*ETLError
	now   func() time.Time
}

// NewMemoryErrorStore returns an empty store.
func NewMemoryErrorStore() *MemoryErrorStore {
	return &MemoryErrorStore{
		bySig: make(map[string]*ETLError),
		byID:  make(map[string]*ETLError),
		now:   time.Now,
	}
}

// FindOrCreate inserts e, or bumps the occurrence count of the entry with the
// same signature and marks it recurrent.
func (s *MemoryErrorStore) FindOrCreate(_ context.Context, e *ETLError) (*ETLError, error) {
	sig := e.Signature()

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.bySig[sig]; ok {
		cur.Occurrences++
		cur.Recurrent = true
		cur.LastSeen = e.LastSeen
		out := *cur
		return &out, nil
	}

	stored := *e
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.Occurrences == 0 {
		stored.Occurrences = 1
	}
	s.bySig[sig] = &stored
	s.byID[stored.ID] = &stored
	s.order = append(s.order, &stored)
	out := stored
	return &out, nil
}

// List returns matching entries, most recently seen first.
func (s *MemoryErrorStore) List(_ context.Context, f ErrorFilter) (ErrorPage, error) {
	s.mu.Lock()
	var matched []ETLError
	for _, e := range s.order {
		if f.Matches(e) {
			matched = append(matched, *e)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].LastSeen.After(matched[j].LastSeen)
	})

	p := f.Page.normalized()
	start, end := p.bounds(len(matched))
	return ErrorPage{
		Items: matched[start:end],
		Total: len(matched),
		Page:  p.Number,
		Size:  p.Size,
		Pages: (len(matched) + p.Size - 1) / p.Size,
	}, nil
}

// Summary counts entries by type and severity and lists the most recurrent
// ones seen since q.Since.
func (s *MemoryErrorStore) Summary(_ context.Context, q SummaryQuery) (ErrorSummary, error) {
	s.mu.Lock()
	var window []ETLError
	for _, e := range s.order {
		if q.JobID != "" && e.JobID != q.JobID {
			continue
		}
		if !q.Since.IsZero() && e.LastSeen.Before(q.Since) {
			continue
		}
		window = append(window, *e)
	}
	s.mu.Unlock()
	return summarize(window, q.TopN), nil
}

// summarize builds an ErrorSummary from entries already scoped to the window.
func summarize(entries []ETLError, topN int) ErrorSummary {
	if topN <= 0 {
		topN = DefaultTopN
	}
	sum := ErrorSummary{
		ByType:     make(map[ErrorType]int),
		BySeverity: make(map[Severity]int),
	}
	var recurrent []ETLError
	for _, e := range entries {
		sum.Total++
		sum.Occurrences += e.Occurrences
		sum.ByType[e.Type]++
		sum.BySeverity[e.Severity]++
		if !e.Resolved {
			sum.Unresolved++
		}
		if e.Recurrent {
			recurrent = append(recurrent, e)
		}
	}
	sort.SliceStable(recurrent, func(i, j int) bool {
		if recurrent[i].Occurrences != recurrent[j].Occurrences {
			return recurrent[i].Occurrences > recurrent[j].Occurrences
		}
		return recurrent[i].LastSeen.After(recurrent[j].LastSeen)
	})
	if len(recurrent) > topN {
		recurrent = recurrent[:topN]
	}
	sum.TopRecurrent = recurrent
	return sum
}

// Resolve marks an entry resolved with a note.
func (s *MemoryErrorStore) Resolve(_ context.Context, id, note string) (*ETLError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrErrorNotFound, id)
	}
	now := s.now()
	e.Resolved = true
	e.ResolvedAt = &now
	e.ResolutionNote = note
	out := *e
	return &out, nil
}

// PurgeResolved deletes resolved entries whose resolution predates before.
func (s *MemoryErrorStore) PurgeResolved(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	purged := 0
	for _, e := range s.order {
		if e.Resolved && e.ResolvedAt != nil && e.ResolvedAt.Before(before) {
			delete(s.bySig, e.Signature())
			delete(s.byID, e.ID)
			purged++
			continue
		}
		kept = append(kept, e)
	}
	s.order = kept
	return purged, nil
}

// stepFor maps a finding type to the pipeline step that produced it.
func stepFor(t ErrorType) string {
	switch t {
	case ErrorParsing:
		return StepReading
	case ErrorNormalization:
		return StepNormalization
	case ErrorValidation:
		return StepValidation
	case ErrorBusinessRule:
		return StepBusinessRules
	case ErrorScoring:
		return StepScoring
	case ErrorDatabase:
		return StepPersistence
	}
	return StepProcessing
}

// recordFieldColumns maps record fields back to the mapper field whose source
// column produced them.
var recordFieldColumns = map[string]string{
	"fecha_auditoria":         FieldAuditDate,
	"proveedor":               FieldProvider,
	"sitio":                   FieldSite,
	"tipo_atencion":           FieldAttention,
	"usuario_id":              FieldUserID,
	"hostname":                FieldHostname,
	"cpu_marca":               FieldProcessor,
	"cpu_modelo":              FieldProcessor,
	"cpu_generacion":          FieldProcessor,
	"cpu_velocidad_ghz":       FieldCPUSpeed,
	"cpu_nucleos":             FieldCPUCores,
	"ram_gb":                  FieldRAM,
	"ram_tipo":                FieldRAMType,
	"ram_velocidad_mhz":       FieldRAM,
	"disco_tipo":              FieldDiskType,
	"disco_capacidad_gb":      FieldStorage,
	"disco_libre_gb":          FieldDiskFree,
	"so_nombre":               FieldOS,
	"so_version":              FieldOSVersion,
	"so_build":                FieldOSBuild,
	"navegador_nombre":        FieldBrowser,
	"navegador_version":       FieldBrowserVersion,
	"antivirus_marca":         FieldAntivirus,
	"antivirus_actualizado":   FieldAVUpdated,
	"diadema_marca":           FieldHeadset,
	"webcam":                  FieldWebcam,
	"isp":                     FieldISP,
	"tipo_conexion":           FieldConnection,
	"velocidad_descarga_mbps": FieldDownload,
	"velocidad_subida_mbps":   FieldUpload,
	"latencia_ms":             FieldLatency,
}

// ErrorTracker turns findings and job failures into deduplicated ledger
// entries.
type ErrorTracker struct {
	store   ErrorStore
	metrics Metrics
	now     func() time.Time
}

// NewErrorTracker returns a tracker writing to store. A nil store uses a
// MemoryErrorStore; nil metrics are discarded.
func NewErrorTracker(store ErrorStore, m Metrics) *ErrorTracker {
	if store == nil {
		store = NewMemoryErrorStore()
	}
	if m == nil {
		m = NopMetrics{}
	}
	return &ErrorTracker{store: store, metrics: m, now: time.Now}
}

// Store returns the underlying store.
func (t *ErrorTracker) Store() ErrorStore {
	return t.store
}

// Create files e, stamping its timestamps, and returns the stored entry.
func (t *ErrorTracker) Create(ctx context.Context, e ETLError) (*ETLError, error) {
	now := t.now()
	e.FirstSeen, e.LastSeen = now, now
	e.Occurrences = 1
	e.Recurrent = false
	if e.Step == "" {
		e.Step = stepFor(e.Type)
	}
	stored, err := t.store.FindOrCreate(ctx, &e)
	if err != nil {
		return nil, fmt.Errorf("record etl error %s: %w", e.Code, err)
	}
	t.metrics.ErrorRecorded(e.Type, e.Severity)
	return stored, nil
}

// RecordFindings files every finding of rec. The column is resolved through
// mapping when the finding's field came from a mapped header.
func (t *ErrorTracker) RecordFindings(ctx context.Context, rec *InventoryRecord, mapping ColumnMapping) error {
	var errs []error
	for _, f := range rec.Findings() {
		row := rec.Row
		e := ETLError{
			JobID:           rec.JobID,
			Type:            f.Type,
			Severity:        f.Severity,
			Code:            f.Code,
			Field:           f.Field,
			Message:         f.ledgerMessage(),
			Row:             &row,
			OriginalValue:   f.Value,
			ExpectedValue:   f.Expected,
			SuggestedAction: f.SuggestedAction,
		}
		if field, ok := recordFieldColumns[f.Field]; ok {
			e.Column, _ = mapping.Column(field)
		}
		if _, err := t.Create(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// JobFailure files a job-level failure at the given step.
func (t *ErrorTracker) JobFailure(ctx context.Context, jobID, step string, cause error) (*ETLError, error) {
	typ, code, action := ErrorSystem, "JOB001", "Revisar el archivo y reintentar la carga"
	switch {
	case errors.Is(cause, ErrProcessorColumnMissing):
		typ, code, action = ErrorParsing, "MAP001", "Agregar una columna de procesador al archivo"
	case errors.Is(cause, ErrEmptyFile):
		typ, code, action = ErrorParsing, "FILE002", "Verificar que el archivo contenga filas de datos"
	case step == StepReading:
		typ, code = ErrorParsing, "FILE001"
	case step == StepPersistence:
		typ, code, action = ErrorDatabase, "DB001", "Verificar la conexión con la base de datos y reprocesar el archivo"
	}
	return t.Create(ctx, ETLError{
		JobID:           jobID,
		Type:            typ,
		Severity:        SeverityCritical,
		Code:            code,
		Field:           "archivo",
		Message:         strings.TrimSpace(cause.Error()),
		Step:            step,
		SuggestedAction: action,
	})
}
