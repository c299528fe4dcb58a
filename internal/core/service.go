package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/parque/internal/policy"
)

// ErrNoFile is returned for a request without file contents.
var ErrNoFile = errors.New("no file provided")

// ErrJobRunning is returned when a result is requested before the job ends.
var ErrJobRunning = errors.New("job still running")

// ServiceConfig tunes the pipeline. Zero fields take the defaults of
// DefaultServiceConfig.
type ServiceConfig struct {
	Workers           int
	StrictMode        bool
	MaxFileSize       int64
	MaxConcurrentJobs int
	MaxWaitTime       time.Duration
	JobTimeout        time.Duration
	JobRetention      time.Duration
	Rules             *policy.RuleSet
}

// DefaultServiceConfig returns the built-in settings.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Workers:           4,
		MaxFileSize:       MaxFileSize,
		MaxConcurrentJobs: DefaultMaxConcurrentJobs,
		MaxWaitTime:       DefaultMaxWaitTime,
		JobTimeout:        10 * time.Minute,
		JobRetention:      time.Hour,
	}
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	def := DefaultServiceConfig()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = def.MaxFileSize
	}
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = def.MaxConcurrentJobs
	}
	if c.MaxWaitTime <= 0 {
		c.MaxWaitTime = def.MaxWaitTime
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = def.JobTimeout
	}
	if c.JobRetention <= 0 {
		c.JobRetention = def.JobRetention
	}
	if c.Rules == nil {
		c.Rules = DefaultRuleSet()
	}
	return c
}

// RecordSink persists the records of a finished job.
type RecordSink interface {
	SaveRecords(ctx context.Context, jobID string, records []InventoryRecord) error
}

// Dependencies are the optional collaborators of a Service. Nil fields fall
// back to in-memory or no-op implementations.
type Dependencies struct {
	Errors  ErrorStore
	Sink    RecordSink
	Metrics Metrics
	Logger  *slog.Logger
}

// JobRequest is one uploaded inventory file.
type JobRequest struct {
	FileName string
	Data     []byte
	Meta     JobMeta
	Skip     []string // business rule IDs to skip
}

// RecordPage is one page of a job's records.
type RecordPage struct {
	Items []InventoryRecord `json:"registros"`
	Total int               `json:"total"`
	Page  int               `json:"pagina"`
	Size  int               `json:"tamano"`
	Pages int               `json:"paginas"`
}

// jobEntry is what the registry keeps per job.
type jobEntry struct {
	job *ETLJob

	mu      sync.RWMutex
	mapping ColumnMapping
	records []InventoryRecord
	report  *ValidationReport
}

func (e *jobEntry) setMapping(m ColumnMapping) {
	e.mu.Lock()
	e.mapping = m
	e.mu.Unlock()
}

func (e *jobEntry) setResults(records []InventoryRecord, report *ValidationReport) {
	e.mu.Lock()
	e.records = records
	e.report = report
	e.mu.Unlock()
}

// Service runs inventory files through the pipeline and keeps finished jobs
// queryable for JobRetention.
type Service struct {
	cfg     ServiceConfig
	jobs    *cache.Cache
	limiter *JobLimiter
	tracker *ErrorTracker
	sink    RecordSink
	metrics Metrics
	log     *slog.Logger
	wg      sync.WaitGroup
}

// NewService creates a Service.
func NewService(cfg ServiceConfig, deps Dependencies) *Service {
	cfg = cfg.withDefaults()
	m := deps.Metrics
	if m == nil {
		m = NopMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:     cfg,
		jobs:    cache.New(cfg.JobRetention, cfg.JobRetention/2),
		limiter: NewJobLimiter(cfg.MaxConcurrentJobs, cfg.MaxWaitTime),
		tracker: NewErrorTracker(deps.Errors, m),
		sink:    deps.Sink,
		metrics: m,
		log:     logger,
	}
}

// Config returns the effective configuration.
func (s *Service) Config() ServiceConfig {
	return s.cfg
}

// Rules returns the rule set every job runs with.
func (s *Service) Rules() *policy.RuleSet {
	return s.cfg.Rules
}

// Limiter returns the job limiter status.
func (s *Service) Limiter() JobLimiterStatus {
	return s.limiter.Status()
}

// ErrorStore returns the error ledger.
func (s *Service) ErrorStore() ErrorStore {
	return s.tracker.Store()
}

// Run processes req synchronously and returns the final status. The error
// is non-nil when the job did not complete.
func (s *Service) Run(ctx context.Context, req JobRequest) (JobStatus, error) {
	if err := validateRequest(req); err != nil {
		return JobStatus{}, err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return JobStatus{}, err
	}
	defer s.limiter.Release()

	e := s.register(ctx, req)
	s.wg.Add(1)
	defer s.wg.Done()

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()
	err := s.execute(runCtx, e, req)
	return e.job.Status(), err
}

// Start queues req and returns the job id once a slot is available. Use
// Status or Subscribe to follow it.
func (s *Service) Start(ctx context.Context, req JobRequest) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	e := s.register(ctx, req)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.limiter.Release()
		runCtx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
		defer cancel()
		_ = s.execute(runCtx, e, req)
	}()
	return e.job.ID(), nil
}

func validateRequest(req JobRequest) error {
	if len(req.Data) == 0 {
		return ErrNoFile
	}
	return nil
}

func (s *Service) register(ctx context.Context, req JobRequest) *jobEntry {
	e := &jobEntry{job: NewJob(req.FileName, int64(len(req.Data)), req.Meta)}
	if ip := ClientIPFromContext(ctx); ip != "" {
		e.job.Logf("INFO", "Carga recibida desde %s", ip)
	}
	s.jobs.Set(e.job.ID(), e, cache.NoExpiration)
	return e
}

// execute drives one job to a terminal state.
func (s *Service) execute(parent context.Context, e *jobEntry, req JobRequest) (err error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	job := e.job
	job.bindCancel(cancel)
	log := s.log.With("job_id", job.ID(), "file", req.FileName)
	log.Info("job started", "size_bytes", len(req.Data))

	start := time.Now()
	s.metrics.JobStarted()
	defer func() {
		st := job.State()
		s.metrics.JobFinished(st, time.Since(start))
		s.jobs.Set(job.ID(), e, cache.DefaultExpiration)
		log.Info("job finished", "state", st, "duration_ms", time.Since(start).Milliseconds())
	}()
	defer func() {
		if r := recover(); r != nil {
			err = s.fail(ctx, job, StepProcessing, fmt.Errorf("internal error: %v", r))
		}
	}()

	if err := s.advance(job, JobParsing); err != nil {
		return err
	}
	table, err := ReadTable(bytes.NewReader(req.Data), req.FileName, s.cfg.MaxFileSize)
	if err != nil {
		return s.fail(ctx, job, StepReading, err)
	}
	mapping, err := MapColumns(table.Header)
	if err != nil {
		return s.fail(ctx, job, StepMapping, err)
	}
	e.setMapping(mapping)
	job.SetTotal(len(table.Rows))
	job.Logf("INFO", "Hoja %q: %d filas, %d columnas reconocidas", table.Sheet, len(table.Rows), mapping.Mapped())
	if missing := mapping.Unmapped(); len(missing) > 0 {
		job.Logf("WARNING", "Campos sin columna: %s", strings.Join(missing, ", "))
	}

	if err := s.advance(job, JobNormalizing); err != nil {
		return err
	}
	proc := NewRowProcessor(mapping, ProcessorOptions{
		Rules:      s.cfg.Rules,
		StrictMode: s.cfg.StrictMode,
		Skip:       req.Skip,
		Meta:       job.Meta(),
		JobID:      job.ID(),
	})
	records := s.processRows(ctx, job, proc, mapping, table.Rows)

	if err := ctx.Err(); err != nil {
		e.setResults(records, nil)
		if job.State() == JobCancelled {
			return err
		}
		return s.fail(ctx, job, StepNormalization, err)
	}

	if err := s.advance(job, JobValidating); err != nil {
		return err
	}
	report := BuildReport(records)
	e.setResults(records, &report)

	if err := s.advance(job, JobScoring); err != nil {
		return err
	}
	stats := ComputeStats(records)

	if s.sink != nil {
		if err := s.sink.SaveRecords(ctx, job.ID(), records); err != nil {
			return s.fail(ctx, job, StepPersistence, err)
		}
	}
	if err := job.MarkCompleted(&stats); err != nil {
		return s.stopped(job, err)
	}
	return nil
}

// processRows runs every row through proc with up to Workers in flight and
// returns the records in file order. It stops scheduling rows once ctx is
// done; rows already running finish.
//
// Finished rows are committed strictly in file order: duplicate detection,
// job counters and the ledger see row n only after rows 1..n-1, whatever the
// worker count.
func (s *Service) processRows(ctx context.Context, job *ETLJob, proc *RowProcessor, mapping ColumnMapping, rows []Row) []InventoryRecord {
	results := make([]*InventoryRecord, len(rows))
	ledgerCtx := context.WithoutCancel(ctx)
	c := &rowCommitter{
		results: results,
		done:    make([]bool, len(rows)),
		hosts:   NewHostIndex(),
		commit: func(rec *InventoryRecord) {
			job.RecordRow(rec)
			s.metrics.RowProcessed(rec.State)
			if err := s.tracker.RecordFindings(ledgerCtx, rec, mapping); err != nil {
				s.log.Warn("record findings", "job_id", job.ID(), "row", rec.Row, "error", err)
			}
		},
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, row := range rows {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := proc.Process(row)
			if res.Skipped {
				job.SkipRow()
			}
			c.finish(i, res.Record)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]InventoryRecord, 0, len(rows))
	for _, rec := range results {
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out
}

// rowCommitter releases finished rows in file order. Rows ahead of a gap
// wait until every earlier row has finished.
type rowCommitter struct {
	mu      sync.Mutex
	results []*InventoryRecord // nil for skipped rows
	done    []bool
	next    int
	hosts   *HostIndex
	commit  func(*InventoryRecord)
}

// finish stores the outcome of row i and commits every row that is now
// contiguous with the committed prefix.
func (c *rowCommitter) finish(i int, rec *InventoryRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[i] = rec
	c.done[i] = true
	for c.next < len(c.done) && c.done[c.next] {
		if r := c.results[c.next]; r != nil {
			c.hosts.Mark(r)
			c.commit(r)
		}
		c.next++
	}
}

// advance moves the job forward, reporting a cancellation as such.
func (s *Service) advance(job *ETLJob, to JobState) error {
	if err := job.Transition(to); err != nil {
		return s.stopped(job, err)
	}
	return nil
}

func (s *Service) stopped(job *ETLJob, err error) error {
	if job.State() == JobCancelled {
		return context.Canceled
	}
	return err
}

// fail marks the job ERROR and files the failure in the ledger.
func (s *Service) fail(ctx context.Context, job *ETLJob, step string, cause error) error {
	if errors.Is(cause, context.Canceled) && job.State() == JobCancelled {
		return cause
	}
	if err := job.MarkError(step, cause); err == nil {
		if _, lerr := s.tracker.JobFailure(context.WithoutCancel(ctx), job.ID(), step, cause); lerr != nil {
			s.log.Warn("record job failure", "job_id", job.ID(), "error", lerr)
		}
	}
	s.log.Error("job failed", "job_id", job.ID(), "step", step, "error", cause)
	return fmt.Errorf("%s: %w", step, cause)
}

func (s *Service) entry(id string) (*jobEntry, error) {
	v, ok := s.jobs.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return v.(*jobEntry), nil
}

// Job returns the live job.
func (s *Service) Job(id string) (*ETLJob, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	return e.job, nil
}

// Status returns a snapshot of the job.
func (s *Service) Status(id string) (JobStatus, error) {
	e, err := s.entry(id)
	if err != nil {
		return JobStatus{}, err
	}
	return e.job.Status(), nil
}

// Subscribe streams status snapshots until the job finishes.
func (s *Service) Subscribe(id string) (<-chan JobStatus, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	return e.job.Subscribe(), nil
}

// Wait blocks until the job finishes or ctx is done.
func (s *Service) Wait(ctx context.Context, id string) (JobStatus, error) {
	e, err := s.entry(id)
	if err != nil {
		return JobStatus{}, err
	}
	select {
	case <-e.job.Done():
		return e.job.Status(), nil
	case <-ctx.Done():
		return e.job.Status(), ctx.Err()
	}
}

// Cancel stops the job. Finished jobs return ErrInvalidTransition.
func (s *Service) Cancel(id string) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	return e.job.Cancel()
}

// Mapping returns the column mapping the job resolved.
func (s *Service) Mapping(id string) (ColumnMapping, error) {
	e, err := s.entry(id)
	if err != nil {
		return ColumnMapping{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mapping, nil
}

// Records returns one page of the job's records in file order. An optional
// state narrows the page to records in that state.
func (s *Service) Records(id string, page Page, state RecordState) (RecordPage, error) {
	e, err := s.entry(id)
	if err != nil {
		return RecordPage{}, err
	}
	if !e.job.State().Terminal() {
		return RecordPage{}, ErrJobRunning
	}

	e.mu.RLock()
	items := e.records
	e.mu.RUnlock()
	if state != "" {
		filtered := make([]InventoryRecord, 0, len(items))
		for _, rec := range items {
			if rec.State == state {
				filtered = append(filtered, rec)
			}
		}
		items = filtered
	}

	p := page.normalized()
	start, end := p.bounds(len(items))
	return RecordPage{
		Items: items[start:end],
		Total: len(items),
		Page:  p.Number,
		Size:  p.Size,
		Pages: (len(items) + p.Size - 1) / p.Size,
	}, nil
}

// Stats returns the batch statistics of a completed job.
func (s *Service) Stats(id string) (*BatchStats, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	st := e.job.Status()
	if st.Stats == nil {
		if !st.State.Terminal() {
			return nil, ErrJobRunning
		}
		stats := ComputeStats(e.snapshotRecords())
		return &stats, nil
	}
	return st.Stats, nil
}

// Report returns the validation report of a job.
func (s *Service) Report(id string) (*ValidationReport, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	if !e.job.State().Terminal() {
		return nil, ErrJobRunning
	}
	e.mu.RLock()
	report := e.report
	e.mu.RUnlock()
	if report == nil {
		r := BuildReport(e.snapshotRecords())
		report = &r
	}
	return report, nil
}

// Validation returns the per-record business validation index of a job,
// built from the findings recorded while the job ran.
func (s *Service) Validation(id string) (BatchValidation, error) {
	e, err := s.entry(id)
	if err != nil {
		return BatchValidation{}, err
	}
	if !e.job.State().Terminal() {
		return BatchValidation{}, ErrJobRunning
	}
	return ValidateBatch(e.snapshotRecords()), nil
}

func (e *jobEntry) snapshotRecords() []InventoryRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.records
}

// Jobs lists the jobs still retained, newest first.
func (s *Service) Jobs() []JobStatus {
	items := s.jobs.Items()
	out := make([]JobStatus, 0, len(items))
	for _, item := range items {
		out = append(out, item.Object.(*jobEntry).job.Status())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Errors returns a page of the error ledger.
func (s *Service) Errors(ctx context.Context, f ErrorFilter) (ErrorPage, error) {
	return s.tracker.Store().List(ctx, f)
}

// ErrorSummary aggregates the ledger.
func (s *Service) ErrorSummary(ctx context.Context, q SummaryQuery) (ErrorSummary, error) {
	if q.TopN <= 0 {
		q.TopN = DefaultTopN
	}
	return s.tracker.Store().Summary(ctx, q)
}

// ResolveError marks a ledger entry resolved.
func (s *Service) ResolveError(ctx context.Context, id, note string) (*ETLError, error) {
	return s.tracker.Store().Resolve(ctx, id, note)
}

// CancelAll cancels every running job.
func (s *Service) CancelAll() {
	for _, item := range s.jobs.Items() {
		_ = item.Object.(*jobEntry).job.Cancel()
	}
}

// WaitForJobs blocks until every started job has finished or ctx is done.
func (s *Service) WaitForJobs(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
