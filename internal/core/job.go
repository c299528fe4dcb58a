package core

// job.go tracks one ETL run over one uploaded file.
//
// An ETLJob moves forward through the pipeline steps and ends in exactly one
// terminal state:
//
//	INITIATED → PARSING → NORMALIZING → VALIDATING → SCORING → COMPLETED
//	                              any non-terminal state → ERROR | CANCELLED
//
// Steps may be skipped but never revisited, and terminal states absorb every
// later transition. All mutation happens under the job mutex so row workers
// can report outcomes concurrently.

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobState is the pipeline step an ETLJob is in.
type JobState string

const (
	JobInitiated   JobState = "INITIATED"
	JobParsing     JobState = "PARSING"
	JobNormalizing JobState = "NORMALIZING"
	JobValidating  JobState = "VALIDATING"
	JobScoring     JobState = "SCORING"
	JobCompleted   JobState = "COMPLETED"
	JobError       JobState = "ERROR"
	JobCancelled   JobState = "CANCELLED"
)

var jobStepOrder = map[JobState]int{
	JobInitiated:   0,
	JobParsing:     1,
	JobNormalizing: 2,
	JobValidating:  3,
	JobScoring:     4,
}

// Terminal reports whether s absorbs further transitions.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobError || s == JobCancelled
}

// ErrInvalidTransition is returned for backward moves and for any move out
// of a terminal state.
var ErrInvalidTransition = errors.New("invalid job state transition")

// ErrJobNotFound is returned when a job id is unknown or has expired.
var ErrJobNotFound = errors.New("job not found")

// MaxJobLog bounds the job log; the oldest entries are dropped first.
const MaxJobLog = 100

// LogEntry is one line of the job log.
type LogEntry struct {
	Time    time.Time `json:"fecha"`
	Level   string    `json:"nivel"`
	Message string    `json:"mensaje"`
}

// JobStatus is a point-in-time snapshot of an ETLJob, also used as the
// polling contract.
type JobStatus struct {
	ID          string      `json:"id"`
	FileName    string      `json:"archivo_nombre"`
	FileSize    int64       `json:"archivo_tamano"`
	AuditID     string      `json:"audit_id"`
	AuditCycle  string      `json:"ciclo_auditoria"`
	AuditVer    string      `json:"version_auditoria"`
	State       JobState    `json:"estado"`
	Total       int         `json:"registros_totales"`
	Processed   int         `json:"registros_procesados"`
	Valid       int         `json:"registros_validos"`
	Errored     int         `json:"registros_con_error"`
	Warned      int         `json:"registros_con_advertencia"`
	Percent     float64     `json:"progreso_porcentaje"`
	StartedAt   time.Time   `json:"fecha_inicio"`
	FinishedAt  *time.Time  `json:"fecha_fin"`
	Elapsed     float64     `json:"tiempo_transcurrido"`
	Remaining   *float64    `json:"tiempo_estimado_restante"`
	ErrorDetail string      `json:"error_detalle,omitempty"`
	Log         []LogEntry  `json:"log"`
	Stats       *BatchStats `json:"estadisticas"`
}

// ETLJob is the mutable state of one run. Use NewJob to create one.
type ETLJob struct {
	mu sync.Mutex

	id       string
	fileName string
	fileSize int64
	meta     JobMeta

	state       JobState
	total       int
	processed   int
	valid       int
	errored     int
	warned      int
	percent     float64
	startedAt   time.Time
	finishedAt  time.Time
	errorDetail string
	log         []LogEntry
	stats       *BatchStats

	cancel    context.CancelFunc
	done      chan struct{}
	listeners []chan JobStatus
	now       func() time.Time
}

// NewJob creates a job in INITIATED state.
func NewJob(fileName string, fileSize int64, meta JobMeta) *ETLJob {
	j := &ETLJob{
		id:       uuid.NewString(),
		fileName: fileName,
		fileSize: fileSize,
		meta:     meta,
		state:    JobInitiated,
		done:     make(chan struct{}),
		now:      time.Now,
	}
	j.startedAt = j.now()
	j.appendLog("INFO", fmt.Sprintf("Trabajo creado para %s", fileName))
	return j
}

// ID returns the job id.
func (j *ETLJob) ID() string { return j.id }

// Meta returns the audit metadata of the job.
func (j *ETLJob) Meta() JobMeta { return j.meta }

// State returns the current state.
func (j *ETLJob) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Done is closed when the job reaches a terminal state.
func (j *ETLJob) Done() <-chan struct{} { return j.done }

// bindCancel registers the function that stops the job's workers.
func (j *ETLJob) bindCancel(cancel context.CancelFunc) {
	j.mu.Lock()
	j.cancel = cancel
	j.mu.Unlock()
}

// SetTotal fixes the number of rows the job will process.
func (j *ETLJob) SetTotal(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return
	}
	j.total = n
	j.recompute()
}

// Transition moves the job forward to a non-terminal step.
func (j *ETLJob) Transition(to JobState) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transition(to); err != nil {
		return err
	}
	j.notify()
	return nil
}

func (j *ETLJob) transition(to JobState) error {
	if j.state.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, j.state)
	}
	if to.Terminal() {
		return fmt.Errorf("%w: use the Mark methods to finish a job", ErrInvalidTransition)
	}
	next, ok := jobStepOrder[to]
	if !ok {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, to)
	}
	if next <= jobStepOrder[j.state] {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, j.state, to)
	}
	j.appendLog("INFO", fmt.Sprintf("Etapa %s → %s", j.state, to))
	j.state = to
	return nil
}

// UpdateProgress sets the processed count and, when state is non-empty and
// differs from the current one, moves the job to it.
func (j *ETLJob) UpdateProgress(n int, state JobState) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, j.state)
	}
	if state != "" && state != j.state {
		if err := j.transition(state); err != nil {
			return err
		}
	}
	j.processed = n
	if j.total > 0 && j.processed > j.total {
		j.processed = j.total
	}
	j.recompute()
	j.notify()
	return nil
}

// RecordRow counts one finished record. Counters keep moving for rows that
// finish after a cancellation; the percentage does not.
func (j *ETLJob) RecordRow(rec *InventoryRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.processed++
	switch rec.State {
	case StateValidated:
		j.valid++
	case StateError, StateIncomplete, StateDuplicate:
		j.errored++
	}
	if len(rec.Warnings) > 0 {
		j.warned++
	}
	if !j.state.Terminal() {
		j.recompute()
		j.notify()
	}
}

// SkipRow drops one row from the total; blank rows produce no record.
func (j *ETLJob) SkipRow() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.total > 0 {
		j.total--
	}
	if !j.state.Terminal() {
		j.recompute()
	}
}

// MarkCompleted finishes the job successfully with its batch statistics.
func (j *ETLJob) MarkCompleted(stats *BatchStats) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.finish(JobCompleted); err != nil {
		return err
	}
	j.stats = stats
	j.percent = 100
	j.appendLog("INFO", fmt.Sprintf("Trabajo completado: %d registros, %d válidos, %d con error",
		j.processed, j.valid, j.errored))
	j.close()
	return nil
}

// MarkError fails the job, recording the step that failed.
func (j *ETLJob) MarkError(step string, err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if ferr := j.finish(JobError); ferr != nil {
		return ferr
	}
	j.errorDetail = fmt.Sprintf("%s: %v", step, err)
	j.appendLog("ERROR", j.errorDetail)
	j.close()
	return nil
}

// Cancel stops scheduling further rows and moves the job to CANCELLED.
// Rows already in flight still complete.
func (j *ETLJob) Cancel() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.finish(JobCancelled); err != nil {
		return err
	}
	j.appendLog("WARNING", "Trabajo cancelado")
	if j.cancel != nil {
		j.cancel()
	}
	j.close()
	return nil
}

func (j *ETLJob) finish(to JobState) error {
	if j.state.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, j.state)
	}
	j.state = to
	j.finishedAt = j.now()
	return nil
}

// close publishes the final snapshot and releases waiters.
func (j *ETLJob) close() {
	j.notify()
	for _, ch := range j.listeners {
		close(ch)
	}
	j.listeners = nil
	close(j.done)
}

// Logf appends a line to the bounded job log.
func (j *ETLJob) Logf(level, format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.appendLog(level, fmt.Sprintf(format, args...))
}

func (j *ETLJob) appendLog(level, msg string) {
	j.log = append(j.log, LogEntry{Time: j.now(), Level: level, Message: msg})
	if over := len(j.log) - MaxJobLog; over > 0 {
		j.log = append(j.log[:0:0], j.log[over:]...)
	}
}

func (j *ETLJob) recompute() {
	if j.total > 0 {
		j.percent = round2(float64(j.processed) / float64(j.total) * 100)
	}
}

// Status returns a consistent snapshot.
func (j *ETLJob) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshot()
}

func (j *ETLJob) snapshot() JobStatus {
	st := JobStatus{
		ID:          j.id,
		FileName:    j.fileName,
		FileSize:    j.fileSize,
		AuditID:     j.meta.AuditID,
		AuditCycle:  j.meta.AuditCycle,
		AuditVer:    j.meta.AuditVersion,
		State:       j.state,
		Total:       j.total,
		Processed:   j.processed,
		Valid:       j.valid,
		Errored:     j.errored,
		Warned:      j.warned,
		Percent:     j.percent,
		StartedAt:   j.startedAt,
		ErrorDetail: j.errorDetail,
		Log:         append([]LogEntry(nil), j.log...),
		Stats:       j.stats,
	}

	end := j.now()
	if !j.finishedAt.IsZero() {
		end = j.finishedAt
		fin := j.finishedAt
		st.FinishedAt = &fin
	}
	elapsed := end.Sub(j.startedAt)
	st.Elapsed = round2(elapsed.Seconds())

	switch {
	case j.state.Terminal():
		zero := 0.0
		st.Remaining = &zero
	case j.total > 0 && j.processed > 0:
		frac := float64(j.processed) / float64(j.total)
		eta := round2(elapsed.Seconds() / frac * (1 - frac))
		st.Remaining = &eta
	}
	return st
}

// Subscribe returns a channel of status snapshots. It receives the current
// status immediately and is closed when the job finishes. Slow readers miss
// intermediate updates.
func (j *ETLJob) Subscribe() <-chan JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	ch := make(chan JobStatus, 10)
	ch <- j.snapshot()
	if j.state.Terminal() {
		close(ch)
		return ch
	}
	j.listeners = append(j.listeners, ch)
	return ch
}

func (j *ETLJob) notify() {
	if len(j.listeners) == 0 {
		return
	}
	st := j.snapshot()
	for _, ch := range j.listeners {
		select {
		case ch <- st:
		default:
		}
	}
}
