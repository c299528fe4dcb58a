package core

import "time"

// Metrics receives pipeline counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	JobStarted()
	JobFinished(state JobState, d time.Duration)
	RowProcessed(state RecordState)
	ErrorRecorded(t ErrorType, s Severity)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) JobStarted() {}
func (NopMetrics) JobFinished(JobState, time.Duration) {}
func (NopMetrics) RowProcessed(RecordState) {}
func (NopMetrics) ErrorRecorded(ErrorType, Severity) {}
