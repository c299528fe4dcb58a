package core

// job_limiter.go caps how many ETL jobs run at once.
//
// A job waits up to maxWait for a slot and then fails with ErrTooManyJobs.
// WaitForDrain blocks shutdown until running jobs have released their slots.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTooManyJobs is returned when no job slot frees up within the wait time.
var ErrTooManyJobs = errors.New("too many concurrent jobs, please try again later")

// DefaultMaxConcurrentJobs is the default number of parallel jobs.
const DefaultMaxConcurrentJobs = 4

// DefaultMaxWaitTime is how long a job waits for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// JobLimiter is a weighted semaphore with an occupancy counter.
type JobLimiter struct {
	sem     *semaphore.Weighted
	max     int
	maxWait time.Duration
	active  atomic.Int64
}

// NewJobLimiter allows at most maxConcurrent jobs. Non-positive arguments
// take the defaults.
func NewJobLimiter(maxConcurrent int, maxWait time.Duration) *JobLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentJobs
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &JobLimiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		max:     maxConcurrent,
		maxWait: maxWait,
	}
}

// Acquire waits for a slot. It returns ctx.Err() when ctx ends first and
// ErrTooManyJobs when the wait time runs out. Every nil return must be
// paired with Release.
func (l *JobLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyJobs
	}
	l.active.Add(1)
	return nil
}

// TryAcquire takes a slot only if one is free right now.
func (l *JobLimiter) TryAcquire() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.active.Add(1)
	return true
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *JobLimiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// Active is the number of held slots.
func (l *JobLimiter) Active() int {
	return int(l.active.Load())
}

// MaxConcurrent is the slot count.
func (l *JobLimiter) MaxConcurrent() int {
	return l.max
}

// WaitForDrain blocks until every slot is free or ctx ends. It takes all
// slots, so new jobs wait while it holds them.
func (l *JobLimiter) WaitForDrain(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, int64(l.max)); err != nil {
		return err
	}
	l.sem.Release(int64(l.max))
	return nil
}

// JobLimiterStatus is a snapshot for health endpoints.
type JobLimiterStatus struct {
	Active        int `json:"activos"`
	Available     int `json:"disponibles"`
	MaxConcurrent int `json:"maximo"`
}

// Status returns the current occupancy.
func (l *JobLimiter) Status() JobLimiterStatus {
	active := l.Active()
	return JobLimiterStatus{
		Active:        active,
		Available:     l.max - active,
		MaxConcurrent: l.max,
	}
}
