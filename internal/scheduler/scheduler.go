// Package scheduler runs deferred and repeating jobs on a coarse
// polling loop.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// pollInterval bounds firing precision. Jobs fire on the first tick at
// or after their due time.
const pollInterval = 100 * time.Millisecond

// JobFunc is the callback a job runs when it fires.
type JobFunc func(ctx context.Context)

type job struct {
	fn     JobFunc
	due    time.Time
	repeat time.Duration // zero for one-shot jobs
}

// Scheduler fires jobs from a single polling goroutine. Callbacks run
// sequentially in that goroutine; a slow callback delays later jobs
// rather than overlapping them.
type Scheduler struct {
	logger *slog.Logger

	mu   sync.Mutex
	jobs []*job
}

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger.With("component", "scheduler")}
}

// Add schedules fn to run after delay. A non-zero repeat reschedules
// it that long after each firing, anchored to the firing time. A zero
// delay fires on the next tick.
func (s *Scheduler) Add(fn JobFunc, delay, repeat time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &job{
		fn:     fn,
		due:    time.Now().Add(delay),
		repeat: repeat,
	})
	s.logger.Debug("job added", "delay", delay, "repeat", repeat, "jobs", len(s.jobs))
}

// Delete removes the job at the given position. It reports false when
// the position is out of range.
func (s *Scheduler) Delete(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.jobs) {
		return false
	}
	s.jobs = append(s.jobs[:index], s.jobs[index+1:]...)
	s.logger.Debug("job deleted", "index", index, "jobs", len(s.jobs))
	return true
}

// Len reports the number of pending jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Run polls until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler running", "interval", pollInterval)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// tick fires every due job once. The job list is snapshotted first so
// callbacks may add or delete jobs without upsetting the iteration; a
// job added during a tick waits for the next one.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	snapshot := make([]*job, len(s.jobs))
	copy(snapshot, s.jobs)
	s.mu.Unlock()

	for _, j := range snapshot {
		if j.due.After(now) {
			continue
		}
		s.fire(ctx, j)

		// A fired job is always removed; a repeating one re-enters as a
		// fresh entry at the end of the list, anchored to the firing
		// time.
		s.mu.Lock()
		if s.remove(j) && j.repeat > 0 {
			s.jobs = append(s.jobs, &job{
				fn:     j.fn,
				due:    time.Now().Add(j.repeat),
				repeat: j.repeat,
			})
		}
		s.mu.Unlock()
	}
}

// remove drops a job by identity and reports whether it was still
// present. Callers hold the lock. The job may already be gone when a
// callback deleted it; a repeating job removed that way must not be
// re-added.
func (s *Scheduler) remove(target *job) bool {
	for i, j := range s.jobs {
		if j == target {
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			return true
		}
	}
	return false
}

// fire runs one callback, containing panics so a broken job cannot
// take the polling loop down.
func (s *Scheduler) fire(ctx context.Context, j *job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "panic", r)
		}
	}()
	j.fn(ctx)
}
