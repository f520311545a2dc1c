package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/openalex-client/pkg/logging"
	"github.com/Sternrassler/openalex-client/pkg/pagination"
	"github.com/Sternrassler/openalex-client/pkg/query"
)

// ErrCancelled marks outcomes of tasks that did not finish because the run
// was cancelled.
var ErrCancelled = errors.New("batch task cancelled")

// Task is one unit of concurrent work.
type Task struct {
	// Index orders the task within its group.
	Index int

	// Spec is the query the task retrieves.
	Spec query.Spec

	// Limit caps the records the task retrieves; pagination.NoLimit for all.
	Limit int
}

// Outcome is the result of one Task: records on success, Err on failure.
type Outcome struct {
	Index    int
	Records  []pagination.Record
	Err      error
	Duration time.Duration
}

// Failed reports whether the task failed or was cancelled.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Cancelled reports whether the task was cut short by cancellation.
func (o Outcome) Cancelled() bool {
	return errors.Is(o.Err, ErrCancelled)
}

// RunFunc performs the work of one task. It runs while the task holds a
// limiter permit.
type RunFunc func(ctx context.Context, bc Context, task Task) ([]pagination.Record, error)

// ProgressFunc receives the number of completed tasks after each completion.
type ProgressFunc func(completed, total int)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithProgress attaches a progress reporter.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Scheduler) { s.progress = fn }
}

// WithRunID sets the run id passed to tasks and logged with every line.
func WithRunID(id string) Option {
	return func(s *Scheduler) { s.runID = id }
}

// Scheduler runs tasks concurrently under a shared Limiter.
type Scheduler struct {
	limiter  *Limiter
	progress ProgressFunc
	runID    string
	logger   zerolog.Logger
}

// NewScheduler creates a scheduler drawing permits from limiter. A nil
// limiter gets a private one with DefaultConcurrency permits.
func NewScheduler(limiter *Limiter, opts ...Option) *Scheduler {
	if limiter == nil {
		limiter = NewLimiter(DefaultConcurrency)
	}
	s := &Scheduler{limiter: limiter}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.RunLogger("batch", s.runID)
	return s
}

// Run executes every task and returns one Outcome per task, in task order.
// Failures are captured per task. When ctx is cancelled, tasks not yet
// finished resolve to outcomes wrapping ErrCancelled and finished outcomes
// are kept.
func (s *Scheduler) Run(ctx context.Context, tasks []Task, run RunFunc) []Outcome {
	outcomes := make([]Outcome, len(tasks))
	if len(tasks) == 0 {
		return outcomes
	}

	start := time.Now()
	s.logger.Debug().
		Int("tasks", len(tasks)).
		Int("concurrency", s.limiter.Size()).
		Msg("Starting batch run")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)

	for i, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			outcome := s.runTask(ctx, i, len(tasks), task, run)
			outcomes[i] = outcome

			mu.Lock()
			completed++
			done := completed
			if s.progress != nil {
				s.progress(done, len(tasks))
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	var failed, cancelled int
	for _, o := range outcomes {
		switch {
		case o.Cancelled():
			cancelled++
		case o.Failed():
			failed++
		}
	}
	s.logger.Debug().
		Int("tasks", len(tasks)).
		Int("failed", failed).
		Int("cancelled", cancelled).
		Dur("duration", time.Since(start)).
		Msg("Batch run complete")

	return outcomes
}

func (s *Scheduler) runTask(ctx context.Context, i, total int, task Task, run RunFunc) Outcome {
	outcome := Outcome{Index: task.Index}

	if err := s.limiter.Acquire(ctx); err != nil {
		outcome.Err = cancelled(ctx, err)
		openalexBatchTasksTotal.WithLabelValues("cancelled").Inc()
		return outcome
	}
	defer s.limiter.Release()

	start := time.Now()
	bc := Context{RunID: s.runID, Index: i, Total: total}
	records, err := run(ctx, bc, task)
	outcome.Duration = time.Since(start)
	openalexBatchTaskDuration.Observe(outcome.Duration.Seconds())

	switch {
	case err == nil:
		outcome.Records = records
		openalexBatchTasksTotal.WithLabelValues("success").Inc()
	case ctx.Err() != nil:
		outcome.Err = cancelled(ctx, err)
		openalexBatchTasksTotal.WithLabelValues("cancelled").Inc()
	default:
		outcome.Err = err
		openalexBatchTasksTotal.WithLabelValues("failure").Inc()
		s.logger.Debug().
			Err(err).
			Int("batch_index", task.Index).
			Dur("duration", outcome.Duration).
			Msg("Batch task failed")
	}
	return outcome
}

func cancelled(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil && !errors.Is(err, cause) {
		return fmt.Errorf("%w: %w: %w", ErrCancelled, cause, err)
	}
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}
