// Package engine fans (fold, scenario) tasks out across a bounded pool of
// workers and collects their outcomes in completion order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"wfsweep/internal/backtest"
	"wfsweep/internal/domain"
	"wfsweep/internal/metrics"
)

// ErrTaskTimeout marks a task that exceeded its per-task time budget.
var ErrTaskTimeout = errors.New("task timed out")

// TaskRunner executes one task. *backtest.Worker is the production runner.
type TaskRunner interface {
	Run(ctx context.Context, task backtest.Task) (domain.FoldResult, error)
}

var _ TaskRunner = (*backtest.Worker)(nil)

// TaskRunnerFunc adapts a function to TaskRunner.
type TaskRunnerFunc func(ctx context.Context, task backtest.Task) (domain.FoldResult, error)

// Run implements TaskRunner.
func (f TaskRunnerFunc) Run(ctx context.Context, task backtest.Task) (domain.FoldResult, error) {
	return f(ctx, task)
}

// Status is the final state of a task.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// TaskOutcome is the record of one task. Result is only meaningful when
// Status is StatusCompleted.
type TaskOutcome struct {
	Task     backtest.Task
	Status   Status
	Result   domain.FoldResult
	Err      error
	Duration time.Duration
}

// Counts tallies outcomes by status.
type Counts struct {
	Total     int
	Completed int
	Failed    int
	Skipped   int
	Cancelled int
}

// Outcome is everything a run produced. Outcomes are in completion order;
// undispatched tasks are appended last with StatusCancelled.
type Outcome struct {
	Outcomes []TaskOutcome
	Counts   Counts
	Workers  int
	Elapsed  time.Duration
}

// Results returns the fold results of completed tasks.
func (o Outcome) Results() []domain.FoldResult {
	out := make([]domain.FoldResult, 0, o.Counts.Completed)
	for _, to := range o.Outcomes {
		if to.Status == StatusCompleted {
			out = append(out, to.Result)
		}
	}
	return out
}

// Config controls pool size and per-task limits.
type Config struct {
	// Workers is the pool size. Zero or less selects DefaultWorkers.
	Workers int
	// TaskTimeout bounds a single task. Zero disables the limit.
	TaskTimeout time.Duration
}

// DefaultWorkers returns one less than the available parallelism, at least 1.
func DefaultWorkers() int {
	return max(1, runtime.NumCPU()-1)
}

// Engine runs task lists against a TaskRunner.
type Engine struct {
	runner  TaskRunner
	workers int
	timeout time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New creates an Engine. m may be nil.
func New(runner TaskRunner, cfg Config, log *slog.Logger, m *metrics.Metrics) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		runner:  runner,
		workers: workers,
		timeout: cfg.TaskTimeout,
		log:     log.With("component", "engine"),
		metrics: m,
	}
}

// Workers returns the pool size.
func (e *Engine) Workers() int { return e.workers }

// Run executes tasks on the worker pool. Once ctx is done no further task is
// dispatched; tasks already running finish and their outcomes are kept.
// Progress events are sent without blocking and may be dropped. The caller
// owns progress and may pass nil.
func (e *Engine) Run(ctx context.Context, tasks []backtest.Task, progress chan<- Progress) Outcome {
	col := newCollector(len(tasks), e.workers, progress)
	e.log.Info("sweep starting", "tasks", len(tasks), "workers", e.workers)

	results := make(chan TaskOutcome, e.workers)
	dispatched := 0

	go func() {
		defer close(results)
		sem := make(chan struct{}, e.workers)
		var g errgroup.Group
	dispatch:
		for _, t := range tasks {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				break dispatch
			}
			if ctx.Err() != nil {
				<-sem
				break
			}
			dispatched++
			g.Go(func() error {
				results <- e.runTask(ctx, t, func() { <-sem })
				return nil
			})
		}
		_ = g.Wait()
	}()

	for o := range results {
		col.add(o)
	}

	// dispatched is final once results is closed.
	for _, t := range tasks[dispatched:] {
		e.metrics.TaskCancelled()
		col.add(TaskOutcome{Task: t, Status: StatusCancelled, Err: context.Cause(ctx)})
	}
	return e.finish(col)
}

// RunSequential executes tasks one at a time on the calling goroutine using
// the same task routine as Run.
func (e *Engine) RunSequential(ctx context.Context, tasks []backtest.Task, progress chan<- Progress) Outcome {
	col := newCollector(len(tasks), 1, progress)
	e.log.Info("sequential sweep starting", "tasks", len(tasks))

	sem := make(chan struct{}, 1)
	for i, t := range tasks {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			for _, rest := range tasks[i:] {
				e.metrics.TaskCancelled()
				col.add(TaskOutcome{Task: rest, Status: StatusCancelled, Err: context.Cause(ctx)})
			}
			break
		}
		col.add(e.runTask(ctx, t, func() { <-sem }))
	}
	return e.finish(col)
}

func (e *Engine) finish(col *collector) Outcome {
	out := col.outcome()
	e.log.Info("sweep done",
		"completed", out.Counts.Completed,
		"failed", out.Counts.Failed,
		"skipped", out.Counts.Skipped,
		"cancelled", out.Counts.Cancelled,
		"elapsed", out.Elapsed.Round(time.Millisecond),
	)
	return out
}

// runTask executes one task under its own timeout. The task context is
// detached from run cancellation so an in-flight task always finishes.
// release is called once the runner returns, which for a timed-out task is
// after runTask itself has returned; the worker slot stays taken until then.
func (e *Engine) runTask(ctx context.Context, t backtest.Task, release func()) TaskOutcome {
	e.metrics.TaskStarted()
	start := time.Now()

	tctx := context.WithoutCancel(ctx)
	if e.timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(tctx, e.timeout)
		defer cancel()
	}

	type result struct {
		res domain.FoldResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			e.metrics.TaskReleased()
			release()
		}()
		res, err := e.runner.Run(tctx, t)
		done <- result{res, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-tctx.Done():
		r.err = fmt.Errorf("task %d after %s: %w", t.ID, e.timeout, ErrTaskTimeout)
	}

	o := TaskOutcome{Task: t, Result: r.res, Err: r.err, Duration: time.Since(start)}
	var warmup *backtest.InsufficientWarmupError
	switch {
	case r.err == nil:
		o.Status = StatusCompleted
	case errors.As(r.err, &warmup):
		o.Status = StatusSkipped
		o.Result = domain.FoldResult{}
		e.log.Debug("task skipped", "task", t.ID, "fold", t.Fold.ID, "scenario", t.Scenario.ID, "err", r.err)
	default:
		o.Status = StatusFailed
		o.Result = domain.FoldResult{}
		e.log.Warn("task failed", "task", t.ID, "fold", t.Fold.ID, "scenario", t.Scenario.ID, "err", r.err)
	}
	e.metrics.TaskFinished(string(o.Status), o.Duration)
	return o
}
