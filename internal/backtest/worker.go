// Package backtest runs a single (fold, scenario) task in isolation. Every
// execution path in the sweep, sequential or parallel, goes through
// Worker.Run so results never depend on scheduling.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"

	"wfsweep/internal/domain"
	"wfsweep/internal/strategy"
)

// InsufficientWarmupError marks a task skipped because its fold slice was
// too short for the evaluator. It is not a failure.
type InsufficientWarmupError struct {
	TaskID int
	FoldID int
	Bars   int
	Err    error
}

func (e *InsufficientWarmupError) Error() string {
	return fmt.Sprintf("task %d (fold %d, %d bars): %v", e.TaskID, e.FoldID, e.Bars, e.Err)
}

func (e *InsufficientWarmupError) Unwrap() error { return e.Err }

// ErrInvalidTrade is wrapped by errors describing malformed evaluator output.
var ErrInvalidTrade = errors.New("invalid trade")

// PanicError carries a recovered evaluator panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("evaluator panic: %v", e.Value) }

// Worker executes tasks against a shared, read-only price series. It holds
// no mutable state, so one Worker may serve any number of goroutines.
type Worker struct {
	series  *domain.PriceSeries
	factory strategy.Factory
	base    domain.ParameterSet
}

// NewWorker creates a Worker. base is deep-copied.
func NewWorker(series *domain.PriceSeries, factory strategy.Factory, base domain.ParameterSet) *Worker {
	return &Worker{
		series:  series,
		factory: factory,
		base:    base.Clone(),
	}
}

// Params returns the merged parameter set a task runs with.
func (w *Worker) Params(task Task) domain.ParameterSet {
	return w.base.With(task.Overrides).WithScenario(task.Scenario)
}

// Run evaluates one task. A fresh evaluator is built for every call from a
// private copy of the parameters.
func (w *Worker) Run(ctx context.Context, task Task) (res domain.FoldResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = domain.FoldResult{}
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	if err := ctx.Err(); err != nil {
		return domain.FoldResult{}, err
	}

	ev, err := w.factory(w.Params(task))
	if err != nil {
		return domain.FoldResult{}, fmt.Errorf("building evaluator: %w", err)
	}

	bars := w.series.Slice(task.Fold.Start, task.Fold.End)
	out, err := ev.Evaluate(ctx, bars)
	if err != nil {
		if errors.Is(err, strategy.ErrInsufficientWarmup) {
			return domain.FoldResult{}, &InsufficientWarmupError{
				TaskID: task.ID, FoldID: task.Fold.ID, Bars: len(bars), Err: err,
			}
		}
		return domain.FoldResult{}, fmt.Errorf("evaluating fold %d: %w", task.Fold.ID, err)
	}

	trades := make([]domain.Trade, len(out.Trades))
	copy(trades, out.Trades)

	var total float64
	for i, t := range trades {
		if err := validateTrade(i, t); err != nil {
			return domain.FoldResult{}, err
		}
		total += t.RawPnL
	}

	return domain.FoldResult{
		FoldID:        task.Fold.ID,
		ScenarioID:    task.Scenario.ID,
		ScenarioLabel: task.Scenario.Label,
		Trades:        trades,
		RawPnLTotal:   total,
	}, nil
}

func validateTrade(i int, t domain.Trade) error {
	switch {
	case t.Ordinal != i:
		return fmt.Errorf("%w: trade %d has ordinal %d", ErrInvalidTrade, i, t.Ordinal)
	case t.Volume <= 0 || math.IsNaN(t.Volume) || math.IsInf(t.Volume, 0):
		return fmt.Errorf("%w: trade %d volume %g", ErrInvalidTrade, i, t.Volume)
	case !finite(t.EntryPrice) || !finite(t.ExitPrice) || !finite(t.RawPnL):
		return fmt.Errorf("%w: trade %d has non-finite price or pnl", ErrInvalidTrade, i)
	case t.Direction != domain.DirectionLong && t.Direction != domain.DirectionShort:
		return fmt.Errorf("%w: trade %d direction %q", ErrInvalidTrade, i, t.Direction)
	}
	return nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
