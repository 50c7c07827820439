// Package sweep wires data loading, fold partitioning, the orchestrator,
// cost adjustment, aggregation and reporting into one run.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"wfsweep/internal/aggregate"
	"wfsweep/internal/backtest"
	"wfsweep/internal/cost"
	"wfsweep/internal/data"
	"wfsweep/internal/domain"
	"wfsweep/internal/engine"
	"wfsweep/internal/fold"
	"wfsweep/internal/metrics"
	"wfsweep/internal/objective"
	"wfsweep/internal/report"
	"wfsweep/internal/store"
	"wfsweep/internal/strategy"
)

// ErrNotPrepared is returned when a run is attempted before Prepare.
var ErrNotPrepared = errors.New("sweep not prepared")

// Config describes one sweep.
type Config struct {
	Strategy    string
	BaseParams  map[string]float64
	Scenarios   []domain.Scenario
	Overrides   []map[string]float64 // parallel to Scenarios, may be nil
	Folds       int
	MinFoldSize int
	PipValue    float64
	Workers     int
	TaskTimeout time.Duration
	Deadline    time.Duration
	OutputPath  string

	// PFCap stands in for unbounded fold profit factors in the
	// significance test. Zero means aggregate.DefaultSignificanceCap.
	PFCap float64
}

// Deps are the optional collaborators of a Runner.
type Deps struct {
	Ledger  store.RunStore
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// RunOptions select what a single run covers.
type RunOptions struct {
	// RunID defaults to a random UUID.
	RunID string
	// Chunk restricts the run to an inclusive range of task ids.
	Chunk *report.Chunk
	// Progress receives non-blocking progress events. May be nil.
	Progress chan<- engine.Progress
}

// Result is the outcome of a run.
type Result struct {
	Document report.Document
	Outcome  engine.Outcome
	Stats    []aggregate.ScenarioStats
}

// Runner executes sweeps over a single, once-loaded price series.
type Runner struct {
	cfg      Config
	provider data.DataProvider
	registry *strategy.Registry
	deps     Deps
	log      *slog.Logger

	factory strategy.Factory
	series  *domain.PriceSeries
	folds   []domain.Fold
	tasks   []backtest.Task
	worker  *backtest.Worker
}

// New creates a Runner. Nothing is loaded until Prepare.
func New(cfg Config, provider data.DataProvider, registry *strategy.Registry, deps Deps) *Runner {
	if cfg.PipValue == 0 {
		cfg.PipValue = cost.DefaultPipValue
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		cfg:      cfg,
		provider: provider,
		registry: registry,
		deps:     deps,
		log:      log.With("component", "sweep", "strategy", cfg.Strategy),
	}
}

// Prepare loads the series, partitions folds and builds the full task
// list. Every error it returns is fatal for the run.
func (r *Runner) Prepare(ctx context.Context) error {
	if len(r.cfg.Scenarios) == 0 {
		return fmt.Errorf("no cost scenarios configured")
	}
	for _, sc := range r.cfg.Scenarios {
		if err := sc.Validate(); err != nil {
			return err
		}
	}
	factory, err := r.registry.MustGet(r.cfg.Strategy)
	if err != nil {
		return err
	}

	series, err := r.provider.FullSeries(ctx)
	if err != nil {
		return fmt.Errorf("loading series: %w", err)
	}
	folds, err := fold.Partition(series.Len(), r.cfg.Folds, r.cfg.MinFoldSize)
	if err != nil {
		return fmt.Errorf("partitioning %d bars: %w", series.Len(), err)
	}

	r.factory = factory
	r.series = series
	r.folds = folds
	r.tasks = backtest.BuildTasks(folds, r.cfg.Scenarios, r.cfg.Overrides)
	r.worker = backtest.NewWorker(series, factory, domain.NewParameterSet(r.cfg.BaseParams, domain.Scenario{}))

	r.log.Info("sweep prepared",
		"symbol", series.Symbol(),
		"bars", series.Len(),
		"folds", len(folds),
		"foldSize", folds[0].Len(),
		"scenarios", len(r.cfg.Scenarios),
		"tasks", len(r.tasks),
	)
	return nil
}

// Tasks returns the full task list built by Prepare.
func (r *Runner) Tasks() []backtest.Task { return r.tasks }

// Folds returns the fold partition built by Prepare.
func (r *Runner) Folds() []domain.Fold { return r.folds }

// Run executes the selected tasks on the worker pool.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (Result, error) {
	return r.run(ctx, opts, false)
}

// RunSequential executes the selected tasks one at a time on the calling
// goroutine. Results are identical to Run.
func (r *Runner) RunSequential(ctx context.Context, opts RunOptions) (Result, error) {
	return r.run(ctx, opts, true)
}

func (r *Runner) run(ctx context.Context, opts RunOptions, sequential bool) (Result, error) {
	if r.worker == nil {
		return Result{}, ErrNotPrepared
	}
	tasks := r.tasks
	if opts.Chunk != nil {
		var err error
		if tasks, err = backtest.Select(r.tasks, opts.Chunk.Start, opts.Chunk.End); err != nil {
			return Result{}, err
		}
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	if r.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Deadline)
		defer cancel()
	}

	startedAt := time.Now()
	eng := r.engine(r.worker)
	var out engine.Outcome
	if sequential {
		out = eng.RunSequential(ctx, tasks, opts.Progress)
	} else {
		out = eng.Run(ctx, tasks, opts.Progress)
	}

	adjusted := r.adjust(out)
	stats := aggregate.Aggregate(adjusted, r.cfg.Scenarios, r.aggregateOptions(out))

	doc := report.Build(report.Input{
		RunID: runID,
		Params: report.AnalysisParameters{
			Strategy:       r.cfg.Strategy,
			Symbol:         r.series.Symbol(),
			Bars:           r.series.Len(),
			BaseParameters: report.Numbers(r.cfg.BaseParams),
			Scenarios:      report.Scenarios(r.cfg.Scenarios, r.cfg.Overrides),
			Folds:          len(r.folds),
			MinFoldSize:    r.cfg.MinFoldSize,
			FoldBounds:     r.folds,
			PipValue:       report.Number(r.cfg.PipValue),
			Chunk:          opts.Chunk,
		},
		Stats:      stats,
		Summary:    taskSummary(out),
		ExecutedAt: startedAt,
		Workers:    out.Workers,
		Sequential: sequential,
		Elapsed:    out.Elapsed,
	})

	if r.cfg.OutputPath != "" {
		if err := report.WriteFile(r.cfg.OutputPath, doc); err != nil {
			return Result{}, err
		}
		r.log.Info("report written", "path", r.cfg.OutputPath, "runID", runID)
	}
	if r.deps.Ledger != nil {
		// The report is the primary artifact; a ledger failure is only logged.
		if err := r.deps.Ledger.SaveRun(context.WithoutCancel(ctx), r.runRecord(runID, startedAt, out), taskRecords(out, adjusted)); err != nil {
			r.log.Error("recording run in ledger failed", "runID", runID, "err", err)
		}
	}
	return Result{Document: doc, Outcome: out, Stats: stats}, nil
}

// Evaluate runs every fold under params and returns the statistics of
// params' scenario (the first configured scenario when params has none).
// The scenario's parameter overrides apply exactly as they do in Run. Any
// task that fails or is cancelled makes the evaluation an error, so a
// caller that memoizes results never keeps a partial sweep. It satisfies
// objective.EvalFunc.
func (r *Runner) Evaluate(ctx context.Context, params domain.ParameterSet) (objective.Metrics, error) {
	if r.worker == nil {
		return objective.Metrics{}, ErrNotPrepared
	}
	sc := params.Scenario()
	if sc.ID == "" {
		sc = r.cfg.Scenarios[0]
	}
	var overrides []map[string]float64
	if ov := r.overridesFor(sc.ID); ov != nil {
		overrides = []map[string]float64{ov}
	}

	w := backtest.NewWorker(r.series, r.factory, params)
	tasks := backtest.BuildTasks(r.folds, []domain.Scenario{sc}, overrides)
	out := r.engine(w).Run(ctx, tasks, nil)
	if out.Counts.Cancelled > 0 {
		return objective.Metrics{}, fmt.Errorf("evaluation interrupted: %w", context.Cause(ctx))
	}
	if out.Counts.Failed > 0 {
		return objective.Metrics{}, fmt.Errorf("evaluation incomplete: %d of %d tasks failed: %w",
			out.Counts.Failed, out.Counts.Total, firstFailure(out))
	}

	stats := aggregate.Aggregate(r.adjust(out), []domain.Scenario{sc}, r.aggregateOptions(out))
	if len(stats) == 0 {
		return objective.Metrics{}, nil
	}
	st := stats[0]
	return objective.Metrics{
		ProfitFactor: st.ProfitFactor,
		SharpeLike:   st.SharpeLike,
		TotalTrades:  st.TotalTrades,
		NetProfit:    st.NetProfit,
	}, nil
}

// Overrides returns the configured parameter overrides of scenario id, or
// nil when it has none.
func (r *Runner) Overrides(id domain.ScenarioID) map[string]float64 {
	return r.overridesFor(id)
}

func (r *Runner) overridesFor(id domain.ScenarioID) map[string]float64 {
	for i, sc := range r.cfg.Scenarios {
		if sc.ID == id && i < len(r.cfg.Overrides) {
			return r.cfg.Overrides[i]
		}
	}
	return nil
}

func firstFailure(out engine.Outcome) error {
	for _, o := range out.Outcomes {
		if o.Status == engine.StatusFailed {
			return o.Err
		}
	}
	return nil
}

func (r *Runner) engine(w engine.TaskRunner) *engine.Engine {
	return engine.New(w, engine.Config{Workers: r.cfg.Workers, TaskTimeout: r.cfg.TaskTimeout}, r.log, r.deps.Metrics)
}

func (r *Runner) adjust(out engine.Outcome) []domain.CostAdjustedResult {
	adjusted := make([]domain.CostAdjustedResult, 0, out.Counts.Completed)
	for _, o := range out.Outcomes {
		if o.Status == engine.StatusCompleted {
			adjusted = append(adjusted, cost.Adjust(o.Result, o.Task.Scenario, r.cfg.PipValue))
		}
	}
	return adjusted
}

func (r *Runner) aggregateOptions(out engine.Outcome) aggregate.Options {
	return aggregate.Options{Tasks: scenarioCounts(out), SignificanceCap: r.cfg.PFCap}
}

func scenarioCounts(out engine.Outcome) map[domain.ScenarioID]aggregate.TaskCounts {
	counts := make(map[domain.ScenarioID]aggregate.TaskCounts)
	for _, o := range out.Outcomes {
		c := counts[o.Task.Scenario.ID]
		c.Total++
		switch o.Status {
		case engine.StatusCompleted:
			c.Completed++
		case engine.StatusFailed:
			c.Failed++
		case engine.StatusSkipped:
			c.Skipped++
		case engine.StatusCancelled:
			c.Cancelled++
		}
		counts[o.Task.Scenario.ID] = c
	}
	return counts
}

func taskSummary(out engine.Outcome) report.TaskSummary {
	s := report.TaskSummary{
		Total:     out.Counts.Total,
		Completed: out.Counts.Completed,
		Failed:    out.Counts.Failed,
		Skipped:   out.Counts.Skipped,
		Cancelled: out.Counts.Cancelled,
	}
	for _, o := range sortedOutcomes(out) {
		if o.Status != engine.StatusFailed && o.Status != engine.StatusSkipped {
			continue
		}
		s.Failures = append(s.Failures, report.TaskRecord{
			TaskID:     o.Task.ID,
			FoldID:     o.Task.Fold.ID,
			ScenarioID: o.Task.Scenario.ID,
			Status:     string(o.Status),
			Error:      errString(o.Err),
		})
	}
	return s
}
