package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wfsweep/internal/backtest"
	"wfsweep/internal/domain"
	"wfsweep/internal/fold"
	"wfsweep/internal/strategy"
	"wfsweep/internal/strategy/builtins"
)

func testSeries(t *testing.T, n int) *domain.PriceSeries {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	for i := range bars {
		// Deterministic zig-zag so the crossover strategy trades.
		px := 1.10 + 0.01*float64(i%40-20)*float64((i/40)%2*2-1)
		bars[i] = domain.Bar{Timestamp: start.Add(time.Duration(i) * time.Hour), Open: px, High: px, Low: px, Close: px, Volume: 1}
	}
	s, err := domain.NewPriceSeries("EURUSD", bars)
	if err != nil {
		t.Fatalf("NewPriceSeries: %v", err)
	}
	return s
}

func testTasks(t *testing.T, n, k int, scenarios ...domain.Scenario) []backtest.Task {
	t.Helper()
	folds, err := fold.Partition(n, k, 10)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	return backtest.BuildTasks(folds, scenarios, nil)
}

var (
	standard = domain.Scenario{ID: "standard", Label: "standard", SpreadPips: 1.5, CommissionPips: 0.3}
	highCost = domain.Scenario{ID: "high-cost", Label: "high-cost", SpreadPips: 3.0, CommissionPips: 1.0}
)

func byTaskID(outs []TaskOutcome) map[int]TaskOutcome {
	m := make(map[int]TaskOutcome, len(outs))
	for _, o := range outs {
		m[o.Task.ID] = o
	}
	return m
}

func TestNewDefaults(t *testing.T) {
	e := New(TaskRunnerFunc(nil), Config{}, nil, nil)
	if e == nil {
		t.Fatal("New returned nil")
	}
	if e.Workers() != DefaultWorkers() {
		t.Errorf("workers = %d, want %d", e.Workers(), DefaultWorkers())
	}
	if DefaultWorkers() < 1 {
		t.Errorf("DefaultWorkers() = %d, want >= 1", DefaultWorkers())
	}
}

func TestRunDeterministicAcrossWorkerCounts(t *testing.T) {
	series := testSeries(t, 1200)
	factory, err := builtins.DefaultRegistry().MustGet("sma-cross")
	if err != nil {
		t.Fatalf("MustGet: %v", err)
	}
	w := backtest.NewWorker(series, factory, domain.NewParameterSet(map[string]float64{"fast": 5, "slow": 20}, domain.Scenario{}))
	tasks := testTasks(t, series.Len(), 5, standard, highCost)

	seq := New(w, Config{Workers: 1}, nil, nil).RunSequential(context.Background(), tasks, nil)
	if seq.Counts.Completed != len(tasks) {
		t.Fatalf("sequential completed %d of %d", seq.Counts.Completed, len(tasks))
	}
	want := byTaskID(seq.Outcomes)

	for _, workers := range []int{1, 2, 4} {
		out := New(w, Config{Workers: workers}, nil, nil).Run(context.Background(), tasks, nil)
		if out.Counts.Completed != len(tasks) {
			t.Fatalf("workers=%d: completed %d of %d", workers, out.Counts.Completed, len(tasks))
		}
		got := byTaskID(out.Outcomes)
		for id, o := range want {
			if !reflect.DeepEqual(o.Result, got[id].Result) {
				t.Errorf("workers=%d task=%d: result differs from sequential run", workers, id)
			}
		}
	}
}

func TestRunCollectsInCompletionOrder(t *testing.T) {
	tasks := testTasks(t, 100, 4, standard)
	// Later tasks finish first.
	runner := TaskRunnerFunc(func(ctx context.Context, task backtest.Task) (domain.FoldResult, error) {
		time.Sleep(time.Duration(len(tasks)-task.ID) * 20 * time.Millisecond)
		return domain.FoldResult{FoldID: task.Fold.ID, ScenarioID: task.Scenario.ID}, nil
	})

	out := New(runner, Config{Workers: len(tasks)}, nil, nil).Run(context.Background(), tasks, nil)
	if len(out.Outcomes) != len(tasks) {
		t.Fatalf("got %d outcomes, want %d", len(out.Outcomes), len(tasks))
	}
	if first, last := out.Outcomes[0].Task.ID, out.Outcomes[len(tasks)-1].Task.ID; first != len(tasks)-1 || last != 0 {
		t.Errorf("collection order: first=%d last=%d, want %d and 0", first, last, len(tasks)-1)
	}
}

func TestRunToleratesFailures(t *testing.T) {
	tasks := testTasks(t, 100, 5, standard)
	boom := errors.New("boom")
	runner := TaskRunnerFunc(func(ctx context.Context, task backtest.Task) (domain.FoldResult, error) {
		switch task.ID {
		case 1:
			return domain.FoldResult{}, boom
		case 2:
			return domain.FoldResult{}, &backtest.InsufficientWarmupError{TaskID: 2, Err: strategy.ErrInsufficientWarmup}
		}
		return domain.FoldResult{FoldID: task.Fold.ID}, nil
	})

	out := New(runner, Config{Workers: 2}, nil, nil).Run(context.Background(), tasks, nil)
	if want := (Counts{Total: 5, Completed: 3, Failed: 1, Skipped: 1}); out.Counts != want {
		t.Errorf("counts = %+v, want %+v", out.Counts, want)
	}
	if len(out.Results()) != 3 {
		t.Errorf("got %d results, want 3", len(out.Results()))
	}

	got := byTaskID(out.Outcomes)
	if got[1].Status != StatusFailed || !errors.Is(got[1].Err, boom) {
		t.Errorf("task 1: status=%s err=%v, want failed with boom", got[1].Status, got[1].Err)
	}
	if got[2].Status != StatusSkipped {
		t.Errorf("task 2: status=%s, want skipped", got[2].Status)
	}
}

func TestRunRecoversEvaluatorPanic(t *testing.T) {
	series := testSeries(t, 100)
	factory := func(domain.ParameterSet) (strategy.Evaluator, error) {
		return strategy.EvaluatorFunc(func(ctx context.Context, bars []domain.Bar) (strategy.Result, error) {
			panic("evaluator bug")
		}), nil
	}
	w := backtest.NewWorker(series, factory, domain.ParameterSet{})
	tasks := testTasks(t, series.Len(), 2, standard)

	out := New(w, Config{Workers: 2}, nil, nil).Run(context.Background(), tasks, nil)
	if out.Counts.Failed != 2 {
		t.Errorf("failed = %d, want 2", out.Counts.Failed)
	}
	var pe *backtest.PanicError
	if !errors.As(out.Outcomes[0].Err, &pe) {
		t.Errorf("error = %v, want *PanicError", out.Outcomes[0].Err)
	}
}

func TestRunTaskTimeout(t *testing.T) {
	tasks := testTasks(t, 100, 4, standard)
	release := make(chan struct{})
	defer close(release)
	runner := TaskRunnerFunc(func(ctx context.Context, task backtest.Task) (domain.FoldResult, error) {
		if task.ID == 0 {
			<-release // hangs and ignores ctx
		}
		return domain.FoldResult{FoldID: task.Fold.ID}, nil
	})

	start := time.Now()
	out := New(runner, Config{Workers: 2, TaskTimeout: 50 * time.Millisecond}, nil, nil).Run(context.Background(), tasks, nil)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run took %s", elapsed)
	}
	if out.Counts.Completed != 3 || out.Counts.Failed != 1 {
		t.Errorf("counts = %+v, want 3 completed and 1 failed", out.Counts)
	}
	if err := byTaskID(out.Outcomes)[0].Err; !errors.Is(err, ErrTaskTimeout) {
		t.Errorf("task 0 error = %v, want ErrTaskTimeout", err)
	}
}

func TestRunTimedOutTaskKeepsWorkerSlot(t *testing.T) {
	tasks := testTasks(t, 100, 4, standard)
	release := make(chan struct{})
	time.AfterFunc(150*time.Millisecond, func() { close(release) })

	var running, peak atomic.Int32
	runner := TaskRunnerFunc(func(ctx context.Context, task backtest.Task) (domain.FoldResult, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if task.ID == 0 {
			<-release // outlives its timeout
		}
		return domain.FoldResult{FoldID: task.Fold.ID}, nil
	})

	out := New(runner, Config{Workers: 1, TaskTimeout: 30 * time.Millisecond}, nil, nil).Run(context.Background(), tasks, nil)
	if out.Counts.Completed != 3 || out.Counts.Failed != 1 {
		t.Errorf("counts = %+v, want 3 completed and 1 failed", out.Counts)
	}
	if err := byTaskID(out.Outcomes)[0].Err; !errors.Is(err, ErrTaskTimeout) {
		t.Errorf("task 0 error = %v, want ErrTaskTimeout", err)
	}
	if got := peak.Load(); got != 1 {
		t.Errorf("peak concurrent evaluators = %d, want 1", got)
	}
}

func TestRunCancellationStopsDispatch(t *testing.T) {
	tasks := testTasks(t, 200, 20, standard)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu      sync.Mutex
		started []int
		calls   atomic.Int32
	)
	runner := TaskRunnerFunc(func(tctx context.Context, task backtest.Task) (domain.FoldResult, error) {
		mu.Lock()
		started = append(started, task.ID)
		mu.Unlock()
		if calls.Add(1) == 2 {
			cancel()
		}
		time.Sleep(20 * time.Millisecond)
		// In-flight tasks are not cancelled with the run.
		if tctx.Err() != nil {
			return domain.FoldResult{}, tctx.Err()
		}
		return domain.FoldResult{FoldID: task.Fold.ID}, nil
	})

	out := New(runner, Config{Workers: 2}, nil, nil).Run(ctx, tasks, nil)

	mu.Lock()
	n := len(started)
	mu.Unlock()
	if n > 3 {
		t.Errorf("%d tasks dispatched, want at most 3", n)
	}
	if out.Counts.Completed != n || out.Counts.Cancelled != len(tasks)-n {
		t.Errorf("counts = %+v, want %d completed and %d cancelled", out.Counts, n, len(tasks)-n)
	}
	if len(out.Results()) != n {
		t.Errorf("got %d results, want %d", len(out.Results()), n)
	}
	if st := out.Outcomes[len(out.Outcomes)-1].Status; st != StatusCancelled {
		t.Errorf("last outcome status = %s, want cancelled", st)
	}
}

func TestRunSequentialCancelled(t *testing.T) {
	tasks := testTasks(t, 100, 5, standard)
	ctx, cancel := context.WithCancel(context.Background())
	runner := TaskRunnerFunc(func(ctx context.Context, task backtest.Task) (domain.FoldResult, error) {
		if task.ID == 1 {
			cancel()
		}
		return domain.FoldResult{FoldID: task.Fold.ID}, nil
	})

	out := New(runner, Config{}, nil, nil).RunSequential(ctx, tasks, nil)
	if want := (Counts{Total: 5, Completed: 2, Cancelled: 3}); out.Counts != want {
		t.Errorf("counts = %+v, want %+v", out.Counts, want)
	}
	ids := make([]int, 0, len(out.Outcomes))
	for _, o := range out.Outcomes {
		ids = append(ids, o.Task.ID)
	}
	if !sort.IntsAreSorted(ids) {
		t.Errorf("sequential outcomes out of order: %v", ids)
	}
}

func TestProgressEvents(t *testing.T) {
	tasks := testTasks(t, 100, 5, standard)
	runner := TaskRunnerFunc(func(ctx context.Context, task backtest.Task) (domain.FoldResult, error) {
		if task.ID == 3 {
			return domain.FoldResult{}, fmt.Errorf("fold %d: bad data", task.Fold.ID)
		}
		return domain.FoldResult{}, nil
	})

	progress := make(chan Progress, len(tasks))
	New(runner, Config{Workers: 1}, nil, nil).RunSequential(context.Background(), tasks, progress)
	close(progress)

	var last Progress
	n := 0
	for p := range progress {
		if p.Total != len(tasks) || p.Done() != n+1 {
			t.Errorf("event %d: total=%d done=%d", n, p.Total, p.Done())
		}
		last = p
		n++
	}
	if n != len(tasks) {
		t.Errorf("got %d events, want %d", n, len(tasks))
	}
	if last.Completed != 4 || last.Failed != 1 || last.ETA != 0 {
		t.Errorf("last event = %+v, want 4 completed, 1 failed, zero ETA", last)
	}
}

func TestProgressDoesNotBlock(t *testing.T) {
	tasks := testTasks(t, 100, 5, standard)
	runner := TaskRunnerFunc(func(ctx context.Context, task backtest.Task) (domain.FoldResult, error) {
		return domain.FoldResult{}, nil
	})

	progress := make(chan Progress) // never read
	done := make(chan Outcome, 1)
	go func() { done <- New(runner, Config{Workers: 2}, nil, nil).Run(context.Background(), tasks, progress) }()

	select {
	case out := <-done:
		if out.Counts.Completed != 5 {
			t.Errorf("completed = %d, want 5", out.Counts.Completed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run blocked on an unread progress channel")
	}
}
