package backtest

import (
	"fmt"

	"wfsweep/internal/domain"
)

// Task is one unit of work: a single fold under a single cost scenario.
// IDs are assigned once over the full task list and never renumbered.
type Task struct {
	ID            int
	Fold          domain.Fold
	ScenarioIndex int
	Scenario      domain.Scenario

	// Overrides are scenario-specific strategy parameters merged over the
	// base set.
	Overrides map[string]float64
}

// BuildTasks enumerates folds x scenarios scenario-major, so task
// s*len(folds)+f is fold f under scenario s. overrides may be nil or
// parallel to scenarios.
func BuildTasks(folds []domain.Fold, scenarios []domain.Scenario, overrides []map[string]float64) []Task {
	tasks := make([]Task, 0, len(folds)*len(scenarios))
	for si, sc := range scenarios {
		var ov map[string]float64
		if si < len(overrides) {
			ov = overrides[si]
		}
		for _, f := range folds {
			tasks = append(tasks, Task{
				ID:            len(tasks),
				Fold:          f,
				ScenarioIndex: si,
				Scenario:      sc,
				Overrides:     ov,
			})
		}
	}
	return tasks
}

// Select returns the tasks whose IDs fall in the inclusive range
// [start, end]. IDs are preserved.
func Select(tasks []Task, start, end int) ([]Task, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("invalid task range [%d, %d]", start, end)
	}
	if len(tasks) == 0 || start > tasks[len(tasks)-1].ID {
		return nil, fmt.Errorf("task range [%d, %d] outside 0..%d", start, end, len(tasks)-1)
	}
	var out []Task
	for _, t := range tasks {
		if t.ID >= start && t.ID <= end {
			out = append(out, t)
		}
	}
	return out, nil
}
