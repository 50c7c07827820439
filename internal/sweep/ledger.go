package sweep

import (
	"sort"
	"time"

	"wfsweep/internal/domain"
	"wfsweep/internal/engine"
	"wfsweep/internal/store"
)

func (r *Runner) runRecord(runID string, startedAt time.Time, out engine.Outcome) store.RunRecord {
	return store.RunRecord{
		ID:          runID,
		StartedAt:   startedAt.UTC(),
		Strategy:    r.cfg.Strategy,
		Symbol:      r.series.Symbol(),
		Folds:       len(r.folds),
		Scenarios:   len(r.cfg.Scenarios),
		Workers:     out.Workers,
		Total:       out.Counts.Total,
		Completed:   out.Counts.Completed,
		Failed:      out.Counts.Failed,
		Skipped:     out.Counts.Skipped,
		Cancelled:   out.Counts.Cancelled,
		WallSeconds: out.Elapsed.Seconds(),
		ReportPath:  r.cfg.OutputPath,
	}
}

func taskRecords(out engine.Outcome, adjusted []domain.CostAdjustedResult) []store.TaskRecord {
	type key struct {
		fold     int
		scenario domain.ScenarioID
	}
	adj := make(map[key]float64, len(adjusted))
	for _, a := range adjusted {
		adj[key{a.FoldID, a.ScenarioID}] = a.AdjustedPnLTotal
	}

	recs := make([]store.TaskRecord, 0, len(out.Outcomes))
	for _, o := range sortedOutcomes(out) {
		recs = append(recs, store.TaskRecord{
			TaskID:      o.Task.ID,
			FoldID:      o.Task.Fold.ID,
			ScenarioID:  string(o.Task.Scenario.ID),
			Status:      string(o.Status),
			Error:       errString(o.Err),
			Trades:      len(o.Result.Trades),
			RawPnL:      o.Result.RawPnLTotal,
			AdjustedPnL: adj[key{o.Task.Fold.ID, o.Task.Scenario.ID}],
			DurationMS:  o.Duration.Milliseconds(),
		})
	}
	return recs
}

// sortedOutcomes returns the outcomes ordered by task id.
func sortedOutcomes(out engine.Outcome) []engine.TaskOutcome {
	sorted := make([]engine.TaskOutcome, len(out.Outcomes))
	copy(sorted, out.Outcomes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Task.ID < sorted[j].Task.ID })
	return sorted
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
