// Package report builds and writes the sensitivity report artifact. Field
// names and nesting are part of the file format and must stay stable.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"wfsweep/internal/aggregate"
	"wfsweep/internal/domain"
)

// Document is the top-level JSON artifact.
type Document struct {
	RunID               string             `json:"run_id"`
	AnalysisParameters  AnalysisParameters `json:"analysis_parameters"`
	SensitivityAnalysis []ScenarioAnalysis `json:"sensitivity_analysis"`
	SensitivityReport   []ScenarioReport   `json:"sensitivity_report"`
	TaskSummary         TaskSummary        `json:"task_summary"`
	ExecutionTime       string             `json:"execution_time"`
	PerformanceInfo     PerformanceInfo    `json:"performance_info"`
}

// AnalysisParameters echoes the run inputs. Scenarios lists every
// configured scenario, even when a chunk ran only some of them.
type AnalysisParameters struct {
	Strategy       string            `json:"strategy"`
	Symbol         string            `json:"symbol"`
	Bars           int               `json:"bars"`
	BaseParameters map[string]Number `json:"base_parameters"`
	Scenarios      []ScenarioDef     `json:"scenarios"`
	Folds          int               `json:"folds"`
	MinFoldSize    int               `json:"min_fold_size"`
	FoldBounds     []domain.Fold     `json:"fold_bounds"`
	PipValue       Number            `json:"pip_value"`
	Chunk          *Chunk            `json:"chunk,omitempty"`
}

// ScenarioDef is a configured cost scenario.
type ScenarioDef struct {
	ID             domain.ScenarioID `json:"id"`
	Label          string            `json:"label"`
	SpreadPips     Number            `json:"spread_pips"`
	CommissionPips Number            `json:"commission_pips"`
	Params         map[string]Number `json:"params,omitempty"`
}

// Chunk is the inclusive task-id range a run was restricted to.
type Chunk struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ScenarioAnalysis holds the per-fold results of one scenario.
type ScenarioAnalysis struct {
	ScenarioID domain.ScenarioID `json:"scenario_id"`
	Label      string            `json:"label"`
	Folds      []FoldEntry       `json:"folds"`
}

// FoldEntry is one completed (fold, scenario) task.
type FoldEntry struct {
	FoldID       int    `json:"fold_id"`
	StartIndex   int    `json:"start_index"`
	EndIndex     int    `json:"end_index"`
	Trades       int    `json:"trades"`
	RawPnL       Number `json:"raw_pnl"`
	AdjustedPnL  Number `json:"adjusted_pnl"`
	ProfitFactor Number `json:"profit_factor"`
}

// ScenarioReport is the aggregate for one scenario.
type ScenarioReport struct {
	ScenarioID           domain.ScenarioID    `json:"scenario_id"`
	Label                string               `json:"label"`
	SpreadPips           Number               `json:"spread_pips"`
	CommissionPips       Number               `json:"commission_pips"`
	TotalCostPips        Number               `json:"total_cost_pips"`
	Tasks                aggregate.TaskCounts `json:"tasks"`
	Folds                int                  `json:"folds"`
	TotalTrades          int                  `json:"total_trades"`
	Wins                 int                  `json:"wins"`
	Losses               int                  `json:"losses"`
	WinRate              Number               `json:"win_rate"`
	GrossProfit          Number               `json:"gross_profit"`
	GrossLoss            Number               `json:"gross_loss"`
	NetProfit            Number               `json:"net_profit"`
	RawNetProfit         Number               `json:"raw_net_profit"`
	ProfitFactor         Number               `json:"profit_factor"`
	RawProfitFactor      Number               `json:"raw_profit_factor"`
	AvgTrade             Number               `json:"avg_trade"`
	SharpeLike           Number               `json:"sharpe_like"`
	MaxConsecutiveLosses int                  `json:"max_consecutive_losses"`
	Significance         Significance         `json:"significance"`
}

// Significance is the one-sided t-test of mean fold profit factor > 1.
type Significance struct {
	Samples           int      `json:"samples"`
	PValue            Number   `json:"p_value"`
	FoldProfitFactors []Number `json:"fold_profit_factors"`
}

// TaskSummary counts task outcomes and lists the ones that did not complete.
type TaskSummary struct {
	Total     int          `json:"total"`
	Completed int          `json:"completed"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Cancelled int          `json:"cancelled"`
	Failures  []TaskRecord `json:"failures"`
}

// TaskRecord describes a failed or skipped task.
type TaskRecord struct {
	TaskID     int               `json:"task_id"`
	FoldID     int               `json:"fold_id"`
	ScenarioID domain.ScenarioID `json:"scenario_id"`
	Status     string            `json:"status"`
	Error      string            `json:"error"`
}

// PerformanceInfo describes how the run executed. It is the only section
// that legitimately differs between otherwise identical runs.
type PerformanceInfo struct {
	Workers          int    `json:"workers"`
	Sequential       bool   `json:"sequential"`
	WallClockSeconds Number `json:"wall_clock_seconds"`
	TasksPerSecond   Number `json:"tasks_per_second"`
}

// Input carries everything Build needs.
type Input struct {
	RunID      string
	Params     AnalysisParameters
	Stats      []aggregate.ScenarioStats
	Summary    TaskSummary
	ExecutedAt time.Time
	Workers    int
	Sequential bool
	Elapsed    time.Duration
}

// Build assembles the document. Scenario sections follow the order of
// in.Stats.
func Build(in Input) Document {
	bounds := make(map[int]domain.Fold, len(in.Params.FoldBounds))
	for _, f := range in.Params.FoldBounds {
		bounds[f.ID] = f
	}

	doc := Document{
		RunID:               in.RunID,
		AnalysisParameters:  in.Params,
		SensitivityAnalysis: make([]ScenarioAnalysis, 0, len(in.Stats)),
		SensitivityReport:   make([]ScenarioReport, 0, len(in.Stats)),
		TaskSummary:         in.Summary,
		ExecutionTime:       in.ExecutedAt.UTC().Format(time.RFC3339),
		PerformanceInfo: PerformanceInfo{
			Workers:          in.Workers,
			Sequential:       in.Sequential,
			WallClockSeconds: Number(in.Elapsed.Seconds()),
		},
	}
	if doc.TaskSummary.Failures == nil {
		doc.TaskSummary.Failures = []TaskRecord{}
	}
	if s := in.Elapsed.Seconds(); s > 0 {
		doc.PerformanceInfo.TasksPerSecond = Number(float64(in.Summary.Completed) / s)
	}

	for _, st := range in.Stats {
		sa := ScenarioAnalysis{ScenarioID: st.Scenario.ID, Label: st.Scenario.Label, Folds: make([]FoldEntry, 0, len(st.Results))}
		for _, r := range st.Results {
			var profit, loss float64
			for _, p := range r.AdjustedPnL {
				if p > 0 {
					profit += p
				} else {
					loss -= p
				}
			}
			f := bounds[r.FoldID]
			sa.Folds = append(sa.Folds, FoldEntry{
				FoldID:       r.FoldID,
				StartIndex:   f.Start,
				EndIndex:     f.End,
				Trades:       len(r.Trades),
				RawPnL:       Number(r.RawPnLTotal),
				AdjustedPnL:  Number(r.AdjustedPnLTotal),
				ProfitFactor: Number(aggregate.ProfitFactor(profit, loss)),
			})
		}
		doc.SensitivityAnalysis = append(doc.SensitivityAnalysis, sa)

		pfs := make([]Number, len(st.FoldProfitFactors))
		for i, v := range st.FoldProfitFactors {
			pfs[i] = Number(v)
		}
		doc.SensitivityReport = append(doc.SensitivityReport, ScenarioReport{
			ScenarioID:           st.Scenario.ID,
			Label:                st.Scenario.Label,
			SpreadPips:           Number(st.Scenario.SpreadPips),
			CommissionPips:       Number(st.Scenario.CommissionPips),
			TotalCostPips:        Number(st.Scenario.CostPips()),
			Tasks:                st.Tasks,
			Folds:                st.Folds,
			TotalTrades:          st.TotalTrades,
			Wins:                 st.Wins,
			Losses:               st.Losses,
			WinRate:              Number(st.WinRate),
			GrossProfit:          Number(st.GrossProfit),
			GrossLoss:            Number(st.GrossLoss),
			NetProfit:            Number(st.NetProfit),
			RawNetProfit:         Number(st.RawNetProfit),
			ProfitFactor:         Number(st.ProfitFactor),
			RawProfitFactor:      Number(st.RawProfitFactor),
			AvgTrade:             Number(st.AvgTrade),
			SharpeLike:           Number(st.SharpeLike),
			MaxConsecutiveLosses: st.MaxConsecutiveLosses,
			Significance: Significance{
				Samples:           st.SignificanceSamples,
				PValue:            Number(st.PValue),
				FoldProfitFactors: pfs,
			},
		})
	}
	return doc
}

// Scenarios converts configured scenarios for AnalysisParameters.
// overrides may be nil or parallel to scenarios.
func Scenarios(scenarios []domain.Scenario, overrides []map[string]float64) []ScenarioDef {
	out := make([]ScenarioDef, len(scenarios))
	for i, sc := range scenarios {
		out[i] = ScenarioDef{
			ID:             sc.ID,
			Label:          sc.Label,
			SpreadPips:     Number(sc.SpreadPips),
			CommissionPips: Number(sc.CommissionPips),
		}
		if i < len(overrides) {
			out[i].Params = Numbers(overrides[i])
		}
	}
	return out
}

// Marshal renders the document as indented JSON.
func Marshal(doc Document) ([]byte, error) {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	return append(b, '\n'), nil
}

// WriteFile writes the document to path atomically: a temp file in the same
// directory is written, synced and renamed over path.
func WriteFile(path string, doc Document) error {
	b, err := Marshal(doc)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming report into place: %w", err)
	}
	return nil
}

// ReadFile loads a report written by WriteFile.
func ReadFile(path string) (Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return Document{}, fmt.Errorf("decoding report %s: %w", path, err)
	}
	return doc, nil
}
