// Package aggregate turns cost-adjusted fold results into per-scenario
// statistics. Output never depends on the order results arrived in.
package aggregate

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"wfsweep/internal/domain"
)

// UnboundedProfitFactor is the profit factor reported when a scenario has
// winning trades and no losing ones. It is a sentinel, not a clamp: callers
// test for it with IsUnbounded.
var UnboundedProfitFactor = math.Inf(1)

// NeutralPValue is reported when there are too few samples to test.
const NeutralPValue = 1.0

// DefaultSignificanceCap is the value an unbounded fold profit factor takes
// in the significance test when Options.SignificanceCap is unset.
const DefaultSignificanceCap = 10.0

// IsUnbounded reports whether pf is the no-loss sentinel.
func IsUnbounded(pf float64) bool { return math.IsInf(pf, 1) }

// ProfitFactor returns grossProfit / |grossLoss|, 0 when both are zero and
// UnboundedProfitFactor when only the loss is zero.
func ProfitFactor(grossProfit, grossLoss float64) float64 {
	loss := math.Abs(grossLoss)
	switch {
	case loss == 0 && grossProfit == 0:
		return 0
	case loss == 0:
		return UnboundedProfitFactor
	}
	return grossProfit / loss
}

// TaskCounts describes how a scenario's tasks ended.
type TaskCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Cancelled int `json:"cancelled"`
}

// ScenarioStats is the aggregate for one cost scenario.
type ScenarioStats struct {
	Index    int
	Scenario domain.Scenario
	Tasks    TaskCounts

	Folds                int
	TotalTrades          int
	Wins                 int
	Losses               int
	GrossProfit          float64
	GrossLoss            float64
	NetProfit            float64
	RawNetProfit         float64
	ProfitFactor         float64
	RawProfitFactor      float64
	WinRate              float64
	AvgTrade             float64
	SharpeLike           float64
	MaxConsecutiveLosses int

	FoldProfitFactors   []float64
	SignificanceSamples int
	PValue              float64

	// Results holds the scenario's folds sorted by fold id.
	Results []domain.CostAdjustedResult
}

// Options carries per-scenario task accounting from the orchestrator. A
// scenario is reported when it has results or an entry here.
type Options struct {
	Tasks map[domain.ScenarioID]TaskCounts

	// SignificanceCap replaces unbounded fold profit factors in the
	// significance test. Zero means DefaultSignificanceCap.
	SignificanceCap float64
}

// Aggregate groups results by scenario and computes statistics. The output
// follows the order of scenarios; folds inside a scenario are sorted by id.
func Aggregate(results []domain.CostAdjustedResult, scenarios []domain.Scenario, opts Options) []ScenarioStats {
	byID := make(map[domain.ScenarioID][]domain.CostAdjustedResult, len(scenarios))
	for _, r := range results {
		byID[r.ScenarioID] = append(byID[r.ScenarioID], r)
	}

	out := make([]ScenarioStats, 0, len(scenarios))
	for i, sc := range scenarios {
		rs := byID[sc.ID]
		counts, tracked := opts.Tasks[sc.ID]
		if len(rs) == 0 && !tracked {
			continue
		}
		sorted := make([]domain.CostAdjustedResult, len(rs))
		copy(sorted, rs)
		sort.Slice(sorted, func(a, b int) bool { return sorted[a].FoldID < sorted[b].FoldID })

		st := summarize(sorted, opts.significanceCap())
		st.Index = i
		st.Scenario = sc
		st.Tasks = counts
		st.Results = sorted
		out = append(out, st)
	}
	return out
}

func (o Options) significanceCap() float64 {
	if o.SignificanceCap > 0 {
		return o.SignificanceCap
	}
	return DefaultSignificanceCap
}

func summarize(results []domain.CostAdjustedResult, sigCap float64) ScenarioStats {
	var (
		st         ScenarioStats
		rawProfit  float64
		rawLoss    float64
		pnls       []float64
		lossStreak int
	)
	st.Folds = len(results)

	for _, r := range results {
		var foldProfit, foldLoss float64
		for i, t := range r.Trades {
			adj := r.AdjustedPnL[i]
			pnls = append(pnls, adj)
			st.TotalTrades++
			switch {
			case adj > 0:
				st.Wins++
				st.GrossProfit += adj
				foldProfit += adj
				lossStreak = 0
			case adj < 0:
				st.Losses++
				st.GrossLoss += -adj
				foldLoss += -adj
				lossStreak++
				st.MaxConsecutiveLosses = max(st.MaxConsecutiveLosses, lossStreak)
			}
			if t.RawPnL > 0 {
				rawProfit += t.RawPnL
			} else {
				rawLoss += -t.RawPnL
			}
			st.RawNetProfit += t.RawPnL
		}
		if len(r.Trades) > 0 {
			st.FoldProfitFactors = append(st.FoldProfitFactors, ProfitFactor(foldProfit, foldLoss))
		}
	}

	st.NetProfit = st.GrossProfit - st.GrossLoss
	st.ProfitFactor = ProfitFactor(st.GrossProfit, st.GrossLoss)
	st.RawProfitFactor = ProfitFactor(rawProfit, rawLoss)
	if st.TotalTrades > 0 {
		st.WinRate = float64(st.Wins) / float64(st.TotalTrades)
		st.AvgTrade = st.NetProfit / float64(st.TotalTrades)
	}
	st.SharpeLike = SharpeLike(pnls)
	st.SignificanceSamples, st.PValue = Significance(st.FoldProfitFactors, sigCap)
	return st
}

// SharpeLike returns mean/stddev of per-trade P&L, or 0 with fewer than two
// trades or zero dispersion.
func SharpeLike(pnls []float64) float64 {
	if len(pnls) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(pnls, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std
}

// Significance runs a one-sided one-sample t-test of H0: mean profit factor
// <= 1 against H1: mean > 1. Unbounded samples count as pfCap (or as the
// largest finite sample when that is higher); NaN samples are dropped. It
// returns the number of samples used and the p-value. With fewer than two
// samples the p-value is NeutralPValue.
func Significance(samples []float64, pfCap float64) (int, float64) {
	ceiling := pfCap
	for _, v := range samples {
		if !math.IsInf(v, 0) && !math.IsNaN(v) && v > ceiling {
			ceiling = v
		}
	}
	xs := make([]float64, 0, len(samples))
	for _, v := range samples {
		switch {
		case math.IsNaN(v), math.IsInf(v, -1):
		case IsUnbounded(v):
			xs = append(xs, ceiling)
		default:
			xs = append(xs, v)
		}
	}
	n := len(xs)
	if n < 2 {
		return n, NeutralPValue
	}

	mean, std := stat.MeanStdDev(xs, nil)
	if std == 0 {
		if mean > 1 {
			return n, 0
		}
		return n, 1
	}

	t := (mean - 1) / (std / math.Sqrt(float64(n)))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	return n, dist.Survival(t)
}
