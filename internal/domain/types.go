// Package domain defines the core value types shared across the sweep:
// price bars and series, folds, cost scenarios, parameter sets, trades and
// per-task results.
package domain

import (
	"fmt"
	"time"
)

// Bar is a single OHLCV observation.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// PriceSeries is an immutable, strictly time-ordered sequence of bars. It is
// loaded once per run and shared read-only by every task.
type PriceSeries struct {
	symbol string
	bars   []Bar
}

// UnorderedSeriesError reports the first bar whose timestamp does not
// strictly follow its predecessor.
type UnorderedSeriesError struct {
	Index int
	Prev  time.Time
	Cur   time.Time
}

func (e *UnorderedSeriesError) Error() string {
	return fmt.Sprintf("series not strictly increasing at index %d: %s <= %s",
		e.Index, e.Cur.Format(time.RFC3339), e.Prev.Format(time.RFC3339))
}

// NewPriceSeries validates ordering and takes a private copy of bars.
func NewPriceSeries(symbol string, bars []Bar) (*PriceSeries, error) {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return nil, &UnorderedSeriesError{Index: i, Prev: bars[i-1].Timestamp, Cur: bars[i].Timestamp}
		}
	}
	cp := make([]Bar, len(bars))
	copy(cp, bars)
	return &PriceSeries{symbol: symbol, bars: cp}, nil
}

// Symbol returns the instrument the series belongs to.
func (s *PriceSeries) Symbol() string { return s.symbol }

// Len returns the number of bars.
func (s *PriceSeries) Len() int { return len(s.bars) }

// Slice returns the half-open window [start, end). The returned slice aliases
// the series' backing array and has its capacity clipped, so appends by a
// caller can never write into neighbouring bars. Callers must treat it as
// read-only.
func (s *PriceSeries) Slice(start, end int) []Bar {
	if start < 0 {
		start = 0
	}
	if end > len(s.bars) {
		end = len(s.bars)
	}
	if start >= end {
		return nil
	}
	return s.bars[start:end:end]
}

// Bars returns a copy of every bar.
func (s *PriceSeries) Bars() []Bar {
	out := make([]Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

// Fold is a contiguous out-of-sample window [Start, End) of the series.
type Fold struct {
	ID    int `json:"id"`
	Start int `json:"start_index"`
	End   int `json:"end_index"`
}

// Len returns the number of bars covered by the fold.
func (f Fold) Len() int { return f.End - f.Start }

// Direction is the side of a trade.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Trade is a closed round trip produced by an evaluator. Trades are created
// once and never mutated afterwards.
type Trade struct {
	Ordinal    int       `json:"ordinal"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Volume     float64   `json:"volume"`
	OpenTime   time.Time `json:"open_time"`
	CloseTime  time.Time `json:"close_time"`
	RawPnL     float64   `json:"raw_pnl"`
}

// PriceMovePnL returns the signed price-move P&L of a position, before any
// transaction costs.
func PriceMovePnL(dir Direction, entry, exit, volume float64) float64 {
	if dir == DirectionShort {
		return (entry - exit) * volume
	}
	return (exit - entry) * volume
}

// FoldResult is the raw output of exactly one (fold, scenario) task.
type FoldResult struct {
	FoldID        int        `json:"fold_id"`
	ScenarioID    ScenarioID `json:"scenario_id"`
	ScenarioLabel string     `json:"scenario_label"`
	Trades        []Trade    `json:"trades"`
	RawPnLTotal   float64    `json:"raw_pnl_total"`
}

// CostAdjustedResult is a FoldResult re-priced under its scenario's costs.
// AdjustedPnL is parallel to Trades.
type CostAdjustedResult struct {
	FoldResult
	AdjustedPnL      []float64 `json:"adjusted_pnl"`
	AdjustedPnLTotal float64   `json:"adjusted_pnl_total"`
}
