// Package store defines storage for market data bars and the run ledger.
package store

import (
	"context"
	"time"

	"wfsweep/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars for one symbol.
	WriteBars(ctx context.Context, symbol, market string, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end],
	// ordered by timestamp.
	ReadBars(ctx context.Context, symbol, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// RunStore records finished sweep runs and their task outcomes.
type RunStore interface {
	// SaveRun stores the run summary and its task outcomes atomically.
	SaveRun(ctx context.Context, run RunRecord, tasks []TaskRecord) error

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// TaskOutcomes returns a run's task outcomes ordered by task id.
	TaskOutcomes(ctx context.Context, runID string) ([]TaskRecord, error)
}

// RunRecord summarizes one sweep run.
type RunRecord struct {
	ID          string
	StartedAt   time.Time
	Strategy    string
	Symbol      string
	Folds       int
	Scenarios   int
	Workers     int
	Total       int
	Completed   int
	Failed      int
	Skipped     int
	Cancelled   int
	WallSeconds float64
	ReportPath  string
}

// TaskRecord is the ledger row for one task.
type TaskRecord struct {
	TaskID      int
	FoldID      int
	ScenarioID  string
	Status      string
	Error       string
	Trades      int
	RawPnL      float64
	AdjustedPnL float64
	DurationMS  int64
}
