// Package data supplies the price series a sweep runs over.
package data

import (
	"context"
	"fmt"
	"sort"

	"wfsweep/internal/domain"
)

// DefaultMinBars is the smallest series a sweep will start on.
const DefaultMinBars = 1000

// DataProvider returns the full, time-ordered series for a run. It is
// called once per run.
type DataProvider interface {
	FullSeries(ctx context.Context) (*domain.PriceSeries, error)
}

// DataUnavailableError reports a series too short (or missing) to run on.
type DataUnavailableError struct {
	Source  string
	Symbol  string
	Bars    int
	MinBars int
	Err     error
}

func (e *DataUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s data for %s unavailable: %v", e.Source, e.Symbol, e.Err)
	}
	return fmt.Sprintf("%s data for %s unavailable: %d bars, need at least %d", e.Source, e.Symbol, e.Bars, e.MinBars)
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }

// buildSeries sorts bars by time, enforces minBars and builds the series.
func buildSeries(source, symbol string, bars []domain.Bar, minBars int) (*domain.PriceSeries, error) {
	if len(bars) < minBars {
		return nil, &DataUnavailableError{Source: source, Symbol: symbol, Bars: len(bars), MinBars: minBars}
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	s, err := domain.NewPriceSeries(symbol, bars)
	if err != nil {
		return nil, fmt.Errorf("building %s series for %s: %w", source, symbol, err)
	}
	return s, nil
}
