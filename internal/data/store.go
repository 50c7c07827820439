package data

import (
	"context"
	"fmt"
	"time"

	"wfsweep/internal/domain"
	"wfsweep/internal/store"
)

var _ DataProvider = (*StoreProvider)(nil)

// StoreProvider reads the series from a BarStore.
type StoreProvider struct {
	store   store.BarStore
	symbol  string
	market  string
	start   time.Time
	end     time.Time
	minBars int
}

// NewStoreProvider creates a provider for symbol in market over [start, end].
// A zero end means now; a zero start means the beginning of time.
func NewStoreProvider(s store.BarStore, symbol, market string, start, end time.Time, minBars int) *StoreProvider {
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if start.IsZero() {
		start = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &StoreProvider{store: s, symbol: symbol, market: market, start: start, end: end, minBars: minBars}
}

// FullSeries implements DataProvider.
func (p *StoreProvider) FullSeries(ctx context.Context) (*domain.PriceSeries, error) {
	bars, err := p.store.ReadBars(ctx, p.symbol, p.market, p.start, p.end)
	if err != nil {
		return nil, &DataUnavailableError{Source: "store", Symbol: p.symbol, MinBars: p.minBars, Err: fmt.Errorf("reading bars: %w", err)}
	}
	return buildSeries("store", p.symbol, bars, p.minBars)
}
