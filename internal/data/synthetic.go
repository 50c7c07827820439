package data

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"wfsweep/internal/domain"
	"wfsweep/internal/util"
)

var _ DataProvider = (*SyntheticProvider)(nil)

// SyntheticProvider generates a reproducible random-walk series on the
// trading calendar. The same seed always yields the same bars.
type SyntheticProvider struct {
	Symbol  string
	Bars    int
	Seed    int64
	Start   time.Time
	MinBars int
}

// NewSyntheticProvider creates a provider of n daily bars starting at the
// first trading day of 2015.
func NewSyntheticProvider(symbol string, n int, seed int64, minBars int) *SyntheticProvider {
	return &SyntheticProvider{
		Symbol:  symbol,
		Bars:    n,
		Seed:    seed,
		Start:   time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
		MinBars: minBars,
	}
}

// FullSeries implements DataProvider.
func (p *SyntheticProvider) FullSeries(ctx context.Context) (*domain.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol := p.Symbol
	if symbol == "" {
		symbol = "SYNTH"
	}

	rng := rand.New(rand.NewPCG(uint64(p.Seed), uint64(p.Seed)^0x9e3779b97f4a7c15))
	days := util.NewTradingCalendar("synthetic").TradingDays(p.Start, p.Bars)

	bars := make([]domain.Bar, len(days))
	price := 1.1000
	for i, day := range days {
		// Slow regime drift so trend-following strategies have something to find.
		drift := 0.0004 * math.Sin(float64(i)/60)
		ret := drift + 0.006*rng.NormFloat64()
		open := price
		price *= math.Exp(ret)
		spread := math.Abs(0.003 * rng.NormFloat64())
		bars[i] = domain.Bar{
			Timestamp: day,
			Open:      open,
			High:      math.Max(open, price) * (1 + spread),
			Low:       math.Min(open, price) * (1 - spread),
			Close:     price,
			Volume:    math.Round(1000 + 500*rng.Float64()),
		}
	}
	return buildSeries("synthetic", symbol, bars, p.MinBars)
}
