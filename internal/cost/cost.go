// Package cost re-prices raw fold results under a transaction-cost scenario.
package cost

import "wfsweep/internal/domain"

// DefaultPipValue is the price value of one pip for a 4-decimal FX quote.
const DefaultPipValue = 0.0001

// TradeCost returns the cost of one trade under scenario s:
// (spread + commission) * pipValue * volume.
func TradeCost(s domain.Scenario, pipValue, volume float64) float64 {
	return s.CostPips() * pipValue * volume
}

// Adjust deducts the scenario's cost from every trade in r and recomputes the
// fold total. Values are left unrounded. r is not modified.
func Adjust(r domain.FoldResult, s domain.Scenario, pipValue float64) domain.CostAdjustedResult {
	adjusted := make([]float64, len(r.Trades))
	var total float64
	for i, t := range r.Trades {
		adjusted[i] = t.RawPnL - TradeCost(s, pipValue, t.Volume)
		total += adjusted[i]
	}
	return domain.CostAdjustedResult{
		FoldResult:       r,
		AdjustedPnL:      adjusted,
		AdjustedPnLTotal: total,
	}
}
