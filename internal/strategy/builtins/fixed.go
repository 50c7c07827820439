package builtins

import (
	"context"
	"fmt"

	"wfsweep/internal/domain"
	"wfsweep/internal/strategy"
)

// Fixed emits a scripted pattern of trades on every window: Wins trades of
// +WinPnL followed by Losses trades of LossPnL, spread evenly across the
// window. It is used for dry runs and to check the sweep plumbing against
// known numbers.
type Fixed struct {
	Wins    int
	WinPnL  float64
	Losses  int
	LossPnL float64
	Volume  float64
	Warmup  int
}

// NewFixedFromParams reads wins, win_pnl, losses, loss_pnl, volume and
// warmup from params.
func NewFixedFromParams(params domain.ParameterSet) (strategy.Evaluator, error) {
	f := &Fixed{
		Wins:    int(params.GetOr("wins", 2)),
		WinPnL:  params.GetOr("win_pnl", 10),
		Losses:  int(params.GetOr("losses", 1)),
		LossPnL: params.GetOr("loss_pnl", -4),
		Volume:  params.GetOr("volume", 1),
		Warmup:  int(params.GetOr("warmup", 0)),
	}
	if f.Wins < 0 || f.Losses < 0 {
		return nil, fmt.Errorf("fixed: negative trade count (wins=%d losses=%d)", f.Wins, f.Losses)
	}
	if f.Volume <= 0 {
		return nil, fmt.Errorf("fixed: volume must be positive, got %g", f.Volume)
	}
	return f, nil
}

// Evaluate implements strategy.Evaluator.
func (f *Fixed) Evaluate(_ context.Context, bars []domain.Bar) (strategy.Result, error) {
	n := f.Wins + f.Losses
	if len(bars) < f.Warmup || len(bars) < 2*n {
		return strategy.Result{}, fmt.Errorf("fixed needs %d bars, got %d: %w",
			max(f.Warmup, 2*n), len(bars), strategy.ErrInsufficientWarmup)
	}

	trades := make([]domain.Trade, 0, n)
	step := len(bars) / max(n, 1)
	for i := 0; i < n; i++ {
		pnl := f.WinPnL
		if i >= f.Wins {
			pnl = f.LossPnL
		}
		open := bars[i*step]
		closeBar := bars[i*step+step/2]
		trades = append(trades, domain.Trade{
			Ordinal:    i,
			Direction:  domain.DirectionLong,
			EntryPrice: open.Close,
			ExitPrice:  open.Close + pnl/f.Volume,
			Volume:     f.Volume,
			OpenTime:   open.Timestamp,
			CloseTime:  closeBar.Timestamp,
			RawPnL:     pnl,
		})
	}
	return strategy.Result{Trades: trades}, nil
}
