// Package builtins provides reference evaluators that ship with wfsweep.
package builtins

import (
	"context"
	"fmt"

	"wfsweep/internal/domain"
	"wfsweep/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Evaluator = (*SMACross)(nil)

// SMACross is a moving average crossover rule. It goes long when the fast
// SMA crosses above the slow SMA and, when shorting is allowed, goes short on
// the opposite cross. Any open position is closed at the last bar.
type SMACross struct {
	fastPeriod int
	slowPeriod int
	volume     float64
	allowShort bool
}

// NewSMACross creates a new SMACross evaluator with the specified fast and
// slow moving average periods.
func NewSMACross(fast, slow int, volume float64, allowShort bool) (*SMACross, error) {
	if fast < 1 || slow <= fast {
		return nil, fmt.Errorf("sma-cross: need 1 <= fast < slow, got fast=%d slow=%d", fast, slow)
	}
	if volume <= 0 {
		return nil, fmt.Errorf("sma-cross: volume must be positive, got %g", volume)
	}
	return &SMACross{
		fastPeriod: fast,
		slowPeriod: slow,
		volume:     volume,
		allowShort: allowShort,
	}, nil
}

// NewSMACrossFromParams reads fast, slow, volume and allow_short from params.
func NewSMACrossFromParams(params domain.ParameterSet) (strategy.Evaluator, error) {
	return NewSMACross(
		int(params.GetOr("fast", 10)),
		int(params.GetOr("slow", 30)),
		params.GetOr("volume", 1),
		params.GetOr("allow_short", 1) != 0,
	)
}

// Evaluate walks the bars once, maintaining running sums for both averages.
func (s *SMACross) Evaluate(ctx context.Context, bars []domain.Bar) (strategy.Result, error) {
	if len(bars) <= s.slowPeriod {
		return strategy.Result{}, fmt.Errorf("sma-cross needs more than %d bars, got %d: %w",
			s.slowPeriod, len(bars), strategy.ErrInsufficientWarmup)
	}

	var (
		trades   []domain.Trade
		fastSum  float64
		slowSum  float64
		prevDiff float64
		havePrev bool
		crosses  int

		open     bool
		dir      domain.Direction
		entryIdx int
		entryPx  float64
	)

	closePos := func(i int) {
		exit := bars[i].Close
		trades = append(trades, domain.Trade{
			Ordinal:    len(trades),
			Direction:  dir,
			EntryPrice: entryPx,
			ExitPrice:  exit,
			Volume:     s.volume,
			OpenTime:   bars[entryIdx].Timestamp,
			CloseTime:  bars[i].Timestamp,
			RawPnL:     domain.PriceMovePnL(dir, entryPx, exit, s.volume),
		})
		open = false
	}

	for i, b := range bars {
		if i&1023 == 0 && ctx.Err() != nil {
			return strategy.Result{}, ctx.Err()
		}

		fastSum += b.Close
		slowSum += b.Close
		if i >= s.fastPeriod {
			fastSum -= bars[i-s.fastPeriod].Close
		}
		if i >= s.slowPeriod {
			slowSum -= bars[i-s.slowPeriod].Close
		}
		if i < s.slowPeriod-1 {
			continue
		}

		diff := fastSum/float64(s.fastPeriod) - slowSum/float64(s.slowPeriod)
		if havePrev {
			switch {
			case prevDiff <= 0 && diff > 0:
				crosses++
				if open && dir == domain.DirectionShort {
					closePos(i)
				}
				if !open {
					open, dir, entryIdx, entryPx = true, domain.DirectionLong, i, b.Close
				}
			case prevDiff >= 0 && diff < 0:
				crosses++
				if open && dir == domain.DirectionLong {
					closePos(i)
				}
				if !open && s.allowShort {
					open, dir, entryIdx, entryPx = true, domain.DirectionShort, i, b.Close
				}
			}
		}
		prevDiff, havePrev = diff, true
	}

	if open {
		closePos(len(bars) - 1)
	}

	return strategy.Result{
		Trades: trades,
		Diagnostics: map[string]float64{
			"crosses":      float64(crosses),
			"warmup_bars":  float64(s.slowPeriod - 1),
			"bars_scanned": float64(len(bars)),
		},
	}, nil
}
