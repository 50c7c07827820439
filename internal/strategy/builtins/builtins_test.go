package builtins

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"wfsweep/internal/domain"
	"wfsweep/internal/strategy"
)

// sineBars produces a smooth oscillating close series so moving averages
// cross at predictable intervals.
func sineBars(n int) []domain.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	for i := range bars {
		c := 100 + 5*math.Sin(float64(i)/15)
		bars[i] = domain.Bar{Timestamp: start.Add(time.Duration(i) * time.Hour), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1000}
	}
	return bars
}

func TestSMACrossProducesTrades(t *testing.T) {
	ev, err := NewSMACross(5, 20, 1, true)
	if err != nil {
		t.Fatalf("NewSMACross: %v", err)
	}
	res, err := ev.Evaluate(context.Background(), sineBars(600))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Trades) == 0 {
		t.Fatal("expected crossover trades on an oscillating series")
	}
	for i, tr := range res.Trades {
		if tr.Ordinal != i {
			t.Errorf("trade %d has ordinal %d", i, tr.Ordinal)
		}
		if tr.CloseTime.Before(tr.OpenTime) {
			t.Errorf("trade %d closes before it opens", i)
		}
		want := domain.PriceMovePnL(tr.Direction, tr.EntryPrice, tr.ExitPrice, tr.Volume)
		if tr.RawPnL != want {
			t.Errorf("trade %d RawPnL = %v, want %v", i, tr.RawPnL, want)
		}
	}
	if res.Diagnostics["crosses"] == 0 {
		t.Error("crosses diagnostic not recorded")
	}
}

func TestSMACrossDeterministic(t *testing.T) {
	bars := sineBars(800)
	params := domain.NewParameterSet(map[string]float64{"fast": 7, "slow": 25}, domain.Scenario{ID: "s"})

	run := func() strategy.Result {
		ev, err := NewSMACrossFromParams(params)
		if err != nil {
			t.Fatalf("factory: %v", err)
		}
		res, err := ev.Evaluate(context.Background(), bars)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		return res
	}

	a, b := run(), run()
	if len(a.Trades) != len(b.Trades) {
		t.Fatalf("trade counts differ: %d vs %d", len(a.Trades), len(b.Trades))
	}
	for i := range a.Trades {
		if a.Trades[i] != b.Trades[i] {
			t.Errorf("trade %d differs:\n  %+v\n  %+v", i, a.Trades[i], b.Trades[i])
		}
	}
}

func TestSMACrossInsufficientWarmup(t *testing.T) {
	ev, _ := NewSMACross(5, 50, 1, false)
	_, err := ev.Evaluate(context.Background(), sineBars(50))
	if !errors.Is(err, strategy.ErrInsufficientWarmup) {
		t.Errorf("Evaluate error = %v, want ErrInsufficientWarmup", err)
	}
}

func TestSMACrossRejectsBadParams(t *testing.T) {
	if _, err := NewSMACross(20, 10, 1, true); err == nil {
		t.Error("fast >= slow accepted")
	}
	if _, err := NewSMACross(5, 10, 0, true); err == nil {
		t.Error("zero volume accepted")
	}
}

func TestFixedPattern(t *testing.T) {
	ev, err := NewFixedFromParams(domain.ParameterSet{})
	if err != nil {
		t.Fatalf("NewFixedFromParams: %v", err)
	}
	res, err := ev.Evaluate(context.Background(), sineBars(200))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Trades) != 3 {
		t.Fatalf("got %d trades, want 3", len(res.Trades))
	}
	var wins, losses float64
	for _, tr := range res.Trades {
		if tr.RawPnL > 0 {
			wins += tr.RawPnL
		} else {
			losses += tr.RawPnL
		}
	}
	if wins != 20 || losses != -4 {
		t.Errorf("wins=%v losses=%v, want 20 and -4", wins, losses)
	}
}

func TestFixedWarmup(t *testing.T) {
	params := domain.NewParameterSet(map[string]float64{"warmup": 500}, domain.Scenario{ID: "s"})
	ev, err := NewFixedFromParams(params)
	if err != nil {
		t.Fatalf("NewFixedFromParams: %v", err)
	}
	if _, err := ev.Evaluate(context.Background(), sineBars(200)); !errors.Is(err, strategy.ErrInsufficientWarmup) {
		t.Errorf("Evaluate error = %v, want ErrInsufficientWarmup", err)
	}
}

func TestDefaultRegistry(t *testing.T) {
	names := DefaultRegistry().List()
	if len(names) != 2 || names[0] != "fixed" || names[1] != "sma-cross" {
		t.Errorf("DefaultRegistry().List() = %v, want [fixed sma-cross]", names)
	}
}
