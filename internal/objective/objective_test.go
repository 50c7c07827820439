package objective

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wfsweep/internal/domain"
)

var standard = domain.Scenario{ID: "standard", Label: "standard", SpreadPips: 1.5, CommissionPips: 0.3}

func params(v float64) domain.ParameterSet {
	return domain.NewParameterSet(map[string]float64{"fast": v, "slow": 50}, standard)
}

type countingEval struct {
	calls atomic.Int32
	delay time.Duration
}

func (c *countingEval) eval(ctx context.Context, p domain.ParameterSet) (Metrics, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	fast, _ := p.Get("fast")
	return Metrics{ProfitFactor: 1 + fast/100, SharpeLike: 0.5, TotalTrades: 40}, nil
}

type observer struct{ hits, misses atomic.Int32 }

func (o *observer) ObjectiveHit()  { o.hits.Add(1) }
func (o *observer) ObjectiveMiss() { o.misses.Add(1) }

func TestScore(t *testing.T) {
	cfg := DefaultConfig()

	got := Score(cfg, Metrics{ProfitFactor: math.E, SharpeLike: 1, TotalTrades: 15})
	assert.InDelta(t, 0.6+0.3+0.05, got, 1e-12)

	// Floors apply.
	got = Score(cfg, Metrics{ProfitFactor: 0, SharpeLike: -5, TotalTrades: 0})
	assert.InDelta(t, math.Log(cfg.FloorPF)*0.6+cfg.FloorSharpe*0.3, got, 1e-12)

	// An unbounded profit factor is capped, not propagated.
	got = Score(cfg, Metrics{ProfitFactor: math.Inf(1), TotalTrades: 30})
	assert.False(t, math.IsInf(got, 0))
	assert.InDelta(t, math.Log(cfg.PFCap)*0.6+0.1, got, 1e-12)
}

func TestEvaluateCaches(t *testing.T) {
	ce := &countingEval{}
	obs := &observer{}
	o, err := New(DefaultConfig(), ce.eval, obs)
	require.NoError(t, err)

	first, err := o.Evaluate(context.Background(), params(10))
	require.NoError(t, err)

	// Equal values built in a different order hit the same key.
	again := domain.NewParameterSet(map[string]float64{"slow": 50, "fast": 10}, standard)
	second, err := o.Evaluate(context.Background(), again)
	require.NoError(t, err)

	assert.Equal(t, int32(1), ce.calls.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, CacheStats{Hits: 1, Misses: 1, Evaluations: 1, Entries: 1}, o.Stats())
	assert.Equal(t, int32(1), obs.hits.Load())
	assert.Equal(t, int32(1), obs.misses.Load())

	loss, err := o.Loss(context.Background(), params(10))
	require.NoError(t, err)
	assert.Equal(t, -first.Score, loss)
}

func TestEvaluateCacheBound(t *testing.T) {
	ce := &countingEval{}
	cfg := DefaultConfig()
	cfg.CacheSize = 3
	o, err := New(cfg, ce.eval, nil)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := o.Evaluate(ctx, params(float64(i)))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, o.Stats().Entries)

	// 0 was evicted, 9 is still cached.
	_, _ = o.Evaluate(ctx, params(9))
	assert.Equal(t, int32(10), ce.calls.Load())
	_, _ = o.Evaluate(ctx, params(0))
	assert.Equal(t, int32(11), ce.calls.Load())
}

func TestEvaluateSingleFlight(t *testing.T) {
	ce := &countingEval{delay: 50 * time.Millisecond}
	o, err := New(DefaultConfig(), ce.eval, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Evaluate(context.Background(), params(5))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), ce.calls.Load())
}

func TestEvaluateErrorsNotCached(t *testing.T) {
	var calls int
	fail := errors.New("data went away")
	eval := func(ctx context.Context, p domain.ParameterSet) (Metrics, error) {
		calls++
		if calls == 1 {
			return Metrics{}, fail
		}
		return Metrics{ProfitFactor: 2}, nil
	}
	o, err := New(DefaultConfig(), eval, nil)
	require.NoError(t, err)

	_, err = o.Evaluate(context.Background(), params(1))
	assert.ErrorIs(t, err, fail)
	_, err = o.Evaluate(context.Background(), params(1))
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestNewRejectsZeroCache(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheSize = 0
	_, err := New(cfg, nil, nil)
	assert.Error(t, err)
}
