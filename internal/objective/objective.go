// Package objective exposes a full fold sweep as a memoized scalar objective
// for numeric optimizers.
package objective

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"wfsweep/internal/domain"
)

// Metrics are the sweep statistics the objective is computed from.
type Metrics struct {
	ProfitFactor float64 `json:"profit_factor"`
	SharpeLike   float64 `json:"sharpe_like"`
	TotalTrades  int     `json:"total_trades"`
	NetProfit    float64 `json:"net_profit"`
}

// Evaluation is a cached objective result.
type Evaluation struct {
	Key string `json:"key"`
	Metrics
	Score float64 `json:"score"`
}

// EvalFunc runs a full fold sweep for params. It must be a pure function of
// params' canonical form.
type EvalFunc func(ctx context.Context, params domain.ParameterSet) (Metrics, error)

// Config holds the objective weights' floors and the cache bound.
type Config struct {
	CacheSize   int     `yaml:"cache_size"`
	FloorPF     float64 `yaml:"floor_pf"`
	FloorSharpe float64 `yaml:"floor_sharpe"`
	PFCap       float64 `yaml:"pf_cap"`
	MinTrades   int     `yaml:"min_trades"`
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		CacheSize:   32,
		FloorPF:     0.01,
		FloorSharpe: -1.0,
		PFCap:       10,
		MinTrades:   30,
	}
}

// Score combines the metrics:
//
//	log(max(pf, floorPF))*0.6 + max(sharpe, floorSharpe)*0.3 + min(1, trades/minTrades)*0.1
//
// An unbounded profit factor is capped at PFCap first.
func Score(cfg Config, m Metrics) float64 {
	pf := m.ProfitFactor
	if math.IsInf(pf, 1) || (cfg.PFCap > 0 && pf > cfg.PFCap) {
		pf = cfg.PFCap
	}
	penalty := 1.0
	if cfg.MinTrades > 0 {
		penalty = math.Min(1.0, float64(m.TotalTrades)/float64(cfg.MinTrades))
	}
	return math.Log(math.Max(pf, cfg.FloorPF))*0.6 +
		math.Max(m.SharpeLike, cfg.FloorSharpe)*0.3 +
		penalty*0.1
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evaluations int64 `json:"evaluations"`
	Entries     int   `json:"entries"`
}

// Observer receives cache hit/miss notifications.
type Observer interface {
	ObjectiveHit()
	ObjectiveMiss()
}

// Objective memoizes EvalFunc behind a bounded LRU cache keyed by the
// canonical parameter tuple. Concurrent requests for the same key share one
// evaluation. Errors are not cached.
type Objective struct {
	cfg   Config
	eval  EvalFunc
	cache *lru.Cache[string, Evaluation]
	group singleflight.Group
	obs   Observer

	hits   atomic.Int64
	misses atomic.Int64
	evals  atomic.Int64
}

// New creates an Objective. obs may be nil.
func New(cfg Config, eval EvalFunc, obs Observer) (*Objective, error) {
	if cfg.CacheSize < 1 {
		return nil, fmt.Errorf("objective cache size must be positive, got %d", cfg.CacheSize)
	}
	cache, err := lru.New[string, Evaluation](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating objective cache: %w", err)
	}
	return &Objective{cfg: cfg, eval: eval, cache: cache, obs: obs}, nil
}

// Evaluate returns the cached evaluation for params or computes it.
func (o *Objective) Evaluate(ctx context.Context, params domain.ParameterSet) (Evaluation, error) {
	key := params.Canonical()
	if ev, ok := o.cache.Get(key); ok {
		o.hits.Add(1)
		if o.obs != nil {
			o.obs.ObjectiveHit()
		}
		return ev, nil
	}

	o.misses.Add(1)
	if o.obs != nil {
		o.obs.ObjectiveMiss()
	}

	v, err, _ := o.group.Do(key, func() (any, error) {
		if ev, ok := o.cache.Get(key); ok {
			return ev, nil
		}
		o.evals.Add(1)
		m, err := o.eval(ctx, params.Clone())
		if err != nil {
			return Evaluation{}, err
		}
		ev := Evaluation{Key: key, Metrics: m, Score: Score(o.cfg, m)}
		o.cache.Add(key, ev)
		return ev, nil
	})
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluating %s: %w", key, err)
	}
	return v.(Evaluation), nil
}

// Loss is the quantity an optimizer minimizes: the negated score.
func (o *Objective) Loss(ctx context.Context, params domain.ParameterSet) (float64, error) {
	ev, err := o.Evaluate(ctx, params)
	if err != nil {
		return 0, err
	}
	return -ev.Score, nil
}

// Stats returns cache counters.
func (o *Objective) Stats() CacheStats {
	return CacheStats{
		Hits:        o.hits.Load(),
		Misses:      o.misses.Load(),
		Evaluations: o.evals.Load(),
		Entries:     o.cache.Len(),
	}
}
