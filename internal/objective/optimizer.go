package objective

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"wfsweep/internal/domain"
)

// LossFunc is minimized by the optimizer. Objective.Loss satisfies it.
type LossFunc func(ctx context.Context, params domain.ParameterSet) (float64, error)

// Dimension is one named, bounded search coordinate. Integer dimensions are
// rounded and never step below 1.
type Dimension struct {
	Name    string
	Min     float64
	Max     float64
	Step    float64
	Integer bool
}

// ParseDimension parses "name=min:max:step". Whole-number bounds and step
// mark the dimension as integer.
func ParseDimension(s string) (Dimension, error) {
	name, rng, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return Dimension{}, fmt.Errorf("parameter %q: want name=min:max:step", s)
	}
	parts := strings.Split(rng, ":")
	if len(parts) != 3 {
		return Dimension{}, fmt.Errorf("parameter %q: want name=min:max:step", s)
	}
	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Dimension{}, fmt.Errorf("parameter %q: %w", s, err)
		}
		vals[i] = v
	}
	d := Dimension{Name: strings.TrimSpace(name), Min: vals[0], Max: vals[1], Step: vals[2]}
	d.Integer = isWhole(d.Min) && isWhole(d.Max) && isWhole(d.Step)
	return d, d.Validate()
}

// Validate checks bounds and step.
func (d Dimension) Validate() error {
	switch {
	case d.Name == "":
		return fmt.Errorf("dimension has no name")
	case d.Max < d.Min:
		return fmt.Errorf("dimension %s: max %g < min %g", d.Name, d.Max, d.Min)
	case d.Step <= 0:
		return fmt.Errorf("dimension %s: step must be positive, got %g", d.Name, d.Step)
	}
	return nil
}

func (d Dimension) clamp(v float64) float64 {
	v = math.Max(d.Min, math.Min(d.Max, v))
	if d.Integer {
		v = math.Round(v)
	}
	return v
}

func isWhole(v float64) bool { return v == math.Trunc(v) }

// OptimizerConfig bounds the search.
type OptimizerConfig struct {
	MaxEvaluations int     `yaml:"max_evaluations"`
	ShrinkRatio    float64 `yaml:"shrink_ratio"`
	MinStepRatio   float64 `yaml:"min_step_ratio"`
}

// DefaultOptimizerConfig returns the stock search budget.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		MaxEvaluations: 100,
		ShrinkRatio:    0.5,
		MinStepRatio:   0.125,
	}
}

// Step is one probe in the optimization history.
type Step struct {
	Evaluation int                `json:"evaluation"`
	Params     map[string]float64 `json:"params"`
	Loss       float64            `json:"loss"`
	Move       string             `json:"move"`
	Accepted   bool               `json:"accepted"`
}

// OptimizationResult is the outcome of a search.
type OptimizationResult struct {
	Best        domain.ParameterSet `json:"-"`
	BestParams  map[string]float64  `json:"best_params"`
	BestLoss    float64             `json:"best_loss"`
	InitialLoss float64             `json:"initial_loss"`
	Evaluations int                 `json:"evaluations"`
	Converged   bool                `json:"converged"`
	Elapsed     time.Duration       `json:"elapsed"`
	History     []Step              `json:"history,omitempty"`
}

// CoordinateDescent is a bounded, deterministic coordinate-descent search.
// Each sweep probes +step then -step along every dimension in order and
// moves on the first improvement. A sweep with no improvement shrinks every
// step; the search converges once all steps fall below their minimum.
type CoordinateDescent struct {
	cfg  OptimizerConfig
	dims []Dimension
	loss LossFunc
}

// NewCoordinateDescent validates dims and returns an optimizer.
func NewCoordinateDescent(cfg OptimizerConfig, dims []Dimension, loss LossFunc) (*CoordinateDescent, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("no dimensions to optimize")
	}
	seen := make(map[string]bool, len(dims))
	for _, d := range dims {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("dimension %s given twice", d.Name)
		}
		seen[d.Name] = true
	}
	if cfg.MaxEvaluations < 1 {
		return nil, fmt.Errorf("max evaluations must be positive, got %d", cfg.MaxEvaluations)
	}
	if cfg.ShrinkRatio <= 0 || cfg.ShrinkRatio >= 1 {
		return nil, fmt.Errorf("shrink ratio must be in (0, 1), got %g", cfg.ShrinkRatio)
	}
	return &CoordinateDescent{cfg: cfg, dims: dims, loss: loss}, nil
}

// Minimize searches from start. Values for dimensions missing from start
// begin at the middle of their range.
func (cd *CoordinateDescent) Minimize(ctx context.Context, start domain.ParameterSet) (OptimizationResult, error) {
	begin := time.Now()

	init := make(map[string]float64, len(cd.dims))
	steps := make([]float64, len(cd.dims))
	minSteps := make([]float64, len(cd.dims))
	for i, d := range cd.dims {
		init[d.Name] = d.clamp(start.GetOr(d.Name, (d.Min+d.Max)/2))
		steps[i] = d.Step
		minSteps[i] = d.Step * cd.cfg.MinStepRatio
		if d.Integer {
			minSteps[i] = 1
		}
	}

	best := start.With(init)
	bestLoss, err := cd.loss(ctx, best)
	if err != nil {
		return OptimizationResult{}, fmt.Errorf("evaluating start point: %w", err)
	}
	res := OptimizationResult{InitialLoss: bestLoss, Evaluations: 1}
	res.History = append(res.History, Step{Evaluation: 1, Params: best.Values(), Loss: bestLoss, Move: "start", Accepted: true})

search:
	for res.Evaluations < cd.cfg.MaxEvaluations {
		improved := false
		for i, d := range cd.dims {
			cur, _ := best.Get(d.Name)
			for _, dir := range []float64{1, -1} {
				next := d.clamp(cur + dir*steps[i])
				if next == cur {
					continue
				}
				if res.Evaluations >= cd.cfg.MaxEvaluations {
					break search
				}
				if err := ctx.Err(); err != nil {
					return res.finish(best, bestLoss, begin), err
				}
				cand := best.With(map[string]float64{d.Name: next})
				l, err := cd.loss(ctx, cand)
				if err != nil {
					return res.finish(best, bestLoss, begin), fmt.Errorf("evaluating %s=%g: %w", d.Name, next, err)
				}
				res.Evaluations++
				accepted := l < bestLoss
				res.History = append(res.History, Step{
					Evaluation: res.Evaluations,
					Params:     cand.Values(),
					Loss:       l,
					Move:       fmt.Sprintf("%s%+g", d.Name, dir*steps[i]),
					Accepted:   accepted,
				})
				if accepted {
					best, bestLoss = cand, l
					improved = true
					break
				}
			}
		}
		if improved {
			continue
		}

		converged := true
		for i, d := range cd.dims {
			s := steps[i] * cd.cfg.ShrinkRatio
			if d.Integer {
				s = math.Floor(s)
			}
			if s >= minSteps[i] {
				steps[i] = s
				converged = false
			}
		}
		if converged {
			res.Converged = true
			break
		}
	}
	return res.finish(best, bestLoss, begin), nil
}

func (r OptimizationResult) finish(best domain.ParameterSet, loss float64, begin time.Time) OptimizationResult {
	r.Best = best
	r.BestParams = best.Values()
	r.BestLoss = loss
	r.Elapsed = time.Since(begin)
	return r
}
