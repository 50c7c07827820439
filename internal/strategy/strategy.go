// Package strategy defines the Evaluator contract for trading rules and
// provides a Registry for looking up evaluator factories by name.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"wfsweep/internal/domain"
)

// ErrInsufficientWarmup is returned by an evaluator when the slice it was
// given is too short to warm up its indicators.
var ErrInsufficientWarmup = errors.New("insufficient warm-up bars")

// Result is the output of one evaluation.
type Result struct {
	Trades []domain.Trade

	// Diagnostics holds named counters the evaluator wants surfaced
	// (signals seen, bars skipped, ...). Never used for aggregation.
	Diagnostics map[string]float64
}

// Evaluator runs a trading rule over a window of bars. Implementations must
// be pure: the same bars and parameters always yield the same trades, and
// the bars slice must not be modified.
type Evaluator interface {
	Evaluate(ctx context.Context, bars []domain.Bar) (Result, error)
}

// Factory builds a fresh Evaluator for a parameter set. A factory is called
// once per task so no state survives between tasks.
type Factory func(params domain.ParameterSet) (Evaluator, error)

// EvaluatorFunc adapts a plain function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, bars []domain.Bar) (Result, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, bars []domain.Bar) (Result, error) {
	return f(ctx, bars)
}

// Registry holds a named collection of evaluator factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name, replacing any previous entry.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Get retrieves a factory by name. The second return value indicates whether
// the factory was found.
func (r *Registry) Get(name string) (Factory, bool) {
	f, ok := r.factories[name]
	return f, ok
}

// MustGet is Get that returns a descriptive error for unknown names.
func (r *Registry) MustGet(name string) (Factory, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %v)", name, r.List())
	}
	return f, nil
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
