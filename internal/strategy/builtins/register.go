package builtins

import "wfsweep/internal/strategy"

// Register adds every built-in evaluator to r.
func Register(r *strategy.Registry) {
	r.Register("sma-cross", NewSMACrossFromParams)
	r.Register("fixed", NewFixedFromParams)
}

// DefaultRegistry returns a registry holding the built-in evaluators.
func DefaultRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}
