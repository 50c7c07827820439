package strategy

import (
	"context"
	"testing"

	"wfsweep/internal/domain"
)

func stubFactory(_ domain.ParameterSet) (Evaluator, error) {
	return EvaluatorFunc(func(context.Context, []domain.Bar) (Result, error) {
		return Result{}, nil
	}), nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register("test-strategy", stubFactory)

	f, ok := r.Get("test-strategy")
	if !ok {
		t.Fatal("Get returned false for registered strategy")
	}
	ev, err := f(domain.ParameterSet{})
	if err != nil {
		t.Fatalf("factory returned error: %v", err)
	}
	if _, err := ev.Evaluate(context.Background(), nil); err != nil {
		t.Errorf("Evaluate returned error: %v", err)
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Error("Get returned true for unregistered strategy")
	}
	if _, err := r.MustGet("nonexistent"); err == nil {
		t.Error("MustGet returned nil error for unregistered strategy")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register("beta", stubFactory)
	r.Register("alpha", stubFactory)

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
	// List returns sorted names.
	if names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
}
