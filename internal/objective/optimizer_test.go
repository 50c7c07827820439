package objective

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wfsweep/internal/domain"
)

// bowl has its minimum at fast=12, slow=40.
func bowl(calls *int) LossFunc {
	return func(ctx context.Context, p domain.ParameterSet) (float64, error) {
		*calls++
		f, _ := p.Get("fast")
		s, _ := p.Get("slow")
		return math.Pow(f-12, 2) + math.Pow(s-40, 2), nil
	}
}

func TestParseDimension(t *testing.T) {
	d, err := ParseDimension("fast=5:30:4")
	require.NoError(t, err)
	assert.Equal(t, Dimension{Name: "fast", Min: 5, Max: 30, Step: 4, Integer: true}, d)

	d, err = ParseDimension("volume=0.5:2:0.25")
	require.NoError(t, err)
	assert.False(t, d.Integer)

	for _, bad := range []string{"fast", "=1:2:1", "fast=1:2", "fast=a:2:1", "fast=5:1:1", "fast=1:5:0"} {
		_, err := ParseDimension(bad)
		assert.Error(t, err, bad)
	}
}

func TestCoordinateDescentFindsMinimum(t *testing.T) {
	var calls int
	dims := []Dimension{
		{Name: "fast", Min: 2, Max: 30, Step: 4, Integer: true},
		{Name: "slow", Min: 20, Max: 80, Step: 8, Integer: true},
	}
	cd, err := NewCoordinateDescent(DefaultOptimizerConfig(), dims, bowl(&calls))
	require.NoError(t, err)

	start := domain.NewParameterSet(map[string]float64{"fast": 5, "slow": 60, "volume": 1}, standard)
	res, err := cd.Minimize(context.Background(), start)
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Equal(t, 12.0, res.BestParams["fast"])
	assert.Equal(t, 40.0, res.BestParams["slow"])
	assert.Equal(t, 1.0, res.BestParams["volume"], "non-searched parameters are carried through")
	assert.Equal(t, 0.0, res.BestLoss)
	assert.Equal(t, calls, res.Evaluations)
	assert.Equal(t, standard, res.Best.Scenario())
}

func TestCoordinateDescentDeterministic(t *testing.T) {
	dims := []Dimension{{Name: "fast", Min: 0, Max: 20, Step: 2.5}, {Name: "slow", Min: 30, Max: 60, Step: 5}}
	run := func() OptimizationResult {
		var calls int
		cd, err := NewCoordinateDescent(DefaultOptimizerConfig(), dims, bowl(&calls))
		require.NoError(t, err)
		res, err := cd.Minimize(context.Background(), domain.NewParameterSet(nil, standard))
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()
	assert.Equal(t, a.History, b.History)
	assert.Equal(t, a.BestParams, b.BestParams)
}

func TestCoordinateDescentBudget(t *testing.T) {
	var calls int
	cfg := DefaultOptimizerConfig()
	cfg.MaxEvaluations = 5
	cd, err := NewCoordinateDescent(cfg, []Dimension{{Name: "fast", Min: 0, Max: 1000, Step: 1, Integer: true}}, bowl(&calls))
	require.NoError(t, err)

	res, err := cd.Minimize(context.Background(), domain.NewParameterSet(map[string]float64{"fast": 900, "slow": 40}, standard))
	require.NoError(t, err)
	assert.Equal(t, 5, res.Evaluations)
	assert.Equal(t, 5, calls)
	assert.False(t, res.Converged)
	assert.Equal(t, 898.0, res.BestParams["fast"])
}

func TestCoordinateDescentPropagatesErrors(t *testing.T) {
	fail := errors.New("sweep failed")
	loss := func(ctx context.Context, p domain.ParameterSet) (float64, error) { return 0, fail }
	cd, err := NewCoordinateDescent(DefaultOptimizerConfig(), []Dimension{{Name: "fast", Min: 1, Max: 5, Step: 1}}, loss)
	require.NoError(t, err)

	_, err = cd.Minimize(context.Background(), domain.ParameterSet{})
	assert.ErrorIs(t, err, fail)
}

func TestNewCoordinateDescentValidates(t *testing.T) {
	var calls int
	_, err := NewCoordinateDescent(DefaultOptimizerConfig(), nil, bowl(&calls))
	assert.Error(t, err)

	dup := []Dimension{{Name: "fast", Min: 1, Max: 2, Step: 1}, {Name: "fast", Min: 1, Max: 2, Step: 1}}
	_, err = NewCoordinateDescent(DefaultOptimizerConfig(), dup, bowl(&calls))
	assert.Error(t, err)
}
