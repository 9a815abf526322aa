package score

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofactor/domain/core"
	"gofactor/domain/factorial"
	"gofactor/domain/selection"
	"gofactor/domain/stats"
	"gofactor/internal/effects"
	"gofactor/internal/pairwise"
	"gofactor/internal/testkit"
)

func model(t *testing.T, cfg testkit.FactorialGeneratorConfig) *factorial.PairwiseModel {
	t.Helper()
	ds := testkit.NewFactorialDataGenerator(cfg).Generate()
	m, err := pairwise.NewBuilder(effects.NewCellMeansEstimator(effects.DefaultOptions(), nil), 0, nil).
		Build(context.Background(), ds)
	require.NoError(t, err)
	return m
}

func TestScore_TwoFactor(t *testing.T) {
	m := model(t, testkit.InteractionConfig(1, 0, 2, 1))
	u := stats.NewUncertaintyTable(1)
	u.Pairs[0][factorial.CellKey{A: "a1", B: "b1"}] = 0.5

	opts := Options{Kappa: 2, Rho: 1, Direction: selection.Maximize, NormalizeCosts: false, DefaultCost: 1}
	engine, err := NewEngine(opts, nil)
	require.NoError(t, err)

	matrix, err := engine.Score(m, u, factorial.CostTable{"a1|b1": 3})
	require.NoError(t, err)
	require.Len(t, matrix.Entries, 4)

	best, ok := matrix.Lookup("a1|b1")
	require.True(t, ok)
	// f̃ = 9, u = 0.5, cost = 3
	assert.InDelta(t, 9-2*0.5-3, best.Score, 1e-9)
	assert.InDelta(t, 3.0, best.Cost, 1e-12)

	plain, _ := matrix.Lookup("a0|b0")
	assert.InDelta(t, 5.0-1.0, plain.Score, 1e-9, "default cost 1, zero uncertainty")
}

func TestScore_MinimizeAndNormalize(t *testing.T) {
	m := model(t, testkit.InteractionConfig(0, 0, 1, 1))
	engine, err := NewEngine(Options{Kappa: 0, Rho: 1, Direction: selection.Minimize, NormalizeCosts: true, DefaultCost: 1}, nil)
	require.NoError(t, err)

	matrix, err := engine.Score(m, nil, factorial.CostTable{"a0|b0": 4, "a1|b1": 2})
	require.NoError(t, err)

	e, _ := matrix.Lookup("a0|b0")
	assert.InDelta(t, 1.0, e.ScoredCost, 1e-12)
	assert.InDelta(t, -5.0-1.0, e.Score, 1e-9)

	e, _ = matrix.Lookup("a1|b1")
	assert.InDelta(t, 0.5, e.ScoredCost, 1e-12)
	assert.InDelta(t, 2.0, e.Cost, 1e-12)
	assert.InDelta(t, -8.0-0.5, e.Score, 1e-9)
}

func TestScore_ThreeFactorAverage(t *testing.T) {
	m := model(t, testkit.ThreeFactorConfig(0, 1, 1))
	engine, err := NewEngine(Options{Kappa: 1, Direction: selection.Maximize, DefaultCost: 0}, nil)
	require.NoError(t, err)

	u := stats.NewUncertaintyTable(3)
	u.Pairs[2][factorial.CellKey{A: "b0", B: "c0"}] = 0.3

	matrix, err := engine.Score(m, u, nil)
	require.NoError(t, err)
	require.Len(t, matrix.Entries, 12)

	combo := factorial.Combination{"a0", "b0", "c0"}
	e, ok := matrix.Lookup(combo.Key())
	require.True(t, ok)
	preds, _ := m.PairPredictions(combo)
	require.Len(t, e.PairPredictions, 3)
	assert.InDelta(t, (preds[0]+preds[1]+preds[2])/3, e.Prediction, 1e-9)
	assert.InDelta(t, (preds[0]+preds[1]+preds[2]-0.3)/3, e.Score, 1e-9)
	assert.InDelta(t, 0.1, e.Uncertainty, 1e-12)
}

func TestScore_SkipsMissingCells(t *testing.T) {
	cfg := testkit.AdditiveConfig(2, 1)
	cfg.CellSizes = map[string]int{"a1|b0": 0}
	engine, err := NewEngine(DefaultOptions(), nil)
	require.NoError(t, err)

	matrix, err := engine.Score(model(t, cfg), nil, nil)
	require.NoError(t, err)
	assert.Len(t, matrix.Entries, 5)
	_, ok := matrix.Lookup("a1|b0")
	assert.False(t, ok)
}

func TestScore_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"negative kappa", Options{Kappa: -1, Direction: selection.Maximize}},
		{"negative rho", Options{Rho: -0.1, Direction: selection.Maximize}},
		{"bad direction", Options{Direction: "sideways"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.opts, nil)
			assert.True(t, core.IsConfigurationError(err))
		})
	}

	engine, err := NewEngine(DefaultOptions(), nil)
	require.NoError(t, err)
	_, err = engine.Score(model(t, testkit.AdditiveConfig(1, 1)), nil, factorial.CostTable{"a0|b0": -2})
	assert.True(t, core.IsConfigurationError(err))
}
