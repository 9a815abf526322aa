package shapfit

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofactor/domain/core"
	"gofactor/domain/factorial"
	"gofactor/internal/effects"
	"gofactor/internal/testkit"
)

var pairAB = factorial.FactorPair{I: 0, J: 1}

func attributionData(cfg testkit.FactorialGeneratorConfig) *factorial.Dataset {
	cfg.Attribution = true
	return testkit.NewFactorialDataGenerator(cfg).Generate()
}

func TestFit_RecoversCellMeans(t *testing.T) {
	ds := attributionData(testkit.InteractionConfig(1.5, 0.2, 30, 7))
	require.NoError(t, ds.Validate(true))

	res, err := NewEstimator(ShrinkageLow, 2, nil).Fit(context.Background(), ds, pairAB)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Rank)
	assert.Empty(t, res.Decomposition.Warnings)
	assert.Len(t, res.Predictions, len(ds.Records))

	cm, err := effects.NewCellMeansEstimator(effects.DefaultOptions(), nil).Estimate(context.Background(), ds, pairAB)
	require.NoError(t, err)

	sf := res.Decomposition
	assert.Equal(t, factorial.PathShapFit, sf.Path)
	assert.InDelta(t, cm.GrandMean, sf.GrandMean, 1e-4)
	for key, v := range cm.Interaction {
		assert.InDelta(t, v, sf.Interaction[key], 1e-4, key.String())
	}
	for level, v := range cm.MainA {
		assert.InDelta(t, v, sf.MainA[level], 1e-4)
	}
	assert.InDelta(t, cm.MSE, res.MSE, 1e-4)

	// Truth: interaction at (a1,b1) is strength/4 after centring
	inter, ok := sf.InteractionAt("a1", "b1")
	require.True(t, ok)
	assert.InDelta(t, 1.5/4, inter, 0.1)
}

func TestFit_ShrinkageTowardsMean(t *testing.T) {
	ds := attributionData(testkit.InteractionConfig(2, 0.1, 3, 2))

	low, err := NewEstimator(ShrinkageLow, 2, nil).Fit(context.Background(), ds, pairAB)
	require.NoError(t, err)
	high, err := NewEstimator(ShrinkageHigh, 2, nil).Fit(context.Background(), ds, pairAB)
	require.NoError(t, err)
	assert.Equal(t, 10.0, high.Lambda)

	var lowSpread, highSpread float64
	for _, c := range low.Decomposition.Table.Cells() {
		hc, ok := high.Decomposition.Table.Get(c.Key.A, c.Key.B)
		require.True(t, ok)
		lowSpread += math.Abs(c.Mean - low.Decomposition.GrandMean)
		highSpread += math.Abs(hc.Mean - high.Decomposition.GrandMean)
	}
	assert.Less(t, highSpread, lowSpread)
	assert.Greater(t, high.MSE, low.MSE)
}

func TestFit_RankDeficientFallback(t *testing.T) {
	cfg := testkit.AdditiveConfig(4, 3)
	cfg.CellSizes = map[string]int{"a2|b1": 0}
	ds := attributionData(cfg)

	res, err := NewEstimator(ShrinkageLow, 2, nil).Fit(context.Background(), ds, pairAB)
	require.NoError(t, err, "rank deficiency is recoverable")
	assert.Equal(t, 5, res.Rank)
	assert.Equal(t, 6, res.Columns)

	d := res.Decomposition
	require.True(t, d.HasWarning(core.ErrRankDeficient))
	var warning *core.RankDeficientWarning
	require.ErrorAs(t, d.Warnings[0], &warning)
	assert.Equal(t, []string{"(a2,b1)"}, warning.MissingCells)

	_, ok := d.Predict("a2", "b1")
	assert.False(t, ok, "unsupported cell stays missing")

	pred, ok := d.Predict("a0", "b0")
	require.True(t, ok)
	assert.InDelta(t, cfg.Truth([]int{0, 0}), pred, 1e-4)
}

func TestFit_InsufficientData(t *testing.T) {
	cfg := testkit.InteractionConfig(1, 0, 2, 1)
	cfg.CellSizes = map[string]int{"a0|b1": 0, "a1|b0": 0, "a1|b1": 0}
	ds := attributionData(cfg)

	_, err := NewEstimator(ShrinkageMid, 2, nil).Estimate(context.Background(), ds, pairAB)
	require.Error(t, err)
	assert.True(t, core.IsDataError(err))
}

func TestShrinkageLevels(t *testing.T) {
	assert.Equal(t, 1e-6, ShrinkageLow.Lambda())
	assert.Equal(t, 1.0, ShrinkageMid.Lambda())
	assert.True(t, ShrinkageHigh.Valid())
	assert.False(t, Shrinkage("extreme").Valid())
}
