package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofactor/domain/core"
	"gofactor/domain/factorial"
	"gofactor/domain/selection"
	"gofactor/domain/stats"
	"gofactor/internal/config"
	"gofactor/internal/testkit"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Bootstrap.Replicates = 40
	cfg.Bootstrap.Workers = 2
	cfg.Optimizer.Budget = 2
	return cfg
}

func TestAnalyze_CellMeans(t *testing.T) {
	kit := testkit.NewTestKit()
	svc, err := NewAnalysisService(testConfig(), kit.RunRepository(), nil)
	require.NoError(t, err)

	ds := kit.Dataset(testkit.InteractionConfig(2, 0.3, 6, 1))
	report, err := svc.Analyze(context.Background(), AnalysisRequest{Dataset: ds, Persist: true})
	require.NoError(t, err)

	require.Len(t, report.Model.Pairs, 1)
	require.Len(t, report.PCI, 1)
	assert.Nil(t, report.Diagnostics, "two factors need no diagnostics")
	assert.Equal(t, 40, report.Bootstrap.Valid)
	require.NotNil(t, report.Scores)
	assert.Len(t, report.Scores.Entries, 4)

	require.Len(t, report.Marginals, 2)
	assert.Equal(t, "A", report.Marginals[0].Factor)
	assert.Len(t, report.Marginals[1].Weighted, 2)
	require.Len(t, report.Classical, 1)
	for key, v := range report.Model.Pairs[0].Interaction {
		assert.InDelta(t, v, report.Classical[0][key], 1e-9, "balanced designs agree")
	}

	// Uniform default cost 1, budget 2: the two best cells
	require.False(t, report.Selection.IsEmpty())
	assert.LessOrEqual(t, report.Selection.TotalCost(), 2.0)
	assert.Contains(t, report.Selection.Combinations(), factorial.Combination{"a1", "b1"})

	score, ok := report.Bootstrap.CI.Get(stats.ScoreName(factorial.Combination{"a1", "b1"}))
	require.True(t, ok)
	assert.True(t, score.Lower <= score.Upper)

	assert.Equal(t, 1, kit.RunRepository().Count())
	stored, err := kit.RunRepository().GetRun(context.Background(), report.Manifest.RunID)
	require.NoError(t, err)
	assert.Equal(t, report.Selection.Indices(), stored.Selection.Indices())

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(stored.Report, &decoded))
	assert.Contains(t, decoded, "scores")
	assert.Contains(t, decoded, "bootstrap")
}

func TestAnalyze_Deterministic(t *testing.T) {
	ds := testkit.NewFactorialDataGenerator(testkit.AdditiveConfig(4, 9)).Generate()

	run := func(workers int) *Report {
		cfg := testConfig()
		cfg.Bootstrap.Workers = workers
		svc, err := NewAnalysisService(cfg, nil, nil)
		require.NoError(t, err)
		report, err := svc.Analyze(context.Background(), AnalysisRequest{Dataset: ds})
		require.NoError(t, err)
		return report
	}

	a, b := run(1), run(4)
	assert.Equal(t, a.Bootstrap.CI.Quantities, b.Bootstrap.CI.Quantities)
	assert.Equal(t, a.Selection, b.Selection)
	assert.Equal(t, a.Manifest.Fingerprint, b.Manifest.Fingerprint)
}

func TestAnalyze_ShapFitThreeFactors(t *testing.T) {
	cfg := testConfig()
	cfg.Estimation.Path = factorial.PathShapFit
	cfg.Optimizer.Mode = selection.ModeBeam
	svc, err := NewAnalysisService(cfg, nil, nil)
	require.NoError(t, err)
	svc.WithRNG(testkit.NewTestKit().RNGAdapter())

	gen := testkit.ThreeFactorConfig(0.2, 3, 2)
	gen.Attribution = true
	report, err := svc.Analyze(context.Background(), AnalysisRequest{
		Dataset: testkit.NewFactorialDataGenerator(gen).Generate(),
		Costs:   factorial.CostTable{"a1|b2|c0": 0.5},
	})
	require.NoError(t, err)

	assert.Equal(t, factorial.PathShapFit, report.Manifest.Path)
	require.Len(t, report.Model.Pairs, 3)
	require.NotNil(t, report.Diagnostics)
	assert.Len(t, report.Diagnostics.Ablation, 3)
	assert.False(t, report.Diagnostics.HigherOrderSuspected())
	for _, w := range report.Warnings {
		assert.NotContains(t, w, "higher-order")
	}
	assert.Len(t, report.Scores.Entries, 12)

	entry, ok := report.Scores.Lookup("a1|b2|c0")
	require.True(t, ok)
	assert.Equal(t, 0.5, entry.Cost)
	assert.Equal(t, selection.ModeBeam, report.Selection.Mode())
}

func TestAnalyze_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig()
		cfg.Scoring.Kappa = -1
		_, err := NewAnalysisService(cfg, nil, nil)
		assert.True(t, core.IsConfigurationError(err))
	})

	t.Run("sf path without attribution", func(t *testing.T) {
		cfg := testConfig()
		cfg.Estimation.Path = factorial.PathShapFit
		svc, err := NewAnalysisService(cfg, nil, nil)
		require.NoError(t, err)
		_, err = svc.Analyze(ctx, AnalysisRequest{Dataset: testkit.NewFactorialDataGenerator(testkit.AdditiveConfig(2, 1)).Generate()})
		assert.True(t, core.IsDataError(err))
	})

	t.Run("persist without repository", func(t *testing.T) {
		svc, err := NewAnalysisService(testConfig(), nil, nil)
		require.NoError(t, err)
		_, err = svc.Analyze(ctx, AnalysisRequest{
			Dataset: testkit.NewFactorialDataGenerator(testkit.AdditiveConfig(2, 1)).Generate(),
			Persist: true,
		})
		assert.True(t, core.IsConfigurationError(err))
	})

	t.Run("missing dataset", func(t *testing.T) {
		svc, err := NewAnalysisService(testConfig(), nil, nil)
		require.NoError(t, err)
		_, err = svc.Analyze(ctx, AnalysisRequest{})
		assert.True(t, core.IsConfigurationError(err))
	})

	t.Run("unknown estimation path", func(t *testing.T) {
		cfg := testConfig()
		cfg.Estimation.Path = "xx"
		_, err := NewEstimator(cfg, nil)
		assert.True(t, core.IsConfigurationError(err))
	})

	t.Run("exhaustive guard", func(t *testing.T) {
		cfg := testConfig()
		cfg.Optimizer.Mode = selection.ModeExhaustive
		cfg.Optimizer.MaxCandidates = 3
		cfg.Optimizer.Budget = 100
		svc, err := NewAnalysisService(cfg, nil, nil)
		require.NoError(t, err)
		_, err = svc.Analyze(ctx, AnalysisRequest{Dataset: testkit.NewFactorialDataGenerator(testkit.AdditiveConfig(2, 1)).Generate()})
		assert.True(t, core.IsComplexityGuard(err))
	})
}
