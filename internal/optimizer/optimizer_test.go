package optimizer

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofactor/domain/core"
	"gofactor/domain/factorial"
	"gofactor/domain/selection"
)

func matrix(scores, costs []float64) *selection.ScoreMatrix {
	m := &selection.ScoreMatrix{Direction: selection.Maximize}
	for i := range scores {
		m.Entries = append(m.Entries, selection.ScoreEntry{
			Combination: factorial.Combination{fmt.Sprintf("a%d", i), "b0"},
			Score:       scores[i],
			Cost:        costs[i],
		})
	}
	return m
}

func randomMatrix(rng *rand.Rand, n int) *selection.ScoreMatrix {
	scores := make([]float64, n)
	costs := make([]float64, n)
	for i := range scores {
		scores[i] = rng.NormFloat64() + 0.5
		costs[i] = 0.5 + 3*rng.Float64()
	}
	return matrix(scores, costs)
}

func run(t *testing.T, opts Options, m *selection.ScoreMatrix) selection.Selection {
	t.Helper()
	o, err := New(opts, nil)
	require.NoError(t, err)
	sel, err := o.Optimize(context.Background(), m)
	require.NoError(t, err)
	return sel
}

func withMode(mode selection.Mode, budget float64) Options {
	opts := DefaultOptions()
	opts.Mode = mode
	opts.Budget = budget
	return opts
}

func TestOptimize_HandInstance(t *testing.T) {
	m := matrix([]float64{5, 4, 3, 1}, []float64{4, 3, 2, 1})

	ex := run(t, withMode(selection.ModeExhaustive, 6), m)
	assert.Equal(t, []int{0, 2}, ex.Indices(), "ties on score and cost prefer fewer items")
	assert.InDelta(t, 8.0, ex.TotalScore(), 1e-12)
	assert.InDelta(t, 6.0, ex.TotalCost(), 1e-12)

	gr := run(t, withMode(selection.ModeGreedy, 6), m)
	assert.Equal(t, []int{1, 2, 3}, gr.Indices())
	assert.InDelta(t, 8.0, gr.TotalScore(), 1e-12)

	opts := withMode(selection.ModeBeam, 6)
	opts.BeamWidth = 1
	bm := run(t, opts, m)
	assert.Equal(t, []int{0, 2}, bm.Indices())
	assert.Equal(t, []factorial.Combination{{"a0", "b0"}, {"a2", "b0"}}, bm.Combinations())
}

func TestOptimize_EmptySelection(t *testing.T) {
	modes := []selection.Mode{selection.ModeExhaustive, selection.ModeGreedy, selection.ModeBeam}

	t.Run("budget below every cost", func(t *testing.T) {
		m := matrix([]float64{3, 2}, []float64{5, 6})
		for _, mode := range modes {
			sel := run(t, withMode(mode, 4), m)
			assert.True(t, sel.IsEmpty(), mode)
			assert.Equal(t, "every candidate exceeds the budget", sel.Reason())
			assert.Zero(t, sel.TotalCost())
		}
	})

	t.Run("no positive score", func(t *testing.T) {
		m := matrix([]float64{-1, -0.5}, []float64{1, 1})
		for _, mode := range modes {
			sel := run(t, withMode(mode, 10), m)
			assert.True(t, sel.IsEmpty(), mode)
			assert.Zero(t, sel.TotalScore())
		}
	})

	t.Run("nil matrix", func(t *testing.T) {
		sel := run(t, DefaultOptions(), nil)
		assert.True(t, sel.IsEmpty())
	})
}

func TestGreedy_FreeCandidateFirst(t *testing.T) {
	m := matrix([]float64{0.1, 10, 2}, []float64{0, 5, 1})
	sel := run(t, withMode(selection.ModeGreedy, 1), m)
	assert.Equal(t, []int{0, 2}, sel.Indices())
}

func TestExhaustive_ComplexityGuard(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	t.Run("candidate count", func(t *testing.T) {
		opts := withMode(selection.ModeExhaustive, 1000)
		o, err := New(opts, nil)
		require.NoError(t, err)
		_, err = o.Optimize(context.Background(), randomMatrix(rng, 25))
		require.Error(t, err)
		assert.True(t, core.IsComplexityGuard(err))

		var guard *core.ComplexityGuardError
		require.ErrorAs(t, err, &guard)
		assert.Equal(t, 25, guard.Candidates)
		assert.Equal(t, 20, guard.Limit)
	})

	t.Run("step limit", func(t *testing.T) {
		opts := withMode(selection.ModeExhaustive, 1000)
		opts.MaxSteps = 10
		o, err := New(opts, nil)
		require.NoError(t, err)
		_, err = o.Optimize(context.Background(), randomMatrix(rng, 10))
		assert.True(t, core.IsComplexityGuard(err))
	})

	t.Run("timeout", func(t *testing.T) {
		opts := withMode(selection.ModeExhaustive, 1e9)
		opts.Timeout = time.Nanosecond
		o, err := New(opts, nil)
		require.NoError(t, err)
		_, err = o.Optimize(context.Background(), randomMatrix(rng, 20))
		assert.True(t, core.IsComplexityGuard(err))
	})
}

func TestOptimize_Deterministic(t *testing.T) {
	m := randomMatrix(rand.New(rand.NewSource(17)), 14)
	for _, mode := range []selection.Mode{selection.ModeExhaustive, selection.ModeGreedy, selection.ModeBeam} {
		t.Run(string(mode), func(t *testing.T) {
			opts := withMode(mode, 8)
			opts.Workers = 1
			first := run(t, opts, m)
			for _, workers := range []int{1, 3, 8} {
				opts.Workers = workers
				assert.Equal(t, first, run(t, opts, m))
			}
		})
	}
}

func TestOptimize_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for trial := 0; trial < 30; trial++ {
		n := 4 + rng.Intn(9)
		budget := 1 + 6*rng.Float64()
		m := randomMatrix(rng, n)

		ex := run(t, withMode(selection.ModeExhaustive, budget), m)
		gr := run(t, withMode(selection.ModeGreedy, budget), m)
		assert.GreaterOrEqual(t, ex.TotalScore()+1e-9, gr.TotalScore(), "trial %d", trial)
		assert.GreaterOrEqual(t, gr.TotalScore(), 0.0)
		assert.LessOrEqual(t, ex.TotalCost(), budget)
		assert.LessOrEqual(t, gr.TotalCost(), budget)

		for _, width := range []int{1, 2, 5} {
			opts := withMode(selection.ModeBeam, budget)
			opts.BeamWidth = width
			bm := run(t, opts, m)
			assert.GreaterOrEqual(t, ex.TotalScore()+1e-9, bm.TotalScore(), "trial %d width %d", trial, width)
			assert.LessOrEqual(t, bm.TotalCost(), budget)
		}
	}
}

func TestOptimize_MaxItems(t *testing.T) {
	m := matrix([]float64{5, 4, 3, 1}, []float64{4, 3, 2, 1})

	tests := []struct {
		mode     selection.Mode
		maxItems int
		want     []int
		score    float64
	}{
		{selection.ModeExhaustive, 1, []int{0}, 5},
		{selection.ModeExhaustive, 2, []int{0, 2}, 8},
		{selection.ModeGreedy, 1, []int{2}, 3},
		{selection.ModeGreedy, 2, []int{1, 2}, 7},
		{selection.ModeGreedy, 0, []int{1, 2, 3}, 8},
		{selection.ModeBeam, 1, []int{0}, 5},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.mode, tt.maxItems), func(t *testing.T) {
			opts := withMode(tt.mode, 6)
			opts.BeamWidth = 1
			opts.MaxItems = tt.maxItems
			sel := run(t, opts, m)
			assert.Equal(t, tt.want, sel.Indices())
			assert.InDelta(t, tt.score, sel.TotalScore(), 1e-12)
		})
	}

	rng := rand.New(rand.NewSource(5))
	for trial := 0; trial < 20; trial++ {
		m := randomMatrix(rng, 6+rng.Intn(6))
		limit := 1 + rng.Intn(3)
		results := make(map[selection.Mode]selection.Selection)
		for _, mode := range []selection.Mode{selection.ModeExhaustive, selection.ModeGreedy, selection.ModeBeam} {
			opts := withMode(mode, 6)
			opts.MaxItems = limit
			results[mode] = run(t, opts, m)
			assert.LessOrEqual(t, results[mode].Len(), limit, "trial %d %s", trial, mode)
		}
		ex := results[selection.ModeExhaustive].TotalScore()
		assert.GreaterOrEqual(t, ex+1e-9, results[selection.ModeGreedy].TotalScore(), "trial %d", trial)
		assert.GreaterOrEqual(t, ex+1e-9, results[selection.ModeBeam].TotalScore(), "trial %d", trial)
	}
}

func TestNew_RejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Options)
		field string
	}{
		{"mode", func(o *Options) { o.Mode = "random" }, "optimizer.mode"},
		{"budget", func(o *Options) { o.Budget = -1 }, "optimizer.budget"},
		{"beam width", func(o *Options) { o.BeamWidth = 0 }, "optimizer.beam_width"},
		{"max steps", func(o *Options) { o.MaxSteps = 0 }, "optimizer.max_exhaustive_steps"},
		{"max items", func(o *Options) { o.MaxItems = -1 }, "optimizer.max_items"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.edit(&opts)
			_, err := New(opts, nil)
			var cfgErr *core.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}
