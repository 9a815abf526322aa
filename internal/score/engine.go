package score

import (
	"fmt"
	"math"

	"gofactor/domain/core"
	"gofactor/domain/factorial"
	"gofactor/domain/selection"
	"gofactor/domain/stats"
	"gofactor/internal"
)

// Options are the score weights
type Options struct {
	Kappa          float64
	Rho            float64
	Direction      selection.Direction
	NormalizeCosts bool
	DefaultCost    float64
}

// DefaultOptions mirrors the configuration defaults
func DefaultOptions() Options {
	return Options{Kappa: 1, Rho: 0, Direction: selection.Maximize, NormalizeCosts: true, DefaultCost: 1}
}

// Validate rejects weights before any scoring happens
func (o Options) Validate() error {
	switch {
	case o.Kappa < 0 || math.IsNaN(o.Kappa):
		return core.NewConfigurationError("scoring.kappa", "must be >= 0")
	case o.Rho < 0 || math.IsNaN(o.Rho):
		return core.NewConfigurationError("scoring.rho", "must be >= 0")
	case !o.Direction.Valid():
		return core.NewConfigurationError("scoring.direction", fmt.Sprintf("unknown direction %q", o.Direction))
	case o.DefaultCost < 0:
		return core.NewConfigurationError("scoring.default_cost", "must be >= 0")
	}
	return nil
}

// Engine computes risk-adjusted scores
//
//	score = sign·f̃ − κ·u − ρ·cost
//
// With more than two factors the prediction and uncertainty terms are
// averaged over every pairwise table the combination participates in, which
// ignores effects beyond two-factor interactions.
type Engine struct {
	opts   Options
	logger *internal.Logger
}

// NewEngine validates the options and creates an engine
func NewEngine(opts Options, logger *internal.Logger) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Engine{opts: opts, logger: logger.OrDefault().WithComponent("score")}, nil
}

// Score implements ports.Scorer. Candidates are the combinations whose every
// pairwise prediction is defined, in factor level order.
func (e *Engine) Score(model *factorial.PairwiseModel, uncertainty *stats.UncertaintyTable, costs factorial.CostTable) (*selection.ScoreMatrix, error) {
	for key, c := range costs {
		if c < 0 || math.IsNaN(c) {
			return nil, core.NewConfigurationError("costs", fmt.Sprintf("negative cost %v for %s", c, key))
		}
	}

	ds := &factorial.Dataset{Factors: model.Factors}
	sign := e.opts.Direction.Sign()

	var entries []selection.ScoreEntry
	var maxCost float64
	for _, combo := range ds.Combinations() {
		preds, ok := model.PairPredictions(combo)
		if !ok {
			continue
		}

		var meanPred, meanU, meanTerm float64
		for i, d := range model.Pairs {
			key := factorial.CellKey{A: combo[d.Pair.I], B: combo[d.Pair.J]}
			u := uncertainty.At(i, key)
			meanPred += preds[i]
			meanU += u
			meanTerm += sign*preds[i] - e.opts.Kappa*u
		}
		n := float64(len(model.Pairs))

		cost, ok := costs[combo.Key()]
		if !ok {
			cost = e.opts.DefaultCost
		}
		if cost > maxCost {
			maxCost = cost
		}

		entries = append(entries, selection.ScoreEntry{
			Combination:     combo,
			Prediction:      meanPred / n,
			PairPredictions: preds,
			Uncertainty:     meanU / n,
			Cost:            cost,
			Score:           meanTerm / n, // cost term added below
		})
	}

	for i := range entries {
		scored := entries[i].Cost
		if e.opts.NormalizeCosts && maxCost > 0 {
			scored /= maxCost
		}
		entries[i].ScoredCost = scored
		entries[i].Score -= e.opts.Rho * scored
	}

	e.logger.Debug("scored %d candidates (κ=%g ρ=%g %s)", len(entries), e.opts.Kappa, e.opts.Rho, e.opts.Direction)
	return &selection.ScoreMatrix{
		Kappa:          e.opts.Kappa,
		Rho:            e.opts.Rho,
		Direction:      e.opts.Direction,
		NormalizeCosts: e.opts.NormalizeCosts,
		Entries:        entries,
	}, nil
}
