package optimizer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"gofactor/domain/core"
	"gofactor/domain/selection"
	"gofactor/internal"
)

// Options configures the search
type Options struct {
	Mode          selection.Mode
	Budget        float64
	BeamWidth     int
	MaxCandidates int           // Exhaustive guard on candidate count
	MaxSteps      int64         // Exhaustive guard on visited subsets
	Timeout       time.Duration // Exhaustive wall clock guard, 0 disables
	MaxItems      int           // Cap on selection size, 0 means unlimited
	Workers       int
}

// DefaultOptions mirrors the configuration defaults
func DefaultOptions() Options {
	return Options{
		Mode:          selection.ModeGreedy,
		Budget:        10,
		BeamWidth:     5,
		MaxCandidates: 20,
		MaxSteps:      5_000_000,
		Timeout:       30 * time.Second,
		Workers:       4,
	}
}

func (o Options) Validate() error {
	switch {
	case !o.Mode.Valid():
		return core.NewConfigurationError("optimizer.mode", fmt.Sprintf("unknown mode %q", o.Mode))
	case o.Budget < 0 || math.IsNaN(o.Budget):
		return core.NewConfigurationError("optimizer.budget", "must be >= 0")
	case o.BeamWidth < 1:
		return core.NewConfigurationError("optimizer.beam_width", "must be >= 1")
	case o.MaxCandidates < 1:
		return core.NewConfigurationError("optimizer.max_exhaustive_candidates", "must be >= 1")
	case o.MaxSteps < 1:
		return core.NewConfigurationError("optimizer.max_exhaustive_steps", "must be >= 1")
	case o.Timeout < 0:
		return core.NewConfigurationError("optimizer.exhaustive_timeout", "must be >= 0")
	case o.MaxItems < 0:
		return core.NewConfigurationError("optimizer.max_items", "must be >= 0")
	}
	return nil
}

// itemLimit is the largest selection size worth searching among n candidates
func (o Options) itemLimit(n int) int {
	if o.MaxItems > 0 && o.MaxItems < n {
		return o.MaxItems
	}
	return n
}

// Optimizer selects a budget-feasible subset of scored candidates that
// maximizes the total score.
type Optimizer struct {
	opts   Options
	logger *internal.Logger
}

// New validates the options and creates an optimizer
func New(opts Options, logger *internal.Logger) (*Optimizer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Optimizer{opts: opts, logger: logger.OrDefault().WithComponent("optimizer")}, nil
}

// Optimize runs the configured mode. An infeasible budget yields an empty
// Selection, never an error.
func (o *Optimizer) Optimize(ctx context.Context, matrix *selection.ScoreMatrix) (selection.Selection, error) {
	if matrix == nil {
		return selection.EmptySelection(o.opts.Mode, o.opts.Budget, "no candidates", 0), nil
	}
	p := newProblem(matrix, o.opts.Budget)
	if len(p.feasible) == 0 {
		reason := "every candidate exceeds the budget"
		if len(matrix.Entries) == 0 {
			reason = "no candidates"
		}
		return selection.EmptySelection(o.opts.Mode, o.opts.Budget, reason, 0), nil
	}

	var best subset
	var steps int64
	var err error
	switch o.opts.Mode {
	case selection.ModeExhaustive:
		best, steps, err = o.exhaustive(ctx, p)
	case selection.ModeBeam:
		best, steps, err = o.beam(ctx, p)
	default:
		best, steps = o.greedy(p)
	}
	if err != nil {
		return selection.Selection{}, err
	}

	sel := p.selection(o.opts.Mode, best, steps)
	o.logger.Info("%s", sel)
	return sel, nil
}

// problem is the candidate list of one optimization
type problem struct {
	entries  []selection.ScoreEntry
	budget   float64
	feasible []int // candidates whose own cost fits the budget, ascending
}

func newProblem(matrix *selection.ScoreMatrix, budget float64) *problem {
	p := &problem{entries: matrix.Entries, budget: budget}
	for i, e := range matrix.Entries {
		if e.Cost <= budget && !math.IsNaN(e.Score) {
			p.feasible = append(p.feasible, i)
		}
	}
	return p
}

// subset is a set of candidate indices, ascending, with totals summed in that
// order so that they match the final Selection exactly.
type subset struct {
	indices []int
	score   float64
	cost    float64
}

func (p *problem) subset(indices []int) subset {
	s := subset{indices: append([]int(nil), indices...)}
	sort.Ints(s.indices)
	for _, i := range s.indices {
		s.score += p.entries[i].Score
		s.cost += p.entries[i].Cost
	}
	return s
}

// with returns s ∪ {i}
func (p *problem) with(s subset, i int) subset {
	return p.subset(append(append(make([]int, 0, len(s.indices)+1), s.indices...), i))
}

func (s subset) contains(i int) bool {
	k := sort.SearchInts(s.indices, i)
	return k < len(s.indices) && s.indices[k] == i
}

func (s subset) key() string {
	parts := make([]string, len(s.indices))
	for k, i := range s.indices {
		parts[k] = strconv.Itoa(i)
	}
	return strings.Join(parts, ",")
}

// better orders subsets: higher score, lower cost, fewer items, then
// lexicographically smaller indices.
func better(a, b subset) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.cost != b.cost {
		return a.cost < b.cost
	}
	if len(a.indices) != len(b.indices) {
		return len(a.indices) < len(b.indices)
	}
	for k := range a.indices {
		if a.indices[k] != b.indices[k] {
			return a.indices[k] < b.indices[k]
		}
	}
	return false
}

func (p *problem) selection(mode selection.Mode, best subset, steps int64) selection.Selection {
	if len(best.indices) == 0 || best.score <= 0 {
		return selection.EmptySelection(mode, p.budget, "no candidate improves the objective", steps)
	}
	items := make([]selection.ScoreEntry, len(best.indices))
	for k, i := range best.indices {
		items[k] = p.entries[i]
	}
	return selection.NewSelection(mode, p.budget, items, best.indices, steps)
}
