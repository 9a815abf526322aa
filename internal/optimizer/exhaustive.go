package optimizer

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"gofactor/domain/core"
)

var errStepLimit = errors.New("step limit reached")

// exhaustive enumerates every feasible subset of at most MaxItems candidates. Branches are split by their
// smallest included candidate and searched concurrently; each branch keeps its
// own best and the branches are merged with the total order of better, so the
// result does not depend on scheduling.
func (o *Optimizer) exhaustive(ctx context.Context, p *problem) (subset, int64, error) {
	if len(p.feasible) > o.opts.MaxCandidates {
		return subset{}, 0, &core.ComplexityGuardError{
			Candidates: len(p.feasible),
			Limit:      o.opts.MaxCandidates,
			Suggestion: "greedy or beam mode",
		}
	}

	searchCtx := ctx
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	var steps atomic.Int64
	bests := make([]subset, len(p.feasible))
	g, gctx := errgroup.WithContext(searchCtx)
	g.SetLimit(o.opts.Workers)

	for b := range p.feasible {
		b := b
		g.Go(func() error {
			s := &branch{p: p, ctx: gctx, steps: &steps, maxSteps: o.opts.MaxSteps, maxItems: o.opts.itemLimit(len(p.feasible))}
			first := p.feasible[b]
			s.path = []int{first}
			if err := s.visit(p.entries[first].Score, p.entries[first].Cost); err != nil {
				return err
			}
			if err := s.dfs(b+1, p.entries[first].Score, p.entries[first].Cost); err != nil {
				return err
			}
			bests[b] = s.best
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return subset{}, steps.Load(), ctxErr
		}
		if errors.Is(err, errStepLimit) || errors.Is(err, context.DeadlineExceeded) {
			return subset{}, steps.Load(), &core.ComplexityGuardError{
				Candidates: len(p.feasible),
				Limit:      o.opts.MaxCandidates,
				Steps:      steps.Load(),
				Suggestion: "greedy or beam mode",
			}
		}
		return subset{}, steps.Load(), err
	}

	var best subset
	for _, s := range bests {
		if better(s, best) {
			best = s
		}
	}
	o.logger.Debug("exhaustive: %d candidates, %d subsets visited", len(p.feasible), steps.Load())
	return best, steps.Load(), nil
}

// branch is the depth-first search state of one goroutine
type branch struct {
	p        *problem
	ctx      context.Context
	steps    *atomic.Int64
	maxSteps int64
	maxItems int
	path     []int
	best     subset
}

// visit counts the current path as one step and records it when it beats the
// branch best. Totals are accumulated in ascending index order.
func (s *branch) visit(score, cost float64) error {
	n := s.steps.Add(1)
	if n > s.maxSteps {
		return errStepLimit
	}
	if n%1024 == 0 {
		if err := s.ctx.Err(); err != nil {
			return err
		}
	}
	cand := subset{indices: s.path, score: score, cost: cost}
	if len(s.best.indices) == 0 || better(cand, s.best) {
		s.best = subset{indices: append([]int(nil), s.path...), score: score, cost: cost}
	}
	return nil
}

func (s *branch) dfs(from int, score, cost float64) error {
	if len(s.path) >= s.maxItems {
		return nil
	}
	for k := from; k < len(s.p.feasible); k++ {
		i := s.p.feasible[k]
		e := s.p.entries[i]
		c := cost + e.Cost
		if c > s.p.budget {
			continue
		}
		sc := score + e.Score
		s.path = append(s.path, i)
		if err := s.visit(sc, c); err != nil {
			return err
		}
		if err := s.dfs(k+1, sc, c); err != nil {
			return err
		}
		s.path = s.path[:len(s.path)-1]
	}
	return nil
}
