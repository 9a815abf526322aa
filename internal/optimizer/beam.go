package optimizer

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
)

// beam keeps the top BeamWidth partial selections. Each round expands every
// kept partial by every unused candidate that fits, concurrently per partial;
// after the barrier the expansions are deduplicated as sets and pruned to the
// global top-k. The search stops when no expansion is feasible or none beats
// the best selection seen so far. Each round adds one item, so MaxItems
// bounds the number of rounds.
func (o *Optimizer) beam(ctx context.Context, p *problem) (subset, int64, error) {
	frontier := []subset{{}}
	var best subset
	var steps int64

	rounds := o.opts.itemLimit(len(p.feasible))
	for round := 0; round < rounds; round++ {
		expansions := make([][]subset, len(frontier))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.opts.Workers)
		for k, partial := range frontier {
			k, partial := k, partial
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				var out []subset
				for _, i := range p.feasible {
					if partial.contains(i) || partial.cost+p.entries[i].Cost > p.budget {
						continue
					}
					next := p.with(partial, i)
					if next.cost <= p.budget {
						out = append(out, next)
					}
				}
				expansions[k] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return subset{}, steps, err
		}

		seen := make(map[string]bool)
		var pool []subset
		for _, out := range expansions {
			for _, s := range out {
				steps++
				if key := s.key(); !seen[key] {
					seen[key] = true
					pool = append(pool, s)
				}
			}
		}
		if len(pool) == 0 {
			break
		}
		sort.Slice(pool, func(x, y int) bool { return better(pool[x], pool[y]) })
		if !better(pool[0], best) {
			break
		}
		best = pool[0]
		if len(pool) > o.opts.BeamWidth {
			pool = pool[:o.opts.BeamWidth]
		}
		frontier = pool
	}

	o.logger.Debug("beam: width %d, %d expansions evaluated", o.opts.BeamWidth, steps)
	return best, steps, nil
}
