package optimizer

import (
	"math"
	"sort"
)

// ratio is score per unit cost; a free candidate ranks first
func ratio(score, cost float64) float64 {
	if cost == 0 {
		return math.Inf(1)
	}
	return score / cost
}

// greedy adds candidates by descending score/cost ratio, ties broken by lower
// cost then lower index, skipping those that no longer fit and stopping at
// MaxItems. Only candidates
// with a positive score improve the objective.
func (o *Optimizer) greedy(p *problem) (subset, int64) {
	var order []int
	for _, i := range p.feasible {
		if p.entries[i].Score > 0 {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(x, y int) bool {
		a, b := p.entries[order[x]], p.entries[order[y]]
		ra, rb := ratio(a.Score, a.Cost), ratio(b.Score, b.Cost)
		if ra != rb {
			return ra > rb
		}
		if a.Cost != b.Cost {
			return a.Cost < b.Cost
		}
		return order[x] < order[y]
	})

	limit := o.opts.itemLimit(len(order))
	var chosen subset
	var steps int64
	for _, i := range order {
		if len(chosen.indices) >= limit {
			break
		}
		steps++
		next := p.with(chosen, i)
		if next.cost <= p.budget {
			chosen = next
		}
	}
	o.logger.Debug("greedy: %d positive candidates, %d chosen", len(order), len(chosen.indices))
	return chosen, steps
}
