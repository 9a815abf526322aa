package pci

import (
	"math"

	"github.com/montanaflynn/stats"

	"gofactor/domain/factorial"
)

// Epsilon keeps the PCI denominator away from zero
const Epsilon = 1e-9

// Result holds the pairwise complementarity index of one decomposition.
// Positive values are synergistic, negative antagonistic. Cells with an
// undefined interaction are absent.
type Result struct {
	Pair             factorial.FactorPair          `json:"pair"`
	Cells            map[factorial.CellKey]float64 `json:"cells"`
	Aggregate        float64                       `json:"aggregate"`
	AggregateDefined bool                          `json:"aggregate_defined"`

	// Σ|interaction| / Σ|cell value| over present cells
	Simple float64 `json:"simple"`

	// Population variances of the cell values and their parts
	InteractionVariance float64 `json:"interaction_variance"`
	AdditiveVariance    float64 `json:"additive_variance"`
	TotalVariance       float64 `json:"total_variance"`
}

// At returns the PCI of one cell
func (r *Result) At(a, b string) (float64, bool) {
	v, ok := r.Cells[factorial.CellKey{A: a, B: b}]
	return v, ok
}

// VarianceShare is the fraction of cell-value variance carried by the interaction
func (r *Result) VarianceShare() float64 {
	if r.TotalVariance <= 0 {
		return 0
	}
	return r.InteractionVariance / r.TotalVariance
}

// Compute is a pure function of the decomposition
func Compute(d *factorial.Decomposition) *Result {
	res := &Result{Pair: d.Pair, Cells: make(map[factorial.CellKey]float64)}

	var weighted, weight, sumAbsI, sumAbsCell float64
	var cellValues, additive, interactions []float64
	for _, key := range d.PresentCells() {
		inter := d.Interaction[key]
		ma, okA := d.MainA[key.A]
		mb, okB := d.MainB[key.B]
		if !okA || !okB {
			continue
		}
		p := inter / (math.Abs(ma) + math.Abs(mb) + Epsilon)
		res.Cells[key] = p

		n := float64(d.Counts[key])
		weighted += n * p
		weight += n

		add := d.GrandMean + ma + mb
		sumAbsI += math.Abs(inter)
		sumAbsCell += math.Abs(add + inter)
		cellValues = append(cellValues, add+inter)
		additive = append(additive, add)
		interactions = append(interactions, inter)
	}

	if weight > 0 {
		res.Aggregate = weighted / weight
		res.AggregateDefined = true
	}
	if sumAbsCell > Epsilon {
		res.Simple = sumAbsI / sumAbsCell
	}
	if len(cellValues) > 0 {
		res.TotalVariance, _ = stats.PopulationVariance(cellValues)
		res.AdditiveVariance, _ = stats.PopulationVariance(additive)
		res.InteractionVariance, _ = stats.PopulationVariance(interactions)
	}
	return res
}

// ForModel computes one result per pair, in model order
func ForModel(m *factorial.PairwiseModel) []*Result {
	out := make([]*Result, len(m.Pairs))
	for i, d := range m.Pairs {
		out[i] = Compute(d)
	}
	return out
}
