package factorial

import "errors"

// Path names an estimation path
type Path string

const (
	PathCellMeans Path = "cm"
	PathShapFit   Path = "sf"
)

// Valid reports whether p is a known path
func (p Path) Valid() bool {
	return p == PathCellMeans || p == PathShapFit
}

// Decomposition is the additive-plus-interaction breakdown of one pairwise
// table. An absent interaction entry means the cell is missing, not zero.
// Decompositions are never mutated after an estimator returns them.
type Decomposition struct {
	Path        Path                `json:"path"`
	Pair        FactorPair          `json:"pair"`
	A           Factor              `json:"a"`
	B           Factor              `json:"b"`
	GrandMean   float64             `json:"grand_mean"`
	MainA       map[string]float64  `json:"main_a"`
	MainB       map[string]float64  `json:"main_b"`
	Interaction map[CellKey]float64 `json:"interaction"`
	Counts      map[CellKey]int     `json:"counts"`
	Table       *CellTable          `json:"-"`
	MSE         float64             `json:"mse"`
	Warnings    []error             `json:"-"`
}

// InteractionAt returns the interaction of a cell, false if missing
func (d *Decomposition) InteractionAt(a, b string) (float64, bool) {
	v, ok := d.Interaction[CellKey{A: a, B: b}]
	return v, ok
}

// Additive is grand + mainA + mainB, defined whenever both levels were seen
func (d *Decomposition) Additive(a, b string) (float64, bool) {
	ma, okA := d.MainA[a]
	mb, okB := d.MainB[b]
	if !okA || !okB {
		return 0, false
	}
	return d.GrandMean + ma + mb, true
}

// Predict reconstructs the cell value; missing cells have no prediction
func (d *Decomposition) Predict(a, b string) (float64, bool) {
	inter, ok := d.InteractionAt(a, b)
	if !ok {
		return 0, false
	}
	add, ok := d.Additive(a, b)
	if !ok {
		return 0, false
	}
	return add + inter, true
}

// PresentCells lists cells with a defined interaction, in grid order
func (d *Decomposition) PresentCells() []CellKey {
	var keys []CellKey
	for _, a := range d.A.Levels {
		for _, b := range d.B.Levels {
			key := CellKey{A: a, B: b}
			if _, ok := d.Interaction[key]; ok {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// HasWarning reports whether any attached warning matches target
func (d *Decomposition) HasWarning(target error) bool {
	for _, w := range d.Warnings {
		if errors.Is(w, target) {
			return true
		}
	}
	return false
}

// WarningMessages renders warnings for reports
func (d *Decomposition) WarningMessages() []string {
	msgs := make([]string, 0, len(d.Warnings))
	for _, w := range d.Warnings {
		msgs = append(msgs, w.Error())
	}
	return msgs
}

// PairwiseModel is the set of decompositions for every factor pair, in
// Dataset.Pairs() order. With two factors it holds a single decomposition.
type PairwiseModel struct {
	Factors []Factor         `json:"factors"`
	Pairs   []*Decomposition `json:"pairs"`
}

// Decomposition returns the decomposition of factors (i, j), i < j
func (m *PairwiseModel) Decomposition(i, j int) *Decomposition {
	for _, d := range m.Pairs {
		if d.Pair.I == i && d.Pair.J == j {
			return d
		}
	}
	return nil
}

// PairPredictions returns f̃ for every pair the combination touches. ok is
// false if any pairwise prediction is missing.
func (m *PairwiseModel) PairPredictions(c Combination) ([]float64, bool) {
	preds := make([]float64, len(m.Pairs))
	for i, d := range m.Pairs {
		p, ok := d.Predict(c[d.Pair.I], c[d.Pair.J])
		if !ok {
			return nil, false
		}
		preds[i] = p
	}
	return preds, true
}

// Main returns the main effect of a level of factor fi, taken from the
// first pair containing the factor.
func (m *PairwiseModel) Main(fi int, level string) (float64, bool) {
	for _, d := range m.Pairs {
		if d.Pair.I == fi {
			v, ok := d.MainA[level]
			return v, ok
		}
		if d.Pair.J == fi {
			v, ok := d.MainB[level]
			return v, ok
		}
	}
	return 0, false
}

// Predict is the pairwise-only model of a full combination:
// grand + Σ main + Σ pairwise interactions. Missing interactions contribute 0.
func (m *PairwiseModel) Predict(c Combination) (float64, bool) {
	if len(m.Pairs) == 0 {
		return 0, false
	}
	total := m.Pairs[0].GrandMean
	for fi := range m.Factors {
		v, ok := m.Main(fi, c[fi])
		if !ok {
			return 0, false
		}
		total += v
	}
	for _, d := range m.Pairs {
		if inter, ok := d.InteractionAt(c[d.Pair.I], c[d.Pair.J]); ok {
			total += inter
		}
	}
	return total, true
}

// Warnings collects the warnings of all pairs
func (m *PairwiseModel) Warnings() []error {
	var out []error
	for _, d := range m.Pairs {
		out = append(out, d.Warnings...)
	}
	return out
}

// Value is the per-sample target an estimation path reconstructs
func (r Record) Value(path Path) float64 {
	if path == PathShapFit {
		return r.AttributionTotal()
	}
	return r.Outcome
}
