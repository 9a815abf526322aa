package stats

import (
	"fmt"

	"gofactor/domain/factorial"
)

// ============================================================================
// BOOTSTRAP SUMMARIES
// ============================================================================

// QuantityKind classifies a derived scalar
type QuantityKind string

const (
	KindGrandMean    QuantityKind = "grand_mean"
	KindMainEffect   QuantityKind = "main_effect"
	KindInteraction  QuantityKind = "interaction"
	KindPrediction   QuantityKind = "prediction"
	KindPCI          QuantityKind = "pci"
	KindAggregatePCI QuantityKind = "aggregate_pci"
	KindScore        QuantityKind = "score"
)

// Quantity is the bootstrap summary of one derived scalar.
// INVARIANTS:
// - Lower <= Upper
// - Replicates counts the valid replicates the interval was computed from
type Quantity struct {
	Name       string       `json:"name"`
	Kind       QuantityKind `json:"kind"`
	Estimate   float64      `json:"estimate"` // Point estimate on the full data
	Lower      float64      `json:"lower"`
	Upper      float64      `json:"upper"`
	StdErr     float64      `json:"std_err"` // Bootstrap standard deviation
	Replicates int          `json:"replicates"`
	Skipped    int          `json:"skipped"`
}

// HalfWidth is half the interval length
func (q Quantity) HalfWidth() float64 {
	return (q.Upper - q.Lower) / 2
}

// Covers reports whether v lies inside the interval
func (q Quantity) Covers(v float64) bool {
	return v >= q.Lower && v <= q.Upper
}

// CITable holds every quantity of one bootstrap run in insertion order
type CITable struct {
	Confidence float64    `json:"confidence"`
	Replicates int        `json:"replicates"` // Requested
	Valid      int        `json:"valid"`
	Skipped    int        `json:"skipped"`
	Quantities []Quantity `json:"quantities"`
	index      map[string]int
}

// NewCITable creates an empty table
func NewCITable(confidence float64, replicates int) *CITable {
	return &CITable{Confidence: confidence, Replicates: replicates, index: make(map[string]int)}
}

// Add appends a quantity; a repeated name replaces the earlier entry
func (t *CITable) Add(q Quantity) {
	if t.index == nil {
		t.index = make(map[string]int)
	}
	if i, ok := t.index[q.Name]; ok {
		t.Quantities[i] = q
		return
	}
	t.index[q.Name] = len(t.Quantities)
	t.Quantities = append(t.Quantities, q)
}

// Get looks up a quantity by name
func (t *CITable) Get(name string) (Quantity, bool) {
	if t == nil {
		return Quantity{}, false
	}
	i, ok := t.index[name]
	if !ok {
		return Quantity{}, false
	}
	return t.Quantities[i], true
}

// ByKind filters quantities of one kind, preserving order
func (t *CITable) ByKind(kind QuantityKind) []Quantity {
	var out []Quantity
	for _, q := range t.Quantities {
		if q.Kind == kind {
			out = append(out, q)
		}
	}
	return out
}

// Quantity names. pairName is the "A×B" label of the factor pair.
func GrandMeanName(pairName string) string { return fmt.Sprintf("grand[%s]", pairName) }

func MainEffectName(pairName, factor, level string) string {
	return fmt.Sprintf("main[%s:%s=%s]", pairName, factor, level)
}

func InteractionName(pairName string, key factorial.CellKey) string {
	return fmt.Sprintf("interaction[%s:%s]", pairName, key)
}

func PredictionName(pairName string, key factorial.CellKey) string {
	return fmt.Sprintf("prediction[%s:%s]", pairName, key)
}

func PCIName(pairName string, key factorial.CellKey) string {
	return fmt.Sprintf("pci[%s:%s]", pairName, key)
}

func AggregatePCIName(pairName string) string { return fmt.Sprintf("pci[%s]", pairName) }

func ScoreName(c factorial.Combination) string { return fmt.Sprintf("score[%s]", c.Key()) }

// ============================================================================
// UNCERTAINTY
// ============================================================================

// UncertaintyTable is the per-pair, per-cell bootstrap standard deviation of
// the cell prediction. Pairs is indexed like PairwiseModel.Pairs.
type UncertaintyTable struct {
	Pairs []map[factorial.CellKey]float64 `json:"pairs"`
}

// NewUncertaintyTable allocates one map per pair
func NewUncertaintyTable(pairs int) *UncertaintyTable {
	u := &UncertaintyTable{Pairs: make([]map[factorial.CellKey]float64, pairs)}
	for i := range u.Pairs {
		u.Pairs[i] = make(map[factorial.CellKey]float64)
	}
	return u
}

// At returns the uncertainty of a cell. A nil table has zero uncertainty.
func (u *UncertaintyTable) At(pair int, key factorial.CellKey) float64 {
	if u == nil || pair >= len(u.Pairs) {
		return 0
	}
	return u.Pairs[pair][key]
}

// SampleComplexity estimates how much more data or how many more replicates
// are needed to reach a target CI half-width.
type SampleComplexity struct {
	TargetHalfWidth       float64 `json:"target_half_width"`
	WorstHalfWidth        float64 `json:"worst_half_width"`
	WorstQuantity         string  `json:"worst_quantity"`
	MinCellCount          int     `json:"min_cell_count"`
	RecommendedCellSize   int     `json:"recommended_cell_size"`
	MonteCarloError       float64 `json:"monte_carlo_error"` // Half-split disagreement of the worst half-width
	RecommendedReplicates int     `json:"recommended_replicates"`
	Satisfied             bool    `json:"satisfied"`
}
