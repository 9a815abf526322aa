package factorial

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gofactor/domain/core"
)

// ============================================================================
// FACTORS AND RECORDS
// ============================================================================

// Factor is a categorical dimension with an ordered, finite set of levels
type Factor struct {
	Name   string   `json:"name"`
	Levels []string `json:"levels"`
}

// LevelIndex returns the position of level, or -1
func (f Factor) LevelIndex(level string) int {
	for i, l := range f.Levels {
		if l == level {
			return i
		}
	}
	return -1
}

// Record is one observed sample: a level per factor plus either a scalar
// outcome or an attribution vector.
type Record struct {
	Levels      []string  `json:"levels"`
	Outcome     float64   `json:"outcome"`
	Attribution []float64 `json:"attribution,omitempty"`
	Baseline    float64   `json:"baseline,omitempty"`
	Cost        *float64  `json:"cost,omitempty"`
}

// AttributionTotal is the summed attribution signal the SF path reconstructs
func (r Record) AttributionTotal() float64 {
	total := r.Baseline
	for _, v := range r.Attribution {
		total += v
	}
	return total
}

// KeySeparator joins levels in combination and cell keys. Level names may
// not contain it.
const KeySeparator = "|"

// Combination is one level per factor, in dataset factor order
type Combination []string

// Key is the canonical string form used for cost tables and score matrices
func (c Combination) Key() string {
	return strings.Join(c, KeySeparator)
}

func (c Combination) String() string {
	return "(" + strings.Join(c, ",") + ")"
}

// ParseCombination reverses Key
func ParseCombination(key string) Combination {
	return Combination(strings.Split(key, KeySeparator))
}

// FactorPair identifies one unordered pair of factors (I < J)
type FactorPair struct {
	I int `json:"i"`
	J int `json:"j"`
}

// CellGroup lists the record indices that share one full combination
type CellGroup struct {
	Combination Combination
	Indices     []int
}

// CostTable maps Combination.Key() to a per-combination cost
type CostTable map[string]float64

// ============================================================================
// DATASET
// ============================================================================

// Dataset is the raw, adapter-owned input of an estimation run
type Dataset struct {
	Factors []Factor `json:"factors"`
	Records []Record `json:"records"`
}

// Validate checks structural integrity. requireAttribution is set by the SF path.
func (d *Dataset) Validate(requireAttribution bool) error {
	if len(d.Factors) < 2 {
		return core.NewMalformedDataError("need at least 2 factors, got %d", len(d.Factors))
	}
	seen := make(map[string]bool, len(d.Factors))
	for _, f := range d.Factors {
		if f.Name == "" {
			return core.NewMalformedDataError("factor with empty name")
		}
		if seen[f.Name] {
			return core.NewMalformedDataError("duplicate factor %q", f.Name)
		}
		seen[f.Name] = true
		if len(f.Levels) == 0 {
			return core.NewMalformedDataError("factor %q has no levels", f.Name)
		}
		levels := make(map[string]bool, len(f.Levels))
		for _, l := range f.Levels {
			if levels[l] {
				return core.NewMalformedDataError("factor %q has duplicate level %q", f.Name, l)
			}
			if strings.Contains(l, KeySeparator) {
				return core.NewMalformedDataError("factor %q level %q contains reserved %q", f.Name, l, KeySeparator)
			}
			levels[l] = true
		}
	}

	for i, r := range d.Records {
		if len(r.Levels) != len(d.Factors) {
			return core.NewMalformedDataError("record %d has %d levels, expected %d", i, len(r.Levels), len(d.Factors))
		}
		for fi, level := range r.Levels {
			if d.Factors[fi].LevelIndex(level) < 0 {
				return core.NewMalformedDataError("record %d: unknown level %q for factor %q", i, level, d.Factors[fi].Name)
			}
		}
		if requireAttribution {
			if len(r.Attribution) == 0 {
				return core.NewMalformedDataError("record %d has no attribution vector", i)
			}
			if math.IsNaN(r.AttributionTotal()) || math.IsInf(r.AttributionTotal(), 0) {
				return core.NewMalformedDataError("record %d has a non-finite attribution", i)
			}
		} else if math.IsNaN(r.Outcome) || math.IsInf(r.Outcome, 0) {
			return core.NewMalformedDataError("record %d has a non-finite outcome", i)
		}
		if r.Cost != nil && (*r.Cost < 0 || math.IsNaN(*r.Cost)) {
			return core.NewMalformedDataError("record %d has invalid cost %v", i, *r.Cost)
		}
	}
	return nil
}

// Pairs enumerates all unordered factor pairs in index order
func (d *Dataset) Pairs() []FactorPair {
	var pairs []FactorPair
	for i := 0; i < len(d.Factors); i++ {
		for j := i + 1; j < len(d.Factors); j++ {
			pairs = append(pairs, FactorPair{I: i, J: j})
		}
	}
	return pairs
}

// PairName renders a pair as "A×B"
func (d *Dataset) PairName(p FactorPair) string {
	return fmt.Sprintf("%s×%s", d.Factors[p.I].Name, d.Factors[p.J].Name)
}

// Cells groups records by full combination. Groups are ordered by the
// factor level order so that every consumer iterates cells identically.
func (d *Dataset) Cells() []CellGroup {
	byKey := make(map[string]*CellGroup)
	for i, r := range d.Records {
		key := Combination(r.Levels).Key()
		g, ok := byKey[key]
		if !ok {
			g = &CellGroup{Combination: append(Combination(nil), r.Levels...)}
			byKey[key] = g
		}
		g.Indices = append(g.Indices, i)
	}

	groups := make([]CellGroup, 0, len(byKey))
	for _, g := range byKey {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(a, b int) bool {
		return d.lessCombination(groups[a].Combination, groups[b].Combination)
	})
	return groups
}

func (d *Dataset) lessCombination(x, y Combination) bool {
	for fi := range d.Factors {
		xi := d.Factors[fi].LevelIndex(x[fi])
		yi := d.Factors[fi].LevelIndex(y[fi])
		if xi != yi {
			return xi < yi
		}
	}
	return false
}

// Combinations enumerates the full level grid in factor level order
func (d *Dataset) Combinations() []Combination {
	combos := []Combination{{}}
	for _, f := range d.Factors {
		next := make([]Combination, 0, len(combos)*len(f.Levels))
		for _, c := range combos {
			for _, l := range f.Levels {
				nc := make(Combination, len(c), len(c)+1)
				copy(nc, c)
				next = append(next, append(nc, l))
			}
		}
		combos = next
	}
	return combos
}

// WithRecords returns a dataset sharing the factor list but holding records
func (d *Dataset) WithRecords(records []Record) *Dataset {
	return &Dataset{Factors: d.Factors, Records: records}
}

// Collapse replaces every level of factor fi with a single pseudo-level.
// Used by the ablation diagnostic.
func (d *Dataset) Collapse(fi int, pseudo string) *Dataset {
	factors := make([]Factor, len(d.Factors))
	copy(factors, d.Factors)
	factors[fi] = Factor{Name: d.Factors[fi].Name, Levels: []string{pseudo}}

	records := make([]Record, len(d.Records))
	for i, r := range d.Records {
		levels := make([]string, len(r.Levels))
		copy(levels, r.Levels)
		levels[fi] = pseudo
		r.Levels = levels
		records[i] = r
	}
	return &Dataset{Factors: factors, Records: records}
}

// CostTable derives per-combination costs from record costs (mean per cell).
// Combinations without any record cost are absent.
func (d *Dataset) CostTable() CostTable {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range d.Records {
		if r.Cost == nil {
			continue
		}
		key := Combination(r.Levels).Key()
		sums[key] += *r.Cost
		counts[key]++
	}
	costs := make(CostTable, len(sums))
	for k, s := range sums {
		costs[k] = s / float64(counts[k])
	}
	return costs
}

// Hash is a deterministic fingerprint of the dataset contents
func (d *Dataset) Hash() core.DatasetHash {
	var h core.DatasetHasher
	for _, f := range d.Factors {
		h.WriteString(f.Name)
		for _, l := range f.Levels {
			h.WriteString(l)
		}
	}
	for _, r := range d.Records {
		for _, l := range r.Levels {
			h.WriteString(l)
		}
		h.WriteFloat(r.Outcome)
		h.WriteFloat(r.Baseline)
		for _, a := range r.Attribution {
			h.WriteFloat(a)
		}
		if r.Cost != nil {
			h.WriteFloat(*r.Cost)
		}
	}
	return h.Sum()
}
