package factorial

import (
	"fmt"
	"strings"
)

// CellKey addresses one cell of a pairwise table
type CellKey struct {
	A string `json:"a"`
	B string `json:"b"`
}

func (k CellKey) String() string {
	return fmt.Sprintf("(%s,%s)", k.A, k.B)
}

// MarshalText lets CellKey be a JSON map key
func (k CellKey) MarshalText() ([]byte, error) {
	return []byte(k.A + KeySeparator + k.B), nil
}

func (k *CellKey) UnmarshalText(text []byte) error {
	parts := strings.SplitN(string(text), KeySeparator, 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid cell key %q", string(text))
	}
	k.A, k.B = parts[0], parts[1]
	return nil
}

// Cell is the summary of all samples sharing a level pair
type Cell struct {
	Key     CellKey `json:"key"`
	Mean    float64 `json:"mean"`
	Count   int     `json:"count"`
	StdDev  float64 `json:"std_dev"`
	StdErr  float64 `json:"std_err"`
	Imputed bool    `json:"imputed,omitempty"`
}

// CellTable holds the cells of one factor pair. Cells that were never
// observed (and not imputed) are absent.
type CellTable struct {
	Pair  FactorPair
	A     Factor
	B     Factor
	cells map[CellKey]Cell
}

// NewCellTable creates an empty table for a pair
func NewCellTable(pair FactorPair, a, b Factor) *CellTable {
	return &CellTable{Pair: pair, A: a, B: b, cells: make(map[CellKey]Cell)}
}

// Set stores a cell. Tables are filled by estimators before being shared.
func (t *CellTable) Set(c Cell) {
	t.cells[c.Key] = c
}

// Get looks up a cell
func (t *CellTable) Get(a, b string) (Cell, bool) {
	c, ok := t.cells[CellKey{A: a, B: b}]
	return c, ok
}

// Cells returns the present cells ordered by A-levels then B-levels
func (t *CellTable) Cells() []Cell {
	out := make([]Cell, 0, len(t.cells))
	for _, a := range t.A.Levels {
		for _, b := range t.B.Levels {
			if c, ok := t.cells[CellKey{A: a, B: b}]; ok {
				out = append(out, c)
			}
		}
	}
	return out
}

// Populated counts cells backed by at least one observation
func (t *CellTable) Populated() int {
	n := 0
	for _, c := range t.cells {
		if c.Count > 0 {
			n++
		}
	}
	return n
}

// GridSize is |A|·|B|
func (t *CellTable) GridSize() int {
	return len(t.A.Levels) * len(t.B.Levels)
}

// Missing lists grid cells that are absent, in grid order
func (t *CellTable) Missing() []CellKey {
	var missing []CellKey
	for _, a := range t.A.Levels {
		for _, b := range t.B.Levels {
			key := CellKey{A: a, B: b}
			if _, ok := t.cells[key]; !ok {
				missing = append(missing, key)
			}
		}
	}
	return missing
}
