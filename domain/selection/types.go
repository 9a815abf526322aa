package selection

import (
	"encoding/json"
	"fmt"

	"gofactor/domain/factorial"
)

// Direction is the optimization direction of the outcome
type Direction string

const (
	Maximize Direction = "maximize"
	Minimize Direction = "minimize"
)

// Sign is +1 for maximize, -1 for minimize
func (d Direction) Sign() float64 {
	if d == Minimize {
		return -1
	}
	return 1
}

func (d Direction) Valid() bool { return d == Maximize || d == Minimize }

// Mode is the optimizer strategy
type Mode string

const (
	ModeExhaustive Mode = "exhaustive"
	ModeGreedy     Mode = "greedy"
	ModeBeam       Mode = "beam"
)

func (m Mode) Valid() bool {
	return m == ModeExhaustive || m == ModeGreedy || m == ModeBeam
}

// ============================================================================
// SCORE MATRIX
// ============================================================================

// ScoreEntry is the risk-adjusted score of one candidate combination
type ScoreEntry struct {
	Combination     factorial.Combination `json:"combination"`
	Prediction      float64               `json:"prediction"`       // Mean of the pairwise predictions
	PairPredictions []float64             `json:"pair_predictions"` // One per participating pair
	Uncertainty     float64               `json:"uncertainty"`      // Mean over pairs
	Cost            float64               `json:"cost"`             // Raw cost, used against the budget
	ScoredCost      float64               `json:"scored_cost"`      // Cost as used in the score (normalized or raw)
	Score           float64               `json:"score"`
}

// ScoreMatrix lists candidates in factor level order
type ScoreMatrix struct {
	Kappa          float64      `json:"kappa"`
	Rho            float64      `json:"rho"`
	Direction      Direction    `json:"direction"`
	NormalizeCosts bool         `json:"normalize_costs"`
	Entries        []ScoreEntry `json:"entries"`
}

// Lookup finds an entry by combination key
func (m *ScoreMatrix) Lookup(key string) (ScoreEntry, bool) {
	for _, e := range m.Entries {
		if e.Combination.Key() == key {
			return e, true
		}
	}
	return ScoreEntry{}, false
}

// Best returns the highest scoring entry (first on ties)
func (m *ScoreMatrix) Best() (ScoreEntry, bool) {
	if len(m.Entries) == 0 {
		return ScoreEntry{}, false
	}
	best := m.Entries[0]
	for _, e := range m.Entries[1:] {
		if e.Score > best.Score {
			best = e
		}
	}
	return best, true
}

// ============================================================================
// SELECTION
// ============================================================================

// Selection is the optimizer result. It is immutable once built.
type Selection struct {
	items      []ScoreEntry
	indices    []int
	totalCost  float64
	totalScore float64
	mode       Mode
	budget     float64
	steps      int64
	empty      bool
	reason     string
}

// NewSelection builds a selection from chosen candidates. indices are the
// positions of the items in the score matrix, ascending.
func NewSelection(mode Mode, budget float64, items []ScoreEntry, indices []int, steps int64) Selection {
	if len(items) == 0 {
		return EmptySelection(mode, budget, "no candidate improves the objective", steps)
	}
	s := Selection{
		items:   append([]ScoreEntry(nil), items...),
		indices: append([]int(nil), indices...),
		mode:    mode,
		budget:  budget,
		steps:   steps,
	}
	for _, it := range items {
		s.totalCost += it.Cost
		s.totalScore += it.Score
	}
	return s
}

// EmptySelection is the distinguished result when nothing can be chosen
func EmptySelection(mode Mode, budget float64, reason string, steps int64) Selection {
	return Selection{mode: mode, budget: budget, empty: true, reason: reason, steps: steps}
}

func (s Selection) Items() []ScoreEntry { return append([]ScoreEntry(nil), s.items...) }
func (s Selection) Indices() []int      { return append([]int(nil), s.indices...) }
func (s Selection) TotalCost() float64  { return s.totalCost }
func (s Selection) TotalScore() float64 { return s.totalScore }
func (s Selection) Mode() Mode          { return s.mode }
func (s Selection) Budget() float64     { return s.budget }
func (s Selection) Steps() int64        { return s.steps }
func (s Selection) IsEmpty() bool       { return s.empty }
func (s Selection) Reason() string      { return s.reason }
func (s Selection) Len() int            { return len(s.items) }

// Combinations returns the chosen combinations in matrix order
func (s Selection) Combinations() []factorial.Combination {
	out := make([]factorial.Combination, len(s.items))
	for i, it := range s.items {
		out[i] = it.Combination
	}
	return out
}

func (s Selection) String() string {
	if s.empty {
		return fmt.Sprintf("%s: empty (%s)", s.mode, s.reason)
	}
	return fmt.Sprintf("%s: %d items, cost %.4g/%.4g, score %.4g", s.mode, len(s.items), s.totalCost, s.budget, s.totalScore)
}

type selectionJSON struct {
	Mode       Mode         `json:"mode"`
	Budget     float64      `json:"budget"`
	Empty      bool         `json:"empty"`
	Reason     string       `json:"reason,omitempty"`
	Items      []ScoreEntry `json:"items"`
	Indices    []int        `json:"indices"`
	TotalCost  float64      `json:"total_cost"`
	TotalScore float64      `json:"total_score"`
	Steps      int64        `json:"steps,omitempty"`
}

func (s Selection) MarshalJSON() ([]byte, error) {
	items := s.items
	if items == nil {
		items = []ScoreEntry{}
	}
	indices := s.indices
	if indices == nil {
		indices = []int{}
	}
	return json.Marshal(selectionJSON{
		Mode:       s.mode,
		Budget:     s.budget,
		Empty:      s.empty,
		Reason:     s.reason,
		Items:      items,
		Indices:    indices,
		TotalCost:  s.totalCost,
		TotalScore: s.totalScore,
		Steps:      s.steps,
	})
}

func (s *Selection) UnmarshalJSON(data []byte) error {
	var raw selectionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Selection{
		items:      raw.Items,
		indices:    raw.Indices,
		totalCost:  raw.TotalCost,
		totalScore: raw.TotalScore,
		mode:       raw.Mode,
		budget:     raw.Budget,
		steps:      raw.Steps,
		empty:      raw.Empty,
		reason:     raw.Reason,
	}
	return nil
}
