package selection

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofactor/domain/factorial"
)

func TestSelection_Immutable(t *testing.T) {
	items := []ScoreEntry{
		{Combination: factorial.Combination{"a0", "b0"}, Cost: 1, Score: 2},
		{Combination: factorial.Combination{"a1", "b1"}, Cost: 2, Score: 3},
	}
	s := NewSelection(ModeGreedy, 5, items, []int{0, 3}, 0)

	items[0].Score = 100
	got := s.Items()
	got[1].Score = -1

	assert.InDelta(t, 5.0, s.TotalScore(), 1e-12)
	assert.InDelta(t, 3.0, s.TotalCost(), 1e-12)
	assert.InDelta(t, 3.0, s.Items()[1].Score, 1e-12)
	assert.False(t, s.IsEmpty())
}

func TestSelection_EmptyJSON(t *testing.T) {
	s := EmptySelection(ModeBeam, 0, "no feasible candidate", 0)
	assert.True(t, s.IsEmpty())
	assert.Zero(t, s.Len())

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"empty":true`)
	assert.Contains(t, string(raw), `"items":[]`)

	var back Selection
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.IsEmpty())
	assert.Equal(t, "no feasible candidate", back.Reason())
	assert.Equal(t, ModeBeam, back.Mode())
}

func TestDirectionSign(t *testing.T) {
	assert.Equal(t, 1.0, Maximize.Sign())
	assert.Equal(t, -1.0, Minimize.Sign())
	assert.False(t, Direction("up").Valid())
	assert.True(t, ModeExhaustive.Valid())
}
