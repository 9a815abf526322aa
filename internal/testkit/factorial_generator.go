package testkit

import (
	"fmt"
	"math/rand"

	"gofactor/domain/factorial"
)

// FactorialGeneratorConfig configures a synthetic factorial design with a
// known ground truth: grand + Σ main + Σ pairwise interaction + noise.
type FactorialGeneratorConfig struct {
	Factors      []factorial.Factor                   `json:"factors"`
	GrandMean    float64                              `json:"grand_mean"`
	MainEffects  [][]float64                          `json:"main_effects"` // [factor][level]
	Interactions map[factorial.FactorPair][][]float64 `json:"-"`            // [levelI][levelJ]
	ThreeWay     func(levels []int) float64           `json:"-"`            // Optional higher-order term
	NoiseStdDev  float64                              `json:"noise_std_dev"`
	PerCell      int                                  `json:"per_cell"`
	CellSizes    map[string]int                       `json:"cell_sizes,omitempty"` // Combination key → count, overrides PerCell
	Attribution  bool                                 `json:"attribution"`
	Costs        map[string]float64                   `json:"costs,omitempty"`
	Seed         int64                                `json:"seed"`
}

// FactorialDataGenerator produces seeded synthetic datasets
type FactorialDataGenerator struct {
	config FactorialGeneratorConfig
	rng    *rand.Rand
}

// NewFactorialDataGenerator creates a new generator
func NewFactorialDataGenerator(config FactorialGeneratorConfig) *FactorialDataGenerator {
	return &FactorialDataGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Truth returns the noise-free value of a combination given by level indices
func (c FactorialGeneratorConfig) Truth(levels []int) float64 {
	v := c.GrandMean
	for fi, li := range levels {
		if fi < len(c.MainEffects) && li < len(c.MainEffects[fi]) {
			v += c.MainEffects[fi][li]
		}
	}
	for pair, m := range c.Interactions {
		v += m[levels[pair.I]][levels[pair.J]]
	}
	if c.ThreeWay != nil {
		v += c.ThreeWay(levels)
	}
	return v
}

// Generate emits PerCell records for every combination in grid order.
// Cells with size 0 in CellSizes are left empty.
func (g *FactorialDataGenerator) Generate() *factorial.Dataset {
	ds := &factorial.Dataset{Factors: g.config.Factors}

	for _, idx := range g.grid() {
		levels := make([]string, len(idx))
		for fi, li := range idx {
			levels[fi] = g.config.Factors[fi].Levels[li]
		}
		key := factorial.Combination(levels).Key()

		n := g.config.PerCell
		if size, ok := g.config.CellSizes[key]; ok {
			n = size
		}
		truth := g.config.Truth(idx)

		for s := 0; s < n; s++ {
			noise := g.rng.NormFloat64() * g.config.NoiseStdDev
			rec := factorial.Record{
				Levels:  append([]string(nil), levels...),
				Outcome: truth + noise,
			}
			if g.config.Attribution {
				rec.Baseline = g.config.GrandMean
				rec.Attribution = g.attribution(idx, truth+noise)
			}
			if cost, ok := g.config.Costs[key]; ok {
				c := cost
				rec.Cost = &c
			}
			ds.Records = append(ds.Records, rec)
		}
	}
	return ds
}

// attribution splits value - grand into one term per factor plus a joint term
func (g *FactorialDataGenerator) attribution(idx []int, value float64) []float64 {
	out := make([]float64, len(idx)+1)
	rest := value - g.config.GrandMean
	for fi, li := range idx {
		if fi < len(g.config.MainEffects) {
			out[fi] = g.config.MainEffects[fi][li]
			rest -= out[fi]
		}
	}
	out[len(idx)] = rest
	return out
}

func (g *FactorialDataGenerator) grid() [][]int {
	combos := [][]int{{}}
	for _, f := range g.config.Factors {
		var next [][]int
		for _, c := range combos {
			for li := range f.Levels {
				nc := append(append([]int(nil), c...), li)
				next = append(next, nc)
			}
		}
		combos = next
	}
	return combos
}

// Factors builds factors named A, B, C... with levels a0, a1... per size
func Factors(sizes ...int) []factorial.Factor {
	factors := make([]factorial.Factor, len(sizes))
	for i, n := range sizes {
		name := string(rune('A' + i))
		levels := make([]string, n)
		for l := range levels {
			levels[l] = fmt.Sprintf("%c%d", 'a'+i, l)
		}
		factors[i] = factorial.Factor{Name: name, Levels: levels}
	}
	return factors
}

// AdditiveConfig is a noise-free two-factor design with no interaction
func AdditiveConfig(perCell int, seed int64) FactorialGeneratorConfig {
	return FactorialGeneratorConfig{
		Factors:     Factors(3, 2),
		GrandMean:   10,
		MainEffects: [][]float64{{-1, 0.5, 0.5}, {-2, 2}},
		PerCell:     perCell,
		Seed:        seed,
	}
}

// InteractionConfig is a 2×2 design whose (a1,b1) cell deviates from
// additivity by strength: positive is synergy, negative antagonism.
func InteractionConfig(strength, noise float64, perCell int, seed int64) FactorialGeneratorConfig {
	return FactorialGeneratorConfig{
		Factors:     Factors(2, 2),
		GrandMean:   5,
		MainEffects: [][]float64{{0, 1}, {0, 2}},
		Interactions: map[factorial.FactorPair][][]float64{
			{I: 0, J: 1}: {{0, 0}, {0, strength}},
		},
		NoiseStdDev: noise,
		PerCell:     perCell,
		Seed:        seed,
	}
}

// ThreeFactorConfig is a 2×3×2 design with pairwise interactions only
func ThreeFactorConfig(noise float64, perCell int, seed int64) FactorialGeneratorConfig {
	return FactorialGeneratorConfig{
		Factors:     Factors(2, 3, 2),
		GrandMean:   20,
		MainEffects: [][]float64{{-1, 1}, {-2, 0, 2}, {0.5, -0.5}},
		Interactions: map[factorial.FactorPair][][]float64{
			{I: 0, J: 1}: {{0.5, 0, -0.5}, {-0.5, 0, 0.5}},
			{I: 1, J: 2}: {{0.3, -0.3}, {0, 0}, {-0.3, 0.3}},
		},
		NoiseStdDev: noise,
		PerCell:     perCell,
		Seed:        seed,
	}
}
