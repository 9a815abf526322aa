package effects

import (
	"github.com/montanaflynn/stats"

	"gofactor/domain/factorial"
)

// MarginalMeans returns the mean outcome per level of one factor. Weighted
// averages samples; unweighted averages the full-combination cell means,
// so every observed cell counts once.
func MarginalMeans(ds *factorial.Dataset, fi int, path factorial.Path, weighted bool) map[string]float64 {
	values := make(map[string][]float64)
	if weighted {
		for _, r := range ds.Records {
			values[r.Levels[fi]] = append(values[r.Levels[fi]], r.Value(path))
		}
	} else {
		for _, cell := range ds.Cells() {
			cellValues := make([]float64, len(cell.Indices))
			for i, idx := range cell.Indices {
				cellValues[i] = ds.Records[idx].Value(path)
			}
			m, _ := stats.Mean(cellValues)
			level := cell.Combination[fi]
			values[level] = append(values[level], m)
		}
	}

	out := make(map[string]float64, len(values))
	for level, v := range values {
		out[level], _ = stats.Mean(v)
	}
	return out
}

// ClassicalInteraction is the unweighted interaction residual
// m(a,b) − row mean(a) − column mean(b) + overall mean, over present cells.
func ClassicalInteraction(table *factorial.CellTable) map[factorial.CellKey]float64 {
	rows := make(map[string][]float64)
	cols := make(map[string][]float64)
	var all []float64
	for _, c := range table.Cells() {
		rows[c.Key.A] = append(rows[c.Key.A], c.Mean)
		cols[c.Key.B] = append(cols[c.Key.B], c.Mean)
		all = append(all, c.Mean)
	}
	if len(all) == 0 {
		return map[factorial.CellKey]float64{}
	}
	overall, _ := stats.Mean(all)

	out := make(map[factorial.CellKey]float64)
	for _, c := range table.Cells() {
		rowMean, _ := stats.Mean(rows[c.Key.A])
		colMean, _ := stats.Mean(cols[c.Key.B])
		out[c.Key] = c.Mean - rowMean - colMean + overall
	}
	return out
}

// FactorMarginals holds both marginal mean variants of one factor
type FactorMarginals struct {
	Factor     string             `json:"factor"`
	Levels     []string           `json:"levels"`
	Weighted   map[string]float64 `json:"weighted"`
	Unweighted map[string]float64 `json:"unweighted"`
}

// Marginals computes the marginal means of every factor, in factor order
func Marginals(ds *factorial.Dataset, path factorial.Path) []FactorMarginals {
	out := make([]FactorMarginals, len(ds.Factors))
	for fi, f := range ds.Factors {
		out[fi] = FactorMarginals{
			Factor:     f.Name,
			Levels:     f.Levels,
			Weighted:   MarginalMeans(ds, fi, path, true),
			Unweighted: MarginalMeans(ds, fi, path, false),
		}
	}
	return out
}
