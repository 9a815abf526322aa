package effects

import (
	"context"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"gofactor/domain/core"
	"gofactor/domain/factorial"
	"gofactor/internal"
)

// Imputation selects how empty cells are treated
type Imputation string

const (
	ImputeNone     Imputation = "none"
	ImputeMarginal Imputation = "marginal"
)

// Options configures the CM estimator
type Options struct {
	MinCells   int
	Imputation Imputation
}

// DefaultOptions leaves empty cells missing and needs two populated cells
func DefaultOptions() Options {
	return Options{MinCells: 2, Imputation: ImputeNone}
}

// CellMeansEstimator implements the CM path: per-cell sample means followed by
// a sample-count-weighted decomposition.
type CellMeansEstimator struct {
	opts   Options
	logger *internal.Logger
}

// NewCellMeansEstimator creates a CM estimator
func NewCellMeansEstimator(opts Options, logger *internal.Logger) *CellMeansEstimator {
	if opts.MinCells < 1 {
		opts.MinCells = 1
	}
	if opts.Imputation == "" {
		opts.Imputation = ImputeNone
	}
	return &CellMeansEstimator{opts: opts, logger: logger.OrDefault().WithComponent("effects")}
}

// Path implements ports.Estimator
func (e *CellMeansEstimator) Path() factorial.Path {
	return factorial.PathCellMeans
}

// Estimate builds the cell table of one pair and decomposes it
func (e *CellMeansEstimator) Estimate(ctx context.Context, ds *factorial.Dataset, pair factorial.FactorPair) (*factorial.Decomposition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := CheckPair(ds, pair); err != nil {
		return nil, err
	}

	table := BuildCellTable(ds, pair, factorial.PathCellMeans)
	populated := table.Populated()
	if populated < e.opts.MinCells {
		return nil, core.NewInsufficientDataError(
			fmt.Sprintf("pair %s", ds.PairName(pair)), populated, e.opts.MinCells)
	}

	if e.opts.Imputation == ImputeMarginal {
		imputed := imputeMarginal(table)
		if imputed > 0 {
			e.logger.Debug("pair %s: imputed %d empty cells from marginal means", ds.PairName(pair), imputed)
		}
	}

	d := Decompose(factorial.PathCellMeans, table)
	d.MSE = ReconstructionMSE(ds, d)

	e.logger.Debug("pair %s: %d/%d cells populated, grand mean %.4f",
		ds.PairName(pair), populated, table.GridSize(), d.GrandMean)
	return d, nil
}

// BuildCellTable groups samples by the pair's level tuple. Empty cells are
// left out of the table.
func BuildCellTable(ds *factorial.Dataset, pair factorial.FactorPair, path factorial.Path) *factorial.CellTable {
	a, b := ds.Factors[pair.I], ds.Factors[pair.J]
	groups := make(map[factorial.CellKey][]float64)
	for _, r := range ds.Records {
		key := factorial.CellKey{A: r.Levels[pair.I], B: r.Levels[pair.J]}
		groups[key] = append(groups[key], r.Value(path))
	}

	table := factorial.NewCellTable(pair, a, b)
	for key, values := range groups {
		mean, _ := stats.Mean(values)
		var sd float64
		if len(values) > 1 {
			sd, _ = stats.StandardDeviationSample(values)
		}
		table.Set(factorial.Cell{
			Key:    key,
			Mean:   mean,
			Count:  len(values),
			StdDev: sd,
			StdErr: sd / math.Sqrt(float64(len(values))),
		})
	}
	return table
}

// imputeMarginal fills empty cells with the additive prediction of the
// observed cells. Imputed cells carry zero weight.
func imputeMarginal(table *factorial.CellTable) int {
	observed := Decompose(factorial.PathCellMeans, table)
	n := 0
	for _, key := range table.Missing() {
		if v, ok := observed.Additive(key.A, key.B); ok {
			table.Set(factorial.Cell{Key: key, Mean: v, Imputed: true})
			n++
		}
	}
	return n
}

// Decompose applies the count-weighted decomposition to a cell table:
// grand = Σn·m/Σn, main(a) = weighted mean of row a − grand, and
// interaction = m − grand − mainA − mainB for every present cell.
func Decompose(path factorial.Path, table *factorial.CellTable) *factorial.Decomposition {
	d := &factorial.Decomposition{
		Path:        path,
		Pair:        table.Pair,
		A:           table.A,
		B:           table.B,
		MainA:       make(map[string]float64),
		MainB:       make(map[string]float64),
		Interaction: make(map[factorial.CellKey]float64),
		Counts:      make(map[factorial.CellKey]int),
		Table:       table,
	}

	cells := table.Cells()
	var total, weight float64
	rowSum, rowN := make(map[string]float64), make(map[string]float64)
	colSum, colN := make(map[string]float64), make(map[string]float64)
	for _, c := range cells {
		w := float64(c.Count)
		total += w * c.Mean
		weight += w
		rowSum[c.Key.A] += w * c.Mean
		rowN[c.Key.A] += w
		colSum[c.Key.B] += w * c.Mean
		colN[c.Key.B] += w
	}
	if weight == 0 {
		return d
	}
	d.GrandMean = total / weight

	for level, n := range rowN {
		if n > 0 {
			d.MainA[level] = rowSum[level]/n - d.GrandMean
		}
	}
	for level, n := range colN {
		if n > 0 {
			d.MainB[level] = colSum[level]/n - d.GrandMean
		}
	}

	for _, c := range cells {
		ma, okA := d.MainA[c.Key.A]
		mb, okB := d.MainB[c.Key.B]
		if !okA || !okB {
			continue
		}
		d.Interaction[c.Key] = c.Mean - d.GrandMean - ma - mb
		d.Counts[c.Key] = c.Count
	}
	return d
}

// ReconstructionMSE is the mean squared error of the per-sample targets
// against the decomposition's cell predictions.
func ReconstructionMSE(ds *factorial.Dataset, d *factorial.Decomposition) float64 {
	pair, path := d.Pair, d.Path
	var sse float64
	var n int
	for _, r := range ds.Records {
		pred, ok := d.Predict(r.Levels[pair.I], r.Levels[pair.J])
		if !ok {
			continue
		}
		diff := r.Value(path) - pred
		sse += diff * diff
		n++
	}
	if n == 0 {
		return 0
	}
	return sse / float64(n)
}

// CheckPair validates a pair against a dataset
func CheckPair(ds *factorial.Dataset, pair factorial.FactorPair) error {
	if pair.I < 0 || pair.J >= len(ds.Factors) || pair.I >= pair.J {
		return core.NewMalformedDataError("invalid factor pair (%d,%d) for %d factors", pair.I, pair.J, len(ds.Factors))
	}
	if len(ds.Records) == 0 {
		return core.NewInsufficientDataError("dataset has no records", 0, 1)
	}
	return nil
}
