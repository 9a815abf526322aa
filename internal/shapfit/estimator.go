package shapfit

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"gofactor/domain/core"
	"gofactor/domain/factorial"
	"gofactor/internal"
	"gofactor/internal/effects"
)

// Shrinkage is the ridge regularization level
type Shrinkage string

const (
	ShrinkageLow  Shrinkage = "low"
	ShrinkageMid  Shrinkage = "mid"
	ShrinkageHigh Shrinkage = "high"
)

// Lambda maps a shrinkage level to the ridge coefficient
func (s Shrinkage) Lambda() float64 {
	switch s {
	case ShrinkageMid:
		return 1
	case ShrinkageHigh:
		return 10
	default:
		return 1e-6
	}
}

func (s Shrinkage) Valid() bool {
	return s == ShrinkageLow || s == ShrinkageMid || s == ShrinkageHigh
}

// rankTolerance is the relative singular value cutoff
const rankTolerance = 1e-10

// FitResult is the full output of one ridge fit
type FitResult struct {
	Decomposition *factorial.Decomposition
	Predictions   []float64 // Fitted target per sample, in record order
	MSE           float64
	Rank          int
	Columns       int
	Lambda        float64
}

// Estimator implements the SF path: a ridge fit of the summed attribution
// signal onto one indicator column per grid cell.
type Estimator struct {
	shrinkage Shrinkage
	minCells  int
	logger    *internal.Logger
}

// NewEstimator creates an SF estimator
func NewEstimator(shrinkage Shrinkage, minCells int, logger *internal.Logger) *Estimator {
	if minCells < 1 {
		minCells = 1
	}
	return &Estimator{
		shrinkage: shrinkage,
		minCells:  minCells,
		logger:    logger.OrDefault().WithComponent("shapfit"),
	}
}

// Path implements ports.Estimator
func (e *Estimator) Path() factorial.Path {
	return factorial.PathShapFit
}

// Estimate implements ports.Estimator
func (e *Estimator) Estimate(ctx context.Context, ds *factorial.Dataset, pair factorial.FactorPair) (*factorial.Decomposition, error) {
	res, err := e.Fit(ctx, ds, pair)
	if err != nil {
		return nil, err
	}
	return res.Decomposition, nil
}

// Fit solves (XᵀX + λI)β = Xᵀ(t − t̄) and decomposes the fitted cell values
// t̄ + β. A rank-deficient design falls back to an SVD pseudo-inverse and
// attaches a RankDeficientWarning.
func (e *Estimator) Fit(ctx context.Context, ds *factorial.Dataset, pair factorial.FactorPair) (*FitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := effects.CheckPair(ds, pair); err != nil {
		return nil, err
	}

	observed := effects.BuildCellTable(ds, pair, factorial.PathShapFit)
	populated := observed.Populated()
	if populated < e.minCells {
		return nil, core.NewInsufficientDataError(
			fmt.Sprintf("pair %s", ds.PairName(pair)), populated, e.minCells)
	}

	a, b := ds.Factors[pair.I], ds.Factors[pair.J]
	cols := len(a.Levels) * len(b.Levels)
	n := len(ds.Records)

	// Target and design matrix
	target := make([]float64, n)
	var tbar float64
	for i, r := range ds.Records {
		target[i] = r.AttributionTotal()
		tbar += target[i]
	}
	tbar /= float64(n)

	x := mat.NewDense(n, cols, nil)
	centred := mat.NewVecDense(n, nil)
	for i, r := range ds.Records {
		col := a.LevelIndex(r.Levels[pair.I])*len(b.Levels) + b.LevelIndex(r.Levels[pair.J])
		x.Set(i, col, 1)
		centred.SetVec(i, target[i]-tbar)
	}

	lambda := e.shrinkage.Lambda()
	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDThin) {
		return nil, fmt.Errorf("pair %s: SVD did not converge", ds.PairName(pair))
	}
	rank := svd.Rank(rankTolerance)

	var beta *mat.VecDense
	var warnings []error
	if rank < cols {
		beta = pseudoInverseSolve(&svd, centred, lambda, rank)
		warning := &core.RankDeficientWarning{Rank: rank, Columns: cols}
		for _, key := range observed.Missing() {
			warning.MissingCells = append(warning.MissingCells, key.String())
		}
		warnings = append(warnings, warning)
		e.logger.Warn("pair %s: %v", ds.PairName(pair), warning)
	} else {
		var err error
		beta, err = choleskySolve(x, centred, lambda)
		if err != nil {
			beta = pseudoInverseSolve(&svd, centred, lambda, rank)
			e.logger.Debug("pair %s: cholesky failed (%v), used SVD", ds.PairName(pair), err)
		}
	}

	// Fitted cells; unsupported cells stay missing
	fitted := factorial.NewCellTable(pair, a, b)
	for _, c := range observed.Cells() {
		col := a.LevelIndex(c.Key.A)*len(b.Levels) + b.LevelIndex(c.Key.B)
		c.Mean = tbar + beta.AtVec(col)
		fitted.Set(c)
	}

	d := effects.Decompose(factorial.PathShapFit, fitted)
	d.Warnings = warnings
	d.MSE = effects.ReconstructionMSE(ds, d)

	preds := make([]float64, n)
	for i, r := range ds.Records {
		preds[i], _ = d.Predict(r.Levels[pair.I], r.Levels[pair.J])
	}

	e.logger.Debug("pair %s: λ=%g rank %d/%d mse %.6g", ds.PairName(pair), lambda, rank, cols, d.MSE)
	return &FitResult{
		Decomposition: d,
		Predictions:   preds,
		MSE:           d.MSE,
		Rank:          rank,
		Columns:       cols,
		Lambda:        lambda,
	}, nil
}

// choleskySolve solves the ridge normal equations
func choleskySolve(x *mat.Dense, y *mat.VecDense, lambda float64) (*mat.VecDense, error) {
	_, cols := x.Dims()
	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())
	for i := 0; i < cols; i++ {
		xtx.SetSym(i, i, xtx.At(i, i)+lambda)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return nil, fmt.Errorf("normal matrix not positive definite")
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return nil, err
	}
	return &beta, nil
}

// pseudoInverseSolve computes β = V·diag(s/(s²+λ))·Uᵀy over the leading
// rank singular values.
func pseudoInverseSolve(svd *mat.SVD, y *mat.VecDense, lambda float64, rank int) *mat.VecDense {
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	cols, _ := v.Dims()
	beta := mat.NewVecDense(cols, nil)
	for k := 0; k < rank && k < len(values); k++ {
		s := values[k]
		coef := mat.Dot(u.ColView(k), y) * s / (s*s + lambda)
		beta.AddScaledVec(beta, coef, v.ColView(k))
	}
	return beta
}
