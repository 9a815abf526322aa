package ports

import (
	"context"

	"gofactor/domain/factorial"
	"gofactor/domain/selection"
	"gofactor/domain/stats"
)

// Estimator turns a dataset into the decomposition of one factor pair.
// Implementations return a fresh decomposition on every call and fail with
// a DataError rather than returning a partial result.
type Estimator interface {
	Path() factorial.Path
	Estimate(ctx context.Context, ds *factorial.Dataset, pair factorial.FactorPair) (*factorial.Decomposition, error)
}

// Scorer converts a pairwise model into risk-adjusted scores. A nil
// uncertainty table scores with zero uncertainty.
type Scorer interface {
	Score(model *factorial.PairwiseModel, uncertainty *stats.UncertaintyTable, costs factorial.CostTable) (*selection.ScoreMatrix, error)
}

// DatasetReader loads records from an external tabular source
type DatasetReader interface {
	Read(ctx context.Context, path string) (*factorial.Dataset, error)
}
