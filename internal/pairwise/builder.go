package pairwise

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"gofactor/domain/factorial"
	"gofactor/internal"
	"gofactor/ports"
)

// Builder materializes one decomposition per unordered factor pair
type Builder struct {
	estimator ports.Estimator
	workers   int
	logger    *internal.Logger
}

// NewBuilder creates a builder. workers <= 0 means one goroutine per pair.
func NewBuilder(estimator ports.Estimator, workers int, logger *internal.Logger) *Builder {
	return &Builder{
		estimator: estimator,
		workers:   workers,
		logger:    logger.OrDefault().WithComponent("pairwise"),
	}
}

// Build estimates every pair concurrently. Results are stored by pair index,
// so the model does not depend on scheduling. The first DataError aborts.
func (b *Builder) Build(ctx context.Context, ds *factorial.Dataset) (*factorial.PairwiseModel, error) {
	pairs := ds.Pairs()
	if len(pairs) == 0 {
		return nil, fmt.Errorf("dataset has fewer than two factors")
	}

	results := make([]*factorial.Decomposition, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	if b.workers > 0 {
		g.SetLimit(b.workers)
	}

	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			d, err := b.estimator.Estimate(gctx, ds, pair)
			if err != nil {
				return err
			}
			results[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	model := &factorial.PairwiseModel{Factors: ds.Factors, Pairs: results}
	if warnings := model.Warnings(); len(warnings) > 0 {
		b.logger.Debug("%d pairs estimated via %s, %d warnings", len(pairs), b.estimator.Path(), len(warnings))
	}
	return model, nil
}
