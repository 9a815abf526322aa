package bootstrap

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	mstats "github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
	gstat "gonum.org/v1/gonum/stat"

	"gofactor/domain/core"
	"gofactor/domain/factorial"
	"gofactor/domain/stats"
	"gofactor/internal"
	"gofactor/internal/pairwise"
	"gofactor/internal/pci"
	"gofactor/ports"
)

// Options configures a bootstrap run
type Options struct {
	Replicates      int
	Confidence      float64
	MaxRetries      int
	Seed            int64
	Workers         int
	TargetHalfWidth float64 // 0 disables the sample-complexity analysis
}

// DefaultOptions mirrors the configuration defaults
func DefaultOptions() Options {
	return Options{Replicates: 200, Confidence: 0.95, MaxRetries: 3, Seed: 42, Workers: 4}
}

// Result is the aggregated output of all replicates
type Result struct {
	CI          *stats.CITable          `json:"ci"`
	Uncertainty *stats.UncertaintyTable `json:"uncertainty"`
	Complexity  *stats.SampleComplexity `json:"complexity,omitempty"`
	Valid       int                     `json:"valid"`
	Skipped     int                     `json:"skipped"`
	Retries     int                     `json:"retries"`
}

// Engine resamples records within full-combination cells and recomputes
// every derived quantity per replicate.
type Engine struct {
	builder   *pairwise.Builder
	estimator ports.Estimator
	scorer    ports.Scorer
	costs     factorial.CostTable
	rng       ports.RNGPort
	opts      Options
	logger    *internal.Logger
}

// NewEngine creates an engine around the configured estimator
func NewEngine(estimator ports.Estimator, opts Options, logger *internal.Logger) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	logger = logger.OrDefault()
	return &Engine{
		builder:   pairwise.NewBuilder(estimator, 1, logger),
		estimator: estimator,
		rng:       SplitMixRNG{},
		opts:      opts,
		logger:    logger.WithComponent("bootstrap"),
	}
}

// WithScorer adds score quantities, scored with the bootstrap uncertainty
func (e *Engine) WithScorer(scorer ports.Scorer, costs factorial.CostTable) *Engine {
	e.scorer = scorer
	e.costs = costs
	return e
}

// WithRNG replaces the replicate stream source
func (e *Engine) WithRNG(rng ports.RNGPort) *Engine {
	e.rng = rng
	return e
}

// quantity describes one derived scalar and how to read it off a replicate
type quantity struct {
	name     string
	kind     stats.QuantityKind
	pair     int
	key      factorial.CellKey
	estimate float64
	extract  func(m *factorial.PairwiseModel, p []*pci.Result) (float64, bool)
}

type replicate struct {
	values   []float64
	model    *factorial.PairwiseModel
	attempts int
	valid    bool
}

// Run bootstraps the point model. ds must be the data point was estimated from.
func (e *Engine) Run(ctx context.Context, ds *factorial.Dataset, point *factorial.PairwiseModel) (*Result, error) {
	if e.opts.Replicates < 1 {
		return nil, core.NewConfigurationError("bootstrap.replicates", "must be >= 1")
	}
	if e.opts.Confidence <= 0 || e.opts.Confidence >= 1 {
		return nil, core.NewConfigurationError("bootstrap.confidence", "must be in (0,1)")
	}

	cells := ds.Cells()
	quantities := e.quantities(ds, point)
	e.logger.Debug("bootstrapping %d quantities over %d cells via %s path", len(quantities), len(cells), e.estimator.Path())
	pointRankDeficient := make([]bool, len(point.Pairs))
	for i, d := range point.Pairs {
		pointRankDeficient[i] = d.HasWarning(core.ErrRankDeficient)
	}

	reps := make([]replicate, e.opts.Replicates)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for r := range reps {
		r := r
		g.Go(func() error {
			reps[r] = e.runReplicate(gctx, ds, cells, quantities, pointRankDeficient, r)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	for _, rep := range reps {
		res.Retries += rep.attempts - 1
		if rep.valid {
			res.Valid++
		} else {
			res.Skipped++
		}
	}
	if res.Valid == 0 {
		return nil, core.NewInsufficientDataError(
			fmt.Sprintf("all %d bootstrap replicates skipped", e.opts.Replicates), 0, 1)
	}

	ci := stats.NewCITable(e.opts.Confidence, e.opts.Replicates)
	ci.Valid, ci.Skipped = res.Valid, res.Skipped
	for qi, q := range quantities {
		ci.Add(e.summarize(q, column(reps, qi), res.Valid, res.Skipped))
	}

	res.Uncertainty = stats.NewUncertaintyTable(len(point.Pairs))
	for _, q := range quantities {
		if q.kind != stats.KindPrediction {
			continue
		}
		summary, _ := ci.Get(q.name)
		res.Uncertainty.Pairs[q.pair][q.key] = summary.StdErr
	}

	if e.scorer != nil {
		if err := e.scoreQuantities(ci, reps, point, res); err != nil {
			return nil, err
		}
	}
	res.CI = ci

	if e.opts.TargetHalfWidth > 0 {
		res.Complexity = e.sampleComplexity(cells, quantities, reps, ci)
	}

	e.logger.Info("%d replicates: %d valid, %d skipped, %d retries, %d quantities",
		e.opts.Replicates, res.Valid, res.Skipped, res.Retries, len(ci.Quantities))
	return res, nil
}

// runReplicate retries an invalid resample up to MaxRetries times
func (e *Engine) runReplicate(ctx context.Context, ds *factorial.Dataset, cells []factorial.CellGroup,
	quantities []quantity, pointRankDeficient []bool, r int) replicate {

	rep := replicate{}
	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return rep
		}
		rep.attempts = attempt + 1
		rng := e.rng.ReplicateStream(e.opts.Seed, r, attempt)
		resampled := Resample(ds, cells, rng)

		model, err := e.builder.Build(ctx, resampled)
		if err != nil {
			e.logger.Debug("replicate %d attempt %d: %v", r, attempt, err)
			continue
		}
		if reason := newRankDeficiency(model, pointRankDeficient); reason != "" {
			e.logger.Debug("replicate %d attempt %d: %s", r, attempt, reason)
			continue
		}

		pcis := pci.ForModel(model)
		values := make([]float64, len(quantities))
		lost := false
		for qi, q := range quantities {
			v, ok := q.extract(model, pcis)
			if !ok {
				lost = true
				break
			}
			values[qi] = v
		}
		if lost {
			e.logger.Debug("replicate %d attempt %d: lost a cell", r, attempt)
			continue
		}

		rep.values = values
		rep.model = model
		rep.valid = true
		return rep
	}
	e.logger.Warn("replicate %d skipped after %d attempts", r, rep.attempts)
	return rep
}

func newRankDeficiency(model *factorial.PairwiseModel, pointRankDeficient []bool) string {
	for i, d := range model.Pairs {
		if d.HasWarning(core.ErrRankDeficient) && !pointRankDeficient[i] {
			return fmt.Sprintf("pair %d became rank deficient", i)
		}
	}
	return ""
}

// Resample draws, within every full-combination cell, as many records as the
// cell holds, with replacement. Cell order and membership are preserved.
func Resample(ds *factorial.Dataset, cells []factorial.CellGroup, rng *rand.Rand) *factorial.Dataset {
	records := make([]factorial.Record, 0, len(ds.Records))
	for _, cell := range cells {
		for range cell.Indices {
			records = append(records, ds.Records[cell.Indices[rng.Intn(len(cell.Indices))]])
		}
	}
	return ds.WithRecords(records)
}

// quantities enumerates every scalar of the point model, pair by pair
func (e *Engine) quantities(ds *factorial.Dataset, point *factorial.PairwiseModel) []quantity {
	pointPCI := pci.ForModel(point)
	var out []quantity

	for pi, d := range point.Pairs {
		pi, d := pi, d
		pairName := ds.PairName(d.Pair)

		out = append(out, quantity{
			name: stats.GrandMeanName(pairName), kind: stats.KindGrandMean, pair: pi, estimate: d.GrandMean,
			extract: func(m *factorial.PairwiseModel, _ []*pci.Result) (float64, bool) {
				return m.Pairs[pi].GrandMean, true
			},
		})
		for _, level := range d.A.Levels {
			level := level
			if v, ok := d.MainA[level]; ok {
				out = append(out, quantity{
					name: stats.MainEffectName(pairName, d.A.Name, level), kind: stats.KindMainEffect, pair: pi, estimate: v,
					extract: func(m *factorial.PairwiseModel, _ []*pci.Result) (float64, bool) {
						v, ok := m.Pairs[pi].MainA[level]
						return v, ok
					},
				})
			}
		}
		for _, level := range d.B.Levels {
			level := level
			if v, ok := d.MainB[level]; ok {
				out = append(out, quantity{
					name: stats.MainEffectName(pairName, d.B.Name, level), kind: stats.KindMainEffect, pair: pi, estimate: v,
					extract: func(m *factorial.PairwiseModel, _ []*pci.Result) (float64, bool) {
						v, ok := m.Pairs[pi].MainB[level]
						return v, ok
					},
				})
			}
		}

		for _, key := range d.PresentCells() {
			key := key
			out = append(out, quantity{
				name: stats.InteractionName(pairName, key), kind: stats.KindInteraction, pair: pi, key: key,
				estimate: d.Interaction[key],
				extract: func(m *factorial.PairwiseModel, _ []*pci.Result) (float64, bool) {
					return m.Pairs[pi].InteractionAt(key.A, key.B)
				},
			})
			pred, _ := d.Predict(key.A, key.B)
			out = append(out, quantity{
				name: stats.PredictionName(pairName, key), kind: stats.KindPrediction, pair: pi, key: key,
				estimate: pred,
				extract: func(m *factorial.PairwiseModel, _ []*pci.Result) (float64, bool) {
					return m.Pairs[pi].Predict(key.A, key.B)
				},
			})
			if v, ok := pointPCI[pi].Cells[key]; ok {
				out = append(out, quantity{
					name: stats.PCIName(pairName, key), kind: stats.KindPCI, pair: pi, key: key, estimate: v,
					extract: func(_ *factorial.PairwiseModel, p []*pci.Result) (float64, bool) {
						return p[pi].At(key.A, key.B)
					},
				})
			}
		}

		if pointPCI[pi].AggregateDefined {
			out = append(out, quantity{
				name: stats.AggregatePCIName(pairName), kind: stats.KindAggregatePCI, pair: pi,
				estimate: pointPCI[pi].Aggregate,
				extract: func(_ *factorial.PairwiseModel, p []*pci.Result) (float64, bool) {
					return p[pi].Aggregate, p[pi].AggregateDefined
				},
			})
		}
	}
	return out
}

// column collects quantity qi over valid replicates, in replicate order
func column(reps []replicate, qi int) []float64 {
	values := make([]float64, 0, len(reps))
	for _, rep := range reps {
		if rep.valid {
			values = append(values, rep.values[qi])
		}
	}
	return values
}

// summarize turns replicate values into a percentile interval
func (e *Engine) summarize(q quantity, values []float64, valid, skipped int) stats.Quantity {
	lower, upper := percentileInterval(values, e.opts.Confidence)
	var se float64
	if len(values) > 1 {
		se, _ = mstats.StandardDeviationSample(values)
	}
	return stats.Quantity{
		Name:       q.name,
		Kind:       q.kind,
		Estimate:   q.estimate,
		Lower:      lower,
		Upper:      upper,
		StdErr:     se,
		Replicates: valid,
		Skipped:    skipped,
	}
}

func percentileInterval(values []float64, confidence float64) (float64, float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	alpha := (1 - confidence) / 2
	lower := gstat.Quantile(alpha, gstat.Empirical, sorted, nil)
	upper := gstat.Quantile(1-alpha, gstat.Empirical, sorted, nil)
	return lower, upper
}

// scoreQuantities scores the point model and every valid replicate with the
// bootstrap uncertainty and adds one quantity per candidate.
func (e *Engine) scoreQuantities(ci *stats.CITable, reps []replicate, point *factorial.PairwiseModel, res *Result) error {
	pointScores, err := e.scorer.Score(point, res.Uncertainty, e.costs)
	if err != nil {
		return err
	}

	perEntry := make([][]float64, len(pointScores.Entries))
	for _, rep := range reps {
		if !rep.valid {
			continue
		}
		m, err := e.scorer.Score(rep.model, res.Uncertainty, e.costs)
		if err != nil {
			return err
		}
		byKey := make(map[string]float64, len(m.Entries))
		for _, entry := range m.Entries {
			byKey[entry.Combination.Key()] = entry.Score
		}
		for i, entry := range pointScores.Entries {
			if v, ok := byKey[entry.Combination.Key()]; ok {
				perEntry[i] = append(perEntry[i], v)
			}
		}
	}

	for i, entry := range pointScores.Entries {
		q := quantity{name: stats.ScoreName(entry.Combination), kind: stats.KindScore, estimate: entry.Score}
		if len(perEntry[i]) == 0 {
			continue
		}
		ci.Add(e.summarize(q, perEntry[i], len(perEntry[i]), res.Skipped))
	}
	return nil
}

// sampleComplexity extrapolates the 1/√n shrinkage of the worst prediction
// interval to the target half-width.
func (e *Engine) sampleComplexity(cells []factorial.CellGroup, quantities []quantity, reps []replicate, ci *stats.CITable) *stats.SampleComplexity {
	target := e.opts.TargetHalfWidth
	sc := &stats.SampleComplexity{TargetHalfWidth: target}

	worst := -1
	for qi, q := range quantities {
		if q.kind != stats.KindPrediction {
			continue
		}
		summary, _ := ci.Get(q.name)
		if hw := summary.HalfWidth(); worst < 0 || hw > sc.WorstHalfWidth {
			sc.WorstHalfWidth = hw
			sc.WorstQuantity = q.name
			worst = qi
		}
	}

	sc.MinCellCount = math.MaxInt32
	for _, c := range cells {
		if len(c.Indices) < sc.MinCellCount {
			sc.MinCellCount = len(c.Indices)
		}
	}
	if len(cells) == 0 {
		sc.MinCellCount = 0
	}

	sc.Satisfied = sc.WorstHalfWidth <= target
	ratio := sc.WorstHalfWidth / target
	sc.RecommendedCellSize = sc.MinCellCount
	if !sc.Satisfied {
		sc.RecommendedCellSize = int(math.Ceil(float64(sc.MinCellCount) * ratio * ratio))
	}

	// Monte-Carlo error of the worst half-width from two halves of the replicates
	valid := ci.Valid
	sc.RecommendedReplicates = valid
	if worst >= 0 {
		values := column(reps, worst)
		half := len(values) / 2
		if half >= 2 {
			l1, u1 := percentileInterval(values[:half], e.opts.Confidence)
			l2, u2 := percentileInterval(values[half:], e.opts.Confidence)
			sc.MonteCarloError = math.Abs((u1-l1)/2-(u2-l2)/2) / 2
			tolerance := 0.1 * target
			if sc.MonteCarloError > tolerance {
				r := sc.MonteCarloError / tolerance
				sc.RecommendedReplicates = int(math.Ceil(float64(valid) * r * r))
			}
		}
	}

	e.logger.Info("worst half-width %.4g (target %.4g): cell size %d -> %d, replicates %d -> %d",
		sc.WorstHalfWidth, target, sc.MinCellCount, sc.RecommendedCellSize, valid, sc.RecommendedReplicates)
	return sc
}
