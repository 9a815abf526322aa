package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gofactor/domain/factorial"
	"gofactor/domain/run"
	"gofactor/domain/selection"
	"gofactor/internal"
	"gofactor/internal/bootstrap"
	"gofactor/internal/config"
	"gofactor/internal/effects"
	"gofactor/internal/errors"
	"gofactor/internal/optimizer"
	"gofactor/internal/pairwise"
	"gofactor/internal/pci"
	"gofactor/internal/score"
	"gofactor/internal/shapfit"
	"gofactor/ports"
)

// Version is stamped into every run manifest; overridden at link time
var Version = "0.1.0"

// AnalysisService runs the full pipeline: pairwise estimation, diagnostics,
// PCI, bootstrap, scoring and selection
type AnalysisService struct {
	cfg       *config.Config
	estimator ports.Estimator
	scorer    *score.Engine
	optimizer *optimizer.Optimizer
	runs      ports.RunRepository
	rng       ports.RNGPort
	logger    *internal.Logger
}

// AnalysisRequest is one dataset to analyze
type AnalysisRequest struct {
	Dataset *factorial.Dataset
	Costs   factorial.CostTable // Overrides per-record costs when set
	Persist bool
}

// Report contains the complete output of one analysis
type Report struct {
	Manifest    *run.RunManifest                `json:"manifest"`
	Model       *factorial.PairwiseModel        `json:"model"`
	Diagnostics *effects.Diagnostics            `json:"diagnostics,omitempty"`
	Marginals   []effects.FactorMarginals       `json:"marginals"`
	Classical   []map[factorial.CellKey]float64 `json:"classical_interaction"` // Unweighted residuals, aligned with Model.Pairs
	PCI         []*pci.Result                   `json:"pci"`
	Bootstrap   *bootstrap.Result               `json:"bootstrap"`
	Scores      *selection.ScoreMatrix          `json:"scores"`
	Selection   selection.Selection             `json:"selection"`
	Warnings    []string                        `json:"warnings,omitempty"`
	RuntimeMs   int64                           `json:"runtime_ms"`
}

// NewAnalysisService validates the configuration and builds every component
// once. runs may be nil to disable persistence.
func NewAnalysisService(cfg *config.Config, runs ports.RunRepository, logger *internal.Logger) (*AnalysisService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logger.OrDefault()

	estimator, err := NewEstimator(cfg, logger)
	if err != nil {
		return nil, err
	}
	scorer, err := score.NewEngine(cfg.ScoreOptions(), logger)
	if err != nil {
		return nil, err
	}
	opt, err := optimizer.New(cfg.OptimizerOptions(), logger)
	if err != nil {
		return nil, err
	}

	return &AnalysisService{
		cfg:       cfg,
		estimator: estimator,
		scorer:    scorer,
		optimizer: opt,
		runs:      runs,
		logger:    logger.WithComponent("analysis"),
	}, nil
}

// NewEstimator selects the estimation path
func NewEstimator(cfg *config.Config, logger *internal.Logger) (ports.Estimator, error) {
	switch cfg.Estimation.Path {
	case factorial.PathCellMeans:
		return effects.NewCellMeansEstimator(cfg.EffectsOptions(), logger), nil
	case factorial.PathShapFit:
		return shapfit.NewEstimator(cfg.Estimation.Shrinkage, cfg.Estimation.MinCells, logger), nil
	}
	return nil, errors.ConfigInvalid("estimation.path", fmt.Sprintf("unknown estimation path %q", cfg.Estimation.Path))
}

// WithRNG replaces the bootstrap replicate streams
func (s *AnalysisService) WithRNG(rng ports.RNGPort) *AnalysisService {
	s.rng = rng
	return s
}

// Analyze runs the pipeline on one dataset
func (s *AnalysisService) Analyze(ctx context.Context, req AnalysisRequest) (*Report, error) {
	start := time.Now()
	ds := req.Dataset
	if ds == nil {
		return nil, errors.ConfigInvalid("dataset", "analysis request has no dataset")
	}
	path := s.estimator.Path()
	if err := ds.Validate(path == factorial.PathShapFit); err != nil {
		return nil, err
	}

	costs := ds.CostTable()
	for key, c := range req.Costs {
		costs[key] = c
	}

	s.logger.Info("analyzing %d records over %d factors via %s path", len(ds.Records), len(ds.Factors), path)

	builder := pairwise.NewBuilder(s.estimator, s.cfg.Bootstrap.Workers, s.logger)
	model, err := builder.Build(ctx, ds)
	if err != nil {
		return nil, errors.Wrap(err, "pairwise estimation failed")
	}

	report := &Report{
		Model:     model,
		PCI:       pci.ForModel(model),
		Marginals: effects.Marginals(ds, path),
	}
	for _, d := range model.Pairs {
		classical := map[factorial.CellKey]float64{}
		if d.Table != nil {
			classical = effects.ClassicalInteraction(d.Table)
		}
		report.Classical = append(report.Classical, classical)
	}
	for _, w := range model.Warnings() {
		report.Warnings = append(report.Warnings, w.Error())
	}

	if len(ds.Factors) >= 3 {
		diag, err := effects.Diagnose(ctx, builder, ds, model, s.cfg.Estimation.AblationThreshold)
		if err != nil {
			return nil, errors.Wrap(err, "diagnostics failed")
		}
		report.Diagnostics = diag
		if diag.HigherOrderSuspected() {
			var flagged []string
			for _, a := range diag.Ablation {
				if a.Flagged {
					flagged = append(flagged, a.Factor)
				}
			}
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("higher-order interactions suspected (residual share %.3f, factors %v)", diag.ResidualShare, flagged))
		}
	}

	engine := bootstrap.NewEngine(s.estimator, s.cfg.BootstrapOptions(), s.logger).WithScorer(s.scorer, costs)
	if s.rng != nil {
		engine.WithRNG(s.rng)
	}
	boot, err := engine.Run(ctx, ds, model)
	if err != nil {
		return nil, errors.Wrap(err, "bootstrap failed")
	}
	report.Bootstrap = boot
	if boot.Skipped > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d of %d bootstrap replicates skipped", boot.Skipped, boot.Skipped+boot.Valid))
	}

	scores, err := s.scorer.Score(model, boot.Uncertainty, costs)
	if err != nil {
		return nil, errors.Wrap(err, "scoring failed")
	}
	report.Scores = scores

	sel, err := s.optimizer.Optimize(ctx, scores)
	if err != nil {
		return nil, errors.Wrap(err, "optimization failed")
	}
	report.Selection = sel

	report.Manifest = run.NewRunManifest(ds, s.cfg.Hash(), path, string(s.cfg.Optimizer.Mode), s.cfg.Bootstrap.Seed, Version)
	report.RuntimeMs = time.Since(start).Milliseconds()

	if req.Persist {
		if err := s.persist(ctx, report); err != nil {
			return nil, err
		}
	}

	s.logger.Info("run %s: %s", report.Manifest.RunID, sel)
	return report, nil
}

func (s *AnalysisService) persist(ctx context.Context, report *Report) error {
	if s.runs == nil {
		return errors.ConfigInvalid("database.url", "persistence requested but no run repository is configured")
	}
	body, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "failed to encode report")
	}
	record := &ports.RunRecord{Manifest: report.Manifest, Selection: report.Selection, Report: body}
	if err := s.runs.SaveRun(ctx, record); err != nil {
		return errors.Wrap(err, "failed to persist run")
	}
	return nil
}
