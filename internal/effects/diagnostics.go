package effects

import (
	"context"
	"fmt"

	"gofactor/domain/factorial"
	"gofactor/internal/pairwise"
)

// collapsedLevel replaces every level of an ablated factor
const collapsedLevel = "*"

// AblationResult compares the pairwise-only model with the saturated
// full-combination cell-mean model before and after one factor is collapsed.
// The gap between the two is the higher-order signal the pairwise model
// misses; collapsing a factor that takes part in a higher-order term removes
// that term from the saturated model, so the gap shrinks.
type AblationResult struct {
	Factor           string  `json:"factor"`
	PairwiseMSE      float64 `json:"pairwise_mse"`
	SaturatedMSE     float64 `json:"saturated_mse"`
	CollapsedGap     float64 `json:"collapsed_gap"`      // Pairwise − saturated MSE after collapsing
	HigherOrderShare float64 `json:"higher_order_share"` // Gap removed by the collapse / total variance
	Flagged          bool    `json:"flagged"`
}

// Gap is the pairwise − saturated MSE of the full design
func (a AblationResult) Gap() float64 {
	return a.PairwiseMSE - a.SaturatedMSE
}

// Diagnostics describes how much of the outcome variance the pairwise
// model accounts for.
type Diagnostics struct {
	SST              float64          `json:"sst"`               // Total sum of squares of the targets
	InteractionShare float64          `json:"interaction_share"` // Σ_pairs Σ_cells n·I² / SST
	ResidualShare    float64          `json:"residual_share"`    // Full-combination variance left by the pairwise model
	Ablation         []AblationResult `json:"ablation"`
	Threshold        float64          `json:"threshold"`
}

// HigherOrderSuspected reports whether the pairwise model leaves more than
// the threshold of variance unexplained or any factor was flagged by ablation
func (d *Diagnostics) HigherOrderSuspected() bool {
	if d.ResidualShare > d.Threshold {
		return true
	}
	for _, a := range d.Ablation {
		if a.Flagged {
			return true
		}
	}
	return false
}

// Diagnose computes the interaction variance share, the residual share of
// the full-combination cell means, and the per-factor ablation.
func Diagnose(ctx context.Context, builder *pairwise.Builder, ds *factorial.Dataset, model *factorial.PairwiseModel, threshold float64) (*Diagnostics, error) {
	if len(model.Pairs) == 0 {
		return nil, fmt.Errorf("empty pairwise model")
	}
	path := model.Pairs[0].Path

	var mean float64
	for _, r := range ds.Records {
		mean += r.Value(path)
	}
	mean /= float64(len(ds.Records))

	diag := &Diagnostics{Threshold: threshold}
	for _, r := range ds.Records {
		dev := r.Value(path) - mean
		diag.SST += dev * dev
	}

	var interactionSS float64
	for _, d := range model.Pairs {
		for key, inter := range d.Interaction {
			interactionSS += float64(d.Counts[key]) * inter * inter
		}
	}

	full := residual(ds, model, path)
	if diag.SST > 0 {
		diag.InteractionShare = interactionSS / diag.SST
		diag.ResidualShare = full.gapSS / diag.SST
	}

	for fi, f := range ds.Factors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		collapsed := ds.Collapse(fi, collapsedLevel)
		collapsedModel, err := builder.Build(ctx, collapsed)
		if err != nil {
			return nil, fmt.Errorf("ablation of %s: %w", f.Name, err)
		}
		after := residual(collapsed, collapsedModel, path)

		res := AblationResult{
			Factor:       f.Name,
			PairwiseMSE:  full.pairwiseMSE(),
			SaturatedMSE: full.saturatedMSE(),
			CollapsedGap: after.gap(),
		}
		if diag.SST > 0 {
			res.HigherOrderShare = (full.gapSS - after.gapSS) / diag.SST
		}
		res.Flagged = res.HigherOrderShare > threshold
		diag.Ablation = append(diag.Ablation, res)
	}
	return diag, nil
}

// fit holds the sums of squares of the pairwise and saturated models over
// the samples whose full combination the pairwise model can predict.
type fit struct {
	withinSS float64 // Σ (y − cell mean)², the saturated model error
	gapSS    float64 // Σ n·(cell mean − pairwise prediction)²
	n        int
}

func (f fit) saturatedMSE() float64 {
	if f.n == 0 {
		return 0
	}
	return f.withinSS / float64(f.n)
}

func (f fit) pairwiseMSE() float64 {
	if f.n == 0 {
		return 0
	}
	return (f.withinSS + f.gapSS) / float64(f.n)
}

func (f fit) gap() float64 {
	return f.pairwiseMSE() - f.saturatedMSE()
}

// residual splits the pairwise model error into within-cell noise and the
// part a saturated full-combination model would explain
func residual(ds *factorial.Dataset, model *factorial.PairwiseModel, path factorial.Path) fit {
	var f fit
	for _, cell := range ds.Cells() {
		pred, ok := model.Predict(cell.Combination)
		if !ok {
			continue
		}
		var cellMean float64
		for _, idx := range cell.Indices {
			cellMean += ds.Records[idx].Value(path)
		}
		cellMean /= float64(len(cell.Indices))
		for _, idx := range cell.Indices {
			dev := ds.Records[idx].Value(path) - cellMean
			f.withinSS += dev * dev
		}
		diff := cellMean - pred
		f.gapSS += float64(len(cell.Indices)) * diff * diff
		f.n += len(cell.Indices)
	}
	return f
}
