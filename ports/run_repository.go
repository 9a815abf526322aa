package ports

import (
	"context"
	"encoding/json"

	"gofactor/domain/core"
	"gofactor/domain/run"
	"gofactor/domain/selection"
)

// RunRecord is what gets persisted for one analysis run
type RunRecord struct {
	Manifest  *run.RunManifest    `json:"manifest"`
	Selection selection.Selection `json:"selection"`
	Report    json.RawMessage     `json:"report,omitempty"`
}

// RunRepository stores completed runs
type RunRepository interface {
	SaveRun(ctx context.Context, record *RunRecord) error
	GetRun(ctx context.Context, runID core.RunID) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*run.RunManifest, error)
}
