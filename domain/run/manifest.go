package run

import (
	"fmt"

	"gofactor/domain/core"
	"gofactor/domain/factorial"
)

// RunManifest is the record of one analysis run: enough to replay it
type RunManifest struct {
	RunID       core.RunID       `json:"run_id"`
	DatasetHash core.DatasetHash `json:"dataset_hash"`
	ConfigHash  core.ConfigHash  `json:"config_hash"`
	Path        factorial.Path   `json:"path"`
	Mode        string           `json:"mode"`
	Factors     []string         `json:"factors"`
	Records     int              `json:"records"`
	Seed        int64            `json:"seed"`
	CodeVersion string           `json:"code_version"`
	Fingerprint RunFingerprint   `json:"fingerprint"`
	CreatedAt   core.Timestamp   `json:"created_at"`
}

// NewRunManifest stamps a new run
func NewRunManifest(
	ds *factorial.Dataset,
	configHash core.ConfigHash,
	path factorial.Path,
	mode string,
	seed int64,
	codeVersion string,
) *RunManifest {
	datasetHash := ds.Hash()
	factors := make([]string, len(ds.Factors))
	for i, f := range ds.Factors {
		factors[i] = f.Name
	}

	return &RunManifest{
		RunID:       core.NewRunID(),
		DatasetHash: datasetHash,
		ConfigHash:  configHash,
		Path:        path,
		Mode:        mode,
		Factors:     factors,
		Records:     len(ds.Records),
		Seed:        seed,
		CodeVersion: codeVersion,
		Fingerprint: NewRunFingerprint(datasetHash, configHash, seed, codeVersion),
		CreatedAt:   core.Now(),
	}
}

// Validate checks if the manifest is complete
func (r *RunManifest) Validate() error {
	if core.ID(r.RunID).IsEmpty() {
		return fmt.Errorf("run_manifest: run_id cannot be empty")
	}
	if r.DatasetHash == "" {
		return fmt.Errorf("run_manifest: dataset_hash cannot be empty")
	}
	if r.ConfigHash == "" {
		return fmt.Errorf("run_manifest: config_hash cannot be empty")
	}
	if !r.Path.Valid() {
		return fmt.Errorf("run_manifest: unknown path %q", r.Path)
	}
	if r.CodeVersion == "" {
		return fmt.Errorf("run_manifest: code_version cannot be empty")
	}
	return nil
}
