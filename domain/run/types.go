package run

import (
	"crypto/sha256"
	"fmt"

	"gofactor/domain/core"
)

// RunFingerprint ensures deterministic replay: equal fingerprints mean the
// same data, the same options and the same seed.
type RunFingerprint struct {
	DatasetHash core.DatasetHash `json:"dataset_hash"`
	ConfigHash  core.ConfigHash  `json:"config_hash"`
	Seed        int64            `json:"seed"`
	CodeVersion string           `json:"code_version"`
	Fingerprint core.Hash        `json:"fingerprint"` // Hash of all above
}

// NewRunFingerprint creates a fingerprint from determinism parameters
func NewRunFingerprint(datasetHash core.DatasetHash, configHash core.ConfigHash, seed int64, codeVersion string) RunFingerprint {
	return RunFingerprint{
		DatasetHash: datasetHash,
		ConfigHash:  configHash,
		Seed:        seed,
		CodeVersion: codeVersion,
		Fingerprint: computeRunFingerprint(datasetHash, configHash, seed, codeVersion),
	}
}

// computeRunFingerprint generates deterministic hash from all determinism parameters
func computeRunFingerprint(datasetHash core.DatasetHash, configHash core.ConfigHash, seed int64, codeVersion string) core.Hash {
	data := fmt.Sprintf("dataset:%s|config:%s|seed:%d|code:%s", datasetHash, configHash, seed, codeVersion)
	hash := sha256.Sum256([]byte(data))
	return core.Hash(fmt.Sprintf("%x", hash))
}
