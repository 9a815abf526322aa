package run

import (
	"testing"

	"gofactor/domain/core"
	"gofactor/domain/factorial"
)

func TestRunFingerprint_Deterministic(t *testing.T) {
	datasetHash := core.DatasetHash("test-dataset")
	configHash := core.ConfigHash("test-config")
	seed := int64(42)
	codeVersion := "1.0.0"

	fp1 := NewRunFingerprint(datasetHash, configHash, seed, codeVersion)
	fp2 := NewRunFingerprint(datasetHash, configHash, seed, codeVersion)

	if fp1.Fingerprint != fp2.Fingerprint {
		t.Errorf("Fingerprints not identical: %s vs %s", fp1.Fingerprint, fp2.Fingerprint)
	}
	if fp1.DatasetHash != datasetHash {
		t.Errorf("DatasetHash mismatch: %s vs %s", fp1.DatasetHash, datasetHash)
	}
	if fp1.Seed != seed {
		t.Errorf("Seed mismatch: %d vs %d", fp1.Seed, seed)
	}
}

func TestRunFingerprint_Unique(t *testing.T) {
	base := NewRunFingerprint("test-dataset", "test-config", 42, "1.0.0")

	testCases := []struct {
		name string
		fp   RunFingerprint
	}{
		{"different dataset", NewRunFingerprint("other-dataset", "test-config", 42, "1.0.0")},
		{"different config", NewRunFingerprint("test-dataset", "other-config", 42, "1.0.0")},
		{"different seed", NewRunFingerprint("test-dataset", "test-config", 43, "1.0.0")},
		{"different version", NewRunFingerprint("test-dataset", "test-config", 42, "1.0.1")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.fp.Fingerprint == base.Fingerprint {
				t.Errorf("Fingerprint should differ for %s", tc.name)
			}
		})
	}
}

func TestRunManifest_Validate(t *testing.T) {
	ds := &factorial.Dataset{
		Factors: []factorial.Factor{
			{Name: "A", Levels: []string{"a0", "a1"}},
			{Name: "B", Levels: []string{"b0", "b1"}},
		},
		Records: []factorial.Record{
			{Levels: []string{"a0", "b0"}, Outcome: 1},
			{Levels: []string{"a1", "b1"}, Outcome: 2},
		},
	}

	m := NewRunManifest(ds, "cfg", factorial.PathCellMeans, "greedy", 7, "1.0.0")
	if err := m.Validate(); err != nil {
		t.Fatalf("Unexpected validation error: %v", err)
	}
	if m.Records != 2 || len(m.Factors) != 2 {
		t.Errorf("Manifest did not capture dataset shape: %+v", m)
	}

	again := NewRunManifest(ds, "cfg", factorial.PathCellMeans, "greedy", 7, "1.0.0")
	if again.Fingerprint.Fingerprint != m.Fingerprint.Fingerprint {
		t.Error("Same inputs should give the same fingerprint")
	}
	if again.RunID == m.RunID {
		t.Error("Each manifest should get a fresh run id")
	}

	m.Path = "unknown"
	if err := m.Validate(); err == nil {
		t.Error("Expected error for unknown path")
	}
}
