package testkit

import (
	"context"
	"math"
	"testing"

	"gofactor/domain/core"
	"gofactor/domain/factorial"
	"gofactor/domain/run"
	"gofactor/domain/selection"
	"gofactor/ports"
)

func TestFactorialDataGenerator_Basic(t *testing.T) {
	cfg := AdditiveConfig(3, 42)
	ds := NewFactorialDataGenerator(cfg).Generate()

	if err := ds.Validate(false); err != nil {
		t.Fatalf("generated dataset is invalid: %v", err)
	}
	if got, want := len(ds.Records), 3*2*3; got != want {
		t.Fatalf("expected %d records, got %d", want, got)
	}

	// Noise-free records equal the truth of their cell
	for _, r := range ds.Records {
		idx := []int{ds.Factors[0].LevelIndex(r.Levels[0]), ds.Factors[1].LevelIndex(r.Levels[1])}
		if math.Abs(r.Outcome-cfg.Truth(idx)) > 1e-12 {
			t.Errorf("record %v: outcome %v, truth %v", r.Levels, r.Outcome, cfg.Truth(idx))
		}
	}
}

func TestFactorialDataGenerator_Deterministic(t *testing.T) {
	cfg := InteractionConfig(1, 0.5, 4, 7)
	a := NewFactorialDataGenerator(cfg).Generate()
	b := NewFactorialDataGenerator(cfg).Generate()
	if a.Hash() != b.Hash() {
		t.Fatal("same seed produced different datasets")
	}

	cfg.Seed = 8
	c := NewFactorialDataGenerator(cfg).Generate()
	if a.Hash() == c.Hash() {
		t.Error("different seeds produced identical datasets")
	}
}

func TestFactorialDataGenerator_Attribution(t *testing.T) {
	cfg := ThreeFactorConfig(0.3, 2, 5)
	cfg.Attribution = true
	ds := NewFactorialDataGenerator(cfg).Generate()

	if err := ds.Validate(true); err != nil {
		t.Fatalf("attribution dataset is invalid: %v", err)
	}
	for i, r := range ds.Records {
		if len(r.Attribution) != len(ds.Factors)+1 {
			t.Fatalf("record %d: %d attribution terms", i, len(r.Attribution))
		}
		if math.Abs(r.AttributionTotal()-r.Outcome) > 1e-9 {
			t.Errorf("record %d: baseline plus attribution %v != outcome %v", i, r.AttributionTotal(), r.Outcome)
		}
	}
}

func TestFactorialDataGenerator_CellSizesAndCosts(t *testing.T) {
	cfg := AdditiveConfig(2, 1)
	cfg.CellSizes = map[string]int{"a0|b0": 5, "a2|b1": 0}
	cfg.Costs = map[string]float64{"a1|b1": 3}
	ds := NewFactorialDataGenerator(cfg).Generate()

	counts := make(map[string]int)
	for _, r := range ds.Records {
		counts[factorial.Combination(r.Levels).Key()]++
	}
	if counts["a0|b0"] != 5 || counts["a2|b1"] != 0 || counts["a1|b0"] != 2 {
		t.Errorf("unexpected cell sizes: %v", counts)
	}
	if got := ds.CostTable()["a1|b1"]; got != 3 {
		t.Errorf("expected cost 3 for a1|b1, got %v", got)
	}
}

func TestInMemoryRunRepository(t *testing.T) {
	kit := NewTestKit()
	repo := kit.RunRepository()
	ctx := context.Background()
	ds := kit.Dataset(AdditiveConfig(1, 1))

	var ids []core.RunID
	for i := 0; i < 3; i++ {
		m := run.NewRunManifest(ds, core.ConfigHash(core.NewHash([]byte("cfg"))), factorial.PathCellMeans, "greedy", int64(i), "test")
		sel := selection.EmptySelection(selection.ModeGreedy, 1, "none", 0)
		if err := repo.SaveRun(ctx, &ports.RunRecord{Manifest: m, Selection: sel}); err != nil {
			t.Fatalf("save run %d: %v", i, err)
		}
		ids = append(ids, m.RunID)
	}

	if repo.Count() != 3 {
		t.Fatalf("expected 3 runs, got %d", repo.Count())
	}
	got, err := repo.GetRun(ctx, ids[1])
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Manifest.Seed != 1 {
		t.Errorf("expected seed 1, got %d", got.Manifest.Seed)
	}
	if _, err := repo.GetRun(ctx, core.NewRunID()); err == nil {
		t.Error("expected error for unknown run")
	}

	list, _ := repo.ListRuns(ctx, 2)
	if len(list) != 2 {
		t.Fatalf("expected 2 manifests, got %d", len(list))
	}
	if err := repo.SaveRun(ctx, &ports.RunRecord{Manifest: &run.RunManifest{}}); err == nil {
		t.Error("expected incomplete manifest to be rejected")
	}
}

func TestRNGAdapter_Deterministic(t *testing.T) {
	rng := NewTestKit().RNGAdapter()
	a := rng.ReplicateStream(42, 3, 0).Float64()
	b := rng.ReplicateStream(42, 3, 0).Float64()
	c := rng.ReplicateStream(42, 3, 1).Float64()
	if a != b {
		t.Error("same replicate produced different streams")
	}
	if a == c {
		t.Error("retry attempt reused the first stream")
	}
}
