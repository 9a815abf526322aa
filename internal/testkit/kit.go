package testkit

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"gofactor/domain/core"
	"gofactor/domain/factorial"
	"gofactor/domain/run"
	"gofactor/ports"
)

// TestKit provides testing utilities and fixtures
type TestKit struct {
	runs *InMemoryRunRepository
	rng  *RNGAdapter
}

// NewTestKit creates a new test kit instance
func NewTestKit() *TestKit {
	return &TestKit{runs: NewInMemoryRunRepository(), rng: &RNGAdapter{}}
}

// RunRepository returns the shared in-memory run store
func (t *TestKit) RunRepository() *InMemoryRunRepository {
	return t.runs
}

// RNGAdapter returns a deterministic RNG port
func (t *TestKit) RNGAdapter() ports.RNGPort {
	return t.rng
}

// Dataset generates a synthetic dataset from a generator config
func (t *TestKit) Dataset(cfg FactorialGeneratorConfig) *factorial.Dataset {
	return NewFactorialDataGenerator(cfg).Generate()
}

// RNGAdapter implements the RNGPort interface for testing
type RNGAdapter struct{}

// ReplicateStream derives a replicate stream by hashing replicate and attempt
// into the base seed
func (r *RNGAdapter) ReplicateStream(masterSeed int64, replicate, attempt int) *rand.Rand {
	seed := masterSeed
	seed = int64(hashString(fmt.Sprintf("replicate:%d", replicate))) + seed
	seed = int64(hashString(fmt.Sprintf("attempt:%d", attempt))) + seed
	return rand.New(rand.NewSource(seed))
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2 algorithm
	}
	return hash
}

// InMemoryRunRepository implements RunRepository with in-memory storage
type InMemoryRunRepository struct {
	runs map[core.RunID]*ports.RunRecord
	mu   sync.RWMutex
}

func NewInMemoryRunRepository() *InMemoryRunRepository {
	return &InMemoryRunRepository{runs: make(map[core.RunID]*ports.RunRecord)}
}

func (s *InMemoryRunRepository) SaveRun(ctx context.Context, record *ports.RunRecord) error {
	if record == nil || record.Manifest == nil {
		return fmt.Errorf("run record has no manifest")
	}
	if err := record.Manifest.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.runs[record.Manifest.RunID] = &copied
	return nil
}

func (s *InMemoryRunRepository) GetRun(ctx context.Context, runID core.RunID) (*ports.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.runs[runID]
	if !exists {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	copied := *record
	return &copied, nil
}

// ListRuns returns manifests newest first. Run ids are time ordered, so ties
// on the timestamp fall back to the id.
func (s *InMemoryRunRepository) ListRuns(ctx context.Context, limit int) ([]*run.RunManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	manifests := make([]*run.RunManifest, 0, len(s.runs))
	for _, r := range s.runs {
		manifests = append(manifests, r.Manifest)
	}
	sort.Slice(manifests, func(i, j int) bool {
		ti, tj := manifests[i].CreatedAt.Time(), manifests[j].CreatedAt.Time()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return manifests[i].RunID > manifests[j].RunID
	})
	if limit > 0 && len(manifests) > limit {
		manifests = manifests[:limit]
	}
	return manifests, nil
}

// Count returns the number of stored runs
func (s *InMemoryRunRepository) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}
