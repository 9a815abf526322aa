package ports

import (
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// ReplicateStream creates the generator for one attempt of one bootstrap
	// replicate. Streams depend only on (masterSeed, replicate, attempt), never
	// on scheduling.
	ReplicateStream(masterSeed int64, replicate, attempt int) *rand.Rand
}
