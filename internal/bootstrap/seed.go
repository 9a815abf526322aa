package bootstrap

import "math/rand"

const golden = 0x9E3779B97F4A7C15

// splitmix64 is the SplitMix64 finalizer
func splitmix64(x uint64) uint64 {
	x += golden
	z := x
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// ReplicateSeed derives the seed of one replicate attempt from the master seed
func ReplicateSeed(master int64, replicate, attempt int) int64 {
	x := uint64(master) ^ (golden * uint64(replicate+1))
	if attempt > 0 {
		x ^= splitmix64(uint64(attempt) * 0xD1B54A32D192ED03)
	}
	return int64(splitmix64(x))
}

// SplitMixRNG implements ports.RNGPort with SplitMix64-derived seeds
type SplitMixRNG struct{}

// ReplicateStream creates the generator of one replicate attempt
func (SplitMixRNG) ReplicateStream(masterSeed int64, replicate, attempt int) *rand.Rand {
	return rand.New(rand.NewSource(ReplicateSeed(masterSeed, replicate, attempt)))
}
