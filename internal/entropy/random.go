// Package entropy provides the single seedable random source shared by the
// simulation. Every stochastic draw (placement, quality tests, shuffles,
// price moves) goes through one Source so a run is reproducible from its seed.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
)

// Source is a seeded pseudo-random stream. It is not safe for concurrent use;
// the simulation core is single-threaded.
type Source struct {
	seed int64
	rng  *mrand.Rand
}

// New returns a source seeded with seed. A zero seed draws one from crypto/rand.
func New(seed int64) *Source {
	if seed == 0 {
		seed = RandomSeed()
	}
	return &Source{
		seed: seed,
		rng:  mrand.New(mrand.NewSource(seed)),
	}
}

// Seed returns the seed the source was created with.
func (s *Source) Seed() int64 {
	return s.seed
}

// Float returns a uniform float64 in [0, 1).
func (s *Source) Float() float64 {
	return s.rng.Float64()
}

// Uniform returns a uniform float64 in [lo, hi).
func (s *Source) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*s.rng.Float64()
}

// Norm returns a standard normal draw.
func (s *Source) Norm() float64 {
	return s.rng.NormFloat64()
}

// Intn returns a uniform int in [0, n).
func (s *Source) Intn(n int) int {
	return s.rng.Intn(n)
}

// Perm returns a shuffled permutation of [0, n).
func (s *Source) Perm(n int) []int {
	return s.rng.Perm(n)
}

// RandomSeed draws a non-zero seed from crypto/rand.
func RandomSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		return 1
	}
	seed := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if seed == 0 {
		seed = 1
	}
	return seed
}
