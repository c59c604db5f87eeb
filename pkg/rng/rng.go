// Package rng provides the per-run random context used by the seeder and the
// erosion pass. A Stream is created once per fracture run from an explicit
// seed. Parallel consumers either derive an independent sub-stream per task
// or use the stateless hashed draws of At, which do not depend on how work
// is split between workers.
package rng

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Kind selects how seed positions are sampled.
type Kind uint8

const (
	// Uniform draws from the pseudo-random stream.
	Uniform Kind = iota
	// Halton walks a low-discrepancy sequence, which spreads seeds more
	// evenly for the same count.
	Halton
	numKinds
)

var kindNames = [numKinds]string{"Uniform", "Halton"}

func (k Kind) String() string {
	if k >= numKinds {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	return k < numKinds
}

// ParseKind converts a case-insensitive name into a Kind.
func ParseKind(name string) (Kind, error) {
	for i, n := range kindNames {
		if strings.EqualFold(n, name) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown random kind %q, expected uniform or halton", name)
}

// Stream is a seeded pseudo-random stream. It is not safe for concurrent
// use.
type Stream struct {
	seed uint64
	r    *rand.Rand
}

// New returns a stream seeded with seed.
func New(seed uint64) *Stream {
	return &Stream{
		seed: seed,
		r:    rand.New(rand.NewPCG(seed, mix(seed^0x9e3779b97f4a7c15))),
	}
}

// Seed returns the seed the stream was created with.
func (s *Stream) Seed() uint64 {
	return s.seed
}

// Float64 returns a value in [0, 1).
func (s *Stream) Float64() float64 {
	return s.r.Float64()
}

// IntN returns a value in [0, n). It panics if n <= 0.
func (s *Stream) IntN(n int) int {
	return s.r.IntN(n)
}

// Uint64 returns a raw 64-bit value.
func (s *Stream) Uint64() uint64 {
	return s.r.Uint64()
}

// Sub derives an independent stream for the given task index. The result
// only depends on the parent seed and the index.
func (s *Stream) Sub(task uint64) *Stream {
	return New(mix(s.seed ^ mix(task+1)))
}

// At returns a value in [0, 1) determined only by the stream seed and the
// two keys, typically an iteration number and a voxel index.
func (s *Stream) At(a, b uint64) float64 {
	h := mix(s.seed ^ mix(a+0x632be59bd9b4e019) ^ mix(b))
	return float64(h>>11) / (1 << 53)
}

// HaltonAt returns the index-th element of the van der Corput sequence in
// the given base.
func HaltonAt(index, base uint64) float64 {
	f := 1.0
	r := 0.0
	for index > 0 {
		f /= float64(base)
		r += f * float64(index%base)
		index /= base
	}
	return r
}

// mix is the splitmix64 finalizer.
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unsupported random kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
