// Package seeder places the seeds fragment regions grow from.
package seeder

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/chazu/shard/pkg/grid"
	"github.com/chazu/shard/pkg/metric"
	"github.com/chazu/shard/pkg/rng"
)

// ErrTypeTooManySeeds is the error type returned when more seeds are
// requested than there are occupied voxels.
const ErrTypeTooManySeeds = "too-many-seeds"

// MergeEpsilon is the separation below which MergeSeeds collapses two seeds.
const MergeEpsilon = 1.5

// nearAttempts bounds the draws spent on a single near seed.
const nearAttempts = 32

// Seed is a labeled voxel a fragment region grows from. Several seeds may
// share a label, in which case they grow one region together.
type Seed struct {
	Pos    grid.Coord      `json:"pos"`
	Label  int32           `json:"label"`
	Metric metric.Distance `json:"metric"`
}

// Uniform returns n distinct occupied voxels labeled 0 to n-1.
func Uniform(g *grid.Grid, n int, kind rng.Kind, stream *rng.Stream) ([]Seed, error) {
	if n <= 0 {
		return nil, errors.New("seed count must be positive").
			WithType(grid.ErrTypeConfig).
			WithTag("seeds", n)
	}
	if !kind.Valid() {
		return nil, errors.New("unsupported random kind").
			WithType(grid.ErrTypeConfig).
			WithTag("kind", kind.String())
	}

	occupied := occupiedIndices(g)
	if n > len(occupied) {
		return nil, errors.New("more seeds than occupied voxels").
			WithType(ErrTypeTooManySeeds).
			WithTag("seeds", n).
			WithTag("occupied", len(occupied))
	}

	var picked []int
	switch kind {
	case rng.Halton:
		picked = halton(g, occupied, n, stream)
	default:
		picked = shuffle(occupied, n, stream)
	}

	seeds := make([]Seed, n)
	for i, idx := range picked {
		seeds[i] = Seed{Pos: g.CoordOf(idx), Label: int32(i)}
	}
	return seeds, nil
}

// shuffle picks n indices with a partial Fisher-Yates shuffle.
func shuffle(occupied []int, n int, stream *rng.Stream) []int {
	pool := append([]int(nil), occupied...)
	for i := 0; i < n; i++ {
		j := i + stream.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}

// halton walks the (2, 3, 5) Halton sequence over the grid volume from a
// random offset and keeps unique occupied voxels. When the walk runs out of
// attempts on sparse grids it continues with a base 2 walk over the occupied
// list, and finally with the occupied list in order.
func halton(g *grid.Grid, occupied []int, n int, stream *rng.Stream) []int {
	dims := g.Dims()
	used := make(map[int]bool, n)
	picked := make([]int, 0, n)

	take := func(idx int) {
		if !used[idx] {
			used[idx] = true
			picked = append(picked, idx)
		}
	}

	offset := uint64(stream.IntN(1<<20)) + 1
	attempts := uint64(8*dims.Volume() + 64)

	for k := offset; len(picked) < n && k < offset+attempts; k++ {
		c := grid.Coord{
			X: int(rng.HaltonAt(k, 2) * float64(dims.X)),
			Y: int(rng.HaltonAt(k, 3) * float64(dims.Y)),
			Z: int(rng.HaltonAt(k, 5) * float64(dims.Z)),
		}
		if idx := g.Index(c); g.Occupied(idx) {
			take(idx)
		}
	}

	attempts = uint64(8*len(occupied) + 64)
	for k := offset; len(picked) < n && k < offset+attempts; k++ {
		take(occupied[int(rng.HaltonAt(k, 2)*float64(len(occupied)))])
	}

	for i := 0; len(picked) < n; i++ {
		take(occupied[i])
	}
	return picked
}

// NearSeeds returns extra seeds placed within spreading voxels of the base
// seeds, visiting the base seeds round-robin. Every new seed inherits the
// label of the base seed it was placed around. Fewer than extra seeds are
// returned when the neighbourhoods are exhausted.
func NearSeeds(g *grid.Grid, base []Seed, extra, spreading int, stream *rng.Stream) []Seed {
	if len(base) == 0 || extra <= 0 {
		return nil
	}
	spreading = max(spreading, 0)

	used := make(map[grid.Coord]bool, len(base)+extra)
	for _, s := range base {
		used[s.Pos] = true
	}

	var near []Seed
	misses := 0
	for i := 0; len(near) < extra && misses < len(base); i++ {
		b := base[i%len(base)]

		placed := false
		for a := 0; a < nearAttempts; a++ {
			c := b.Pos.Add(grid.Coord{
				X: stream.IntN(2*spreading+1) - spreading,
				Y: stream.IntN(2*spreading+1) - spreading,
				Z: stream.IntN(2*spreading+1) - spreading,
			})
			if !g.InBounds(c) || used[c] || !g.Occupied(g.Index(c)) {
				continue
			}

			used[c] = true
			near = append(near, Seed{Pos: c, Label: b.Label, Metric: b.Metric})
			placed = true
			break
		}

		if placed {
			misses = 0
		} else {
			misses++
		}
	}
	return near
}

// MergeSeeds folds superset into the labels of base. Every seed of superset
// that is not a base seed adopts the label of its nearest base seed under fn,
// ties going to the lowest label. Seeds closer than MergeEpsilon to an
// already kept seed are then dropped. Base seeds are always kept and come
// first in the result. The number of distinct labels never grows.
func MergeSeeds(base, superset []Seed, fn metric.Distance) []Seed {
	isBase := make(map[grid.Coord]bool, len(base))
	kept := make([]Seed, 0, len(superset))
	for _, b := range base {
		if isBase[b.Pos] {
			continue
		}
		isBase[b.Pos] = true
		kept = append(kept, b)
	}
	if len(base) == 0 {
		return kept
	}

	for _, s := range superset {
		if isBase[s.Pos] {
			continue
		}

		best := base[0]
		bestDist := fn.Between(s.Pos.Array(), best.Pos.Array())
		for _, b := range base[1:] {
			d := fn.Between(s.Pos.Array(), b.Pos.Array())
			if d < bestDist || (d == bestDist && b.Label < best.Label) {
				best, bestDist = b, d
			}
		}

		collapsed := false
		for _, k := range kept {
			if fn.Between(s.Pos.Array(), k.Pos.Array()) < MergeEpsilon {
				collapsed = true
				break
			}
		}
		if collapsed {
			continue
		}

		s.Label = best.Label
		s.Metric = fn
		kept = append(kept, s)
	}
	return kept
}

// WithMetric records the distance function the seeds are grown under.
func WithMetric(seeds []Seed, d metric.Distance) error {
	if !d.Valid() {
		return errors.New("invalid distance function").
			WithType(grid.ErrTypeConfig).
			WithTag("distance", d.String())
	}
	for i := range seeds {
		seeds[i].Metric = d
	}
	return nil
}

// Labels returns the number of distinct labels among seeds.
func Labels(seeds []Seed) int {
	seen := make(map[int32]struct{}, len(seeds))
	for _, s := range seeds {
		seen[s.Label] = struct{}{}
	}
	return len(seen)
}

func occupiedIndices(g *grid.Grid) []int {
	idx := make([]int, 0, g.Len())
	for i := 0; i < g.Len(); i++ {
		if g.Occupied(i) {
			idx = append(idx, i)
		}
	}
	return idx
}
