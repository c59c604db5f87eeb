package fracture

import (
	"context"
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/chazu/shard/pkg/compute"
	"github.com/chazu/shard/pkg/grid"
	"github.com/chazu/shard/pkg/metric"
	"github.com/chazu/shard/pkg/seeder"
)

// FloodOptions configures a flood.
type FloodOptions struct {
	Distance metric.Distance

	// Connectivity is 6 or 26.
	Connectivity int

	// MaxRounds caps the number of rounds. Zero uses the occupied voxel
	// count, which bounds the length of any shortest path.
	MaxRounds int
}

// FloodResult summarizes a flood.
type FloodResult struct {
	Rounds     int           `json:"rounds"`
	Converged  bool          `json:"converged"`
	Unassigned int           `json:"unassigned"`
	Counts     map[int32]int `json:"counts"`
}

// FloodFracturer labels every occupied voxel with the label of its nearest
// seed, measuring distances along paths through occupied voxels only.
type FloodFracturer struct {
	d *compute.Dispatcher
}

// NewFloodFracturer returns a fracturer running its rounds on d.
func NewFloodFracturer(d *compute.Dispatcher) *FloodFracturer {
	return &FloodFracturer{d: d}
}

type step struct {
	off  grid.Coord
	cost float32
}

// steps returns the neighbour offsets and their cost under dist.
func steps(dist metric.Distance, connectivity int) []step {
	var s []step
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nonZero := abs(dx) + abs(dy) + abs(dz)
				if nonZero == 0 || (connectivity == 6 && nonZero > 1) {
					continue
				}
				s = append(s, step{
					off:  grid.Coord{X: dx, Y: dy, Z: dz},
					cost: float32(dist.Norm(float64(dx), float64(dy), float64(dz))),
				})
			}
		}
	}
	return s
}

// Build runs the flood over g from seeds. Options and seeds are validated
// first; on error the grid is left untouched.
//
// Each round reads the labels and distances of the previous round and
// writes the next ones into a second buffer. An occupied voxel adopts the
// smallest neighbour distance plus step cost when it is strictly less than
// its own distance; equal candidates go to the lowest label. The flood stops
// at a fixed point or after MaxRounds rounds. Voxels no seed can reach stay
// unassigned and are counted in the result.
func (f *FloodFracturer) Build(ctx context.Context, g *grid.Grid, seeds []seeder.Seed, opts FloodOptions) (FloodResult, error) {
	if err := validateFlood(g, seeds, opts); err != nil {
		return FloodResult{}, err
	}

	n := g.Len()
	inf := float32(math.Inf(1))

	curLabels := make([]int32, n)
	curDist := make([]float32, n)
	for i := range curLabels {
		curLabels[i] = grid.Unassigned
		curDist[i] = inf
	}
	for _, s := range seeds {
		i := g.Index(s.Pos)
		curLabels[i] = s.Label
		curDist[i] = 0
	}
	nextLabels := make([]int32, n)
	nextDist := make([]float32, n)

	maxRounds := opts.MaxRounds
	if maxRounds == 0 {
		maxRounds = g.OccupiedCount()
	}
	stp := steps(opts.Distance, opts.Connectivity)

	var res FloodResult
	for res.Rounds < maxRounds {
		changed, err := f.d.Count(ctx, n, func(lo, hi int) int {
			return floodRange(g, stp, curLabels, curDist, nextLabels, nextDist, lo, hi)
		})
		if err != nil {
			return FloodResult{}, err
		}
		res.Rounds++

		curLabels, nextLabels = nextLabels, curLabels
		curDist, nextDist = nextDist, curDist

		if changed == 0 {
			res.Converged = true
			break
		}
	}

	g.Assign(curLabels, curDist)

	for i := 0; i < n; i++ {
		if g.Occupied(i) && curLabels[i] == grid.Unassigned {
			res.Unassigned++
		}
	}
	res.Counts = g.LabelCounts()
	return res, nil
}

// floodRange computes one round for voxels [lo, hi) and returns how many
// changed.
func floodRange(g *grid.Grid, stp []step, labels []int32, dist []float32, nextLabels []int32, nextDist []float32, lo, hi int) int {
	changed := 0

	for i := lo; i < hi; i++ {
		bestDist := dist[i]
		bestLabel := labels[i]

		if g.Occupied(i) {
			c := g.CoordOf(i)
			candDist := float32(math.Inf(1))
			candLabel := grid.Unassigned

			for _, s := range stp {
				nc := c.Add(s.off)
				if !g.InBounds(nc) {
					continue
				}
				j := g.Index(nc)
				if !g.Occupied(j) || labels[j] == grid.Unassigned {
					continue
				}

				d := dist[j] + s.cost
				if d < candDist || (d == candDist && labels[j] < candLabel) {
					candDist = d
					candLabel = labels[j]
				}
			}

			if candLabel != grid.Unassigned && candDist < bestDist {
				bestDist = candDist
				bestLabel = candLabel
				changed++
			}
		}

		nextLabels[i] = bestLabel
		nextDist[i] = bestDist
	}
	return changed
}

func validateFlood(g *grid.Grid, seeds []seeder.Seed, opts FloodOptions) error {
	if !opts.Distance.Valid() {
		return errors.New("invalid distance function").
			WithType(ErrTypeConfig).
			WithTag("distance", opts.Distance.String())
	}
	if opts.Connectivity != 6 && opts.Connectivity != 26 {
		return errors.New("unsupported connectivity").
			WithType(ErrTypeConfig).
			WithTag("connectivity", opts.Connectivity)
	}
	if opts.MaxRounds < 0 {
		return errors.New("max rounds must not be negative").
			WithType(ErrTypeConfig).
			WithTag("max_rounds", opts.MaxRounds)
	}
	if len(seeds) == 0 {
		return errors.New("no seeds").WithType(ErrTypeConfig)
	}

	seen := make(map[grid.Coord]bool, len(seeds))
	for i, s := range seeds {
		switch {
		case !g.InBounds(s.Pos):
			return errors.New("seed out of bounds").
				WithType(ErrTypeConfig).
				WithTag("seed", i).
				WithTag("pos", s.Pos.String())
		case !g.Occupied(g.Index(s.Pos)):
			return errors.New("seed on an empty voxel").
				WithType(ErrTypeConfig).
				WithTag("seed", i).
				WithTag("pos", s.Pos.String())
		case s.Label < 0:
			return errors.New("seed label must not be negative").
				WithType(ErrTypeConfig).
				WithTag("seed", i).
				WithTag("label", s.Label)
		case seen[s.Pos]:
			return errors.New("duplicate seed position").
				WithType(ErrTypeConfig).
				WithTag("seed", i).
				WithTag("pos", s.Pos.String())
		}
		seen[s.Pos] = true
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
