package grid

import (
	"context"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/chazu/shard/pkg/compute"
)

// DetectBoundaries flags every visible occupied voxel that has, within
// Chebyshev radius size, a voxel outside the grid, an empty or masked voxel,
// or a voxel with a different label. It returns the number of boundary
// voxels.
func (g *Grid) DetectBoundaries(ctx context.Context, d *compute.Dispatcher, size int) (int, error) {
	if size < 1 {
		return 0, errors.New("boundary size must be at least 1").
			WithType(ErrTypeConfig).
			WithTag("size", size)
	}
	g.boundarySize = size

	return d.Count(ctx, g.Len(), func(lo, hi int) int {
		n := 0
		for i := lo; i < hi; i++ {
			b := g.Occupied(i) && g.isBoundary(i, size)
			g.boundary[i] = b
			if b {
				n++
			}
		}
		return n
	})
}

func (g *Grid) isBoundary(i, size int) bool {
	c := g.CoordOf(i)
	l := g.labels[i]

	for dz := -size; dz <= size; dz++ {
		for dy := -size; dy <= size; dy++ {
			for dx := -size; dx <= size; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				if g.differs(c.Add(Coord{X: dx, Y: dy, Z: dz}), l) {
					return true
				}
			}
		}
	}
	return false
}

// differs reports whether n is outside the grid, hidden, empty, or carries a
// label other than l.
func (g *Grid) differs(n Coord, l int32) bool {
	if !g.InBounds(n) {
		return true
	}
	j := g.Index(n)
	return !g.Occupied(j) || g.labels[j] != l
}
