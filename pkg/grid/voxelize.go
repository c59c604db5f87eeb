package grid

import (
	"context"
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/chazu/shard/pkg/compute"
	"github.com/chazu/shard/pkg/geom"
	"github.com/chazu/shard/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/unixpickle/model3d/model3d"
)

// voxelSlack widens voxel boxes so triangles lying on a voxel face count as
// touching it.
const voxelSlack = 1e-9

// Build voxelizes mesh into a grid of the given dimensions covering box.
// Voxels intersected by a triangle are occupied. When fillInterior is set,
// every voxel not reachable from the grid border through empty voxels is
// occupied too, so a closed mesh yields a solid. The result is also stored
// as the base occupancy restored by ResetFilling.
func Build(ctx context.Context, d *compute.Dispatcher, mesh *kernel.Mesh, box geom.AABB, dims Coord, fillInterior bool) (*Grid, error) {
	if err := checkVolume(box); err != nil {
		return nil, err
	}

	g, err := New(dims, box)
	if err != nil {
		return nil, err
	}

	tris := make([]triangleSpan, 0, mesh.TriangleCount())
	for t := 0; t < mesh.TriangleCount(); t++ {
		idx := mesh.Triangle(t)
		if int(max(idx[0], idx[1], idx[2])) >= mesh.VertexCount() {
			return nil, errors.New("triangle references a missing vertex").
				WithType(ErrTypeConfig).
				WithTag("triangle", t)
		}
		tris = append(tris, g.span(
			mesh.Vertex(int(idx[0])),
			mesh.Vertex(int(idx[1])),
			mesh.Vertex(int(idx[2])),
		))
	}

	// Chunks own disjoint Z slabs so writes never overlap.
	err = d.DispatchGrain(ctx, dims.Z, 1, func(zlo, zhi int) error {
		for _, tri := range tris {
			z0 := max(tri.lo.Z, zlo)
			z1 := min(tri.hi.Z, zhi-1)
			for z := z0; z <= z1; z++ {
				for y := tri.lo.Y; y <= tri.hi.Y; y++ {
					for x := tri.lo.X; x <= tri.hi.X; x++ {
						c := Coord{X: x, Y: y, Z: z}
						i := g.Index(c)
						if g.occupied[i] {
							continue
						}
						if tri.t.RectCollision(g.voxelRect(c)) {
							g.occupied[i] = true
						}
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if fillInterior {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g.fillInterior()
	}

	copy(g.base, g.occupied)
	return g, nil
}

type triangleSpan struct {
	t      *model3d.Triangle
	lo, hi Coord
}

// voxelRect returns the box of voxel c, widened by voxelSlack.
func (g *Grid) voxelRect(c Coord) *model3d.Rect {
	center := g.VoxelCenter(c)
	h := g.voxel / 2 * (1 + voxelSlack)
	return &model3d.Rect{
		MinVal: model3d.Coord3D{X: center.X - h, Y: center.Y - h, Z: center.Z - h},
		MaxVal: model3d.Coord3D{X: center.X + h, Y: center.Y + h, Z: center.Z + h},
	}
}

// span returns the triangle with the range of voxels its bounding box
// touches, clamped to the grid.
func (g *Grid) span(a, b, c v3.Vec) triangleSpan {
	lo := a.Min(b).Min(c).Sub(g.origin).DivScalar(g.voxel)
	hi := a.Max(b).Max(c).Sub(g.origin).DivScalar(g.voxel)

	clampAxis := func(v float64, n int) int {
		i := int(math.Floor(v))
		return min(max(i, 0), n-1)
	}

	return triangleSpan{
		t: &model3d.Triangle{coord3D(a), coord3D(b), coord3D(c)},
		lo: Coord{
			X: clampAxis(lo.X, g.dims.X),
			Y: clampAxis(lo.Y, g.dims.Y),
			Z: clampAxis(lo.Z, g.dims.Z),
		},
		hi: Coord{
			X: clampAxis(hi.X, g.dims.X),
			Y: clampAxis(hi.Y, g.dims.Y),
			Z: clampAxis(hi.Z, g.dims.Z),
		},
	}
}

// fillInterior floods the empty exterior from the grid border through
// 6-connected empty voxels and occupies everything it did not reach.
func (g *Grid) fillInterior() {
	exterior := make([]bool, g.Len())
	queue := make([]int, 0, g.Len()/8)

	push := func(c Coord) {
		i := g.Index(c)
		if !g.occupied[i] && !exterior[i] {
			exterior[i] = true
			queue = append(queue, i)
		}
	}

	for z := 0; z < g.dims.Z; z++ {
		for y := 0; y < g.dims.Y; y++ {
			for x := 0; x < g.dims.X; x++ {
				if x == 0 || y == 0 || z == 0 ||
					x == g.dims.X-1 || y == g.dims.Y-1 || z == g.dims.Z-1 {
					push(Coord{X: x, Y: y, Z: z})
				}
			}
		}
	}

	for len(queue) > 0 {
		c := g.CoordOf(queue[0])
		queue = queue[1:]

		for _, o := range faceOffsets {
			n := c.Add(o)
			if g.InBounds(n) {
				push(n)
			}
		}
	}

	for i, ext := range exterior {
		if !ext {
			g.occupied[i] = true
		}
	}
}

var faceOffsets = [6]Coord{
	{X: -1}, {X: 1},
	{Y: -1}, {Y: 1},
	{Z: -1}, {Z: 1},
}

func coord3D(v v3.Vec) model3d.Coord3D {
	return model3d.Coord3D{X: v.X, Y: v.Y, Z: v.Z}
}
