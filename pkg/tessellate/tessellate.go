// Package tessellate extracts one triangle mesh per fragment label from a
// labeled voxel grid using a surface extraction kernel.
package tessellate

import (
	"context"
	"fmt"
	"math"

	"github.com/chazu/shard/pkg/compute"
	"github.com/chazu/shard/pkg/grid"
	"github.com/chazu/shard/pkg/kernel"
)

// IsoLevel is the indicator value the surface is extracted at.
const IsoLevel = 0.5

// SeamWeight is the indicator value of boundary voxels of other labels that
// touch the extracted label.
const SeamWeight = 0.5

// Options configures Tessellate.
type Options struct {
	// Subdivisions is the number of marching cubes cells per voxel.
	Subdivisions int

	// IncludeSeams extends every fragment into the neighbouring boundary
	// voxels of other fragments so adjacent surfaces meet.
	IncludeSeams bool
}

// Tessellate returns one welded mesh per distinct label of g, in ascending
// label order. Masked voxels count as empty. Meshes may be open along the
// cut seams. The grid is only read.
func Tessellate(ctx context.Context, d *compute.Dispatcher, g *grid.Grid, k kernel.Kernel, opts Options) ([]*kernel.Mesh, error) {
	if g == nil {
		return nil, nil
	}
	if opts.Subdivisions < 1 {
		opts.Subdivisions = 1
	}

	labels := g.Labels()
	meshes := make([]*kernel.Mesh, len(labels))

	err := d.DispatchGrain(ctx, len(labels), 1, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			l := labels[i]
			s := newLabelSolid(g, l, opts.IncludeSeams)
			dims := g.Dims()
			cells := (max(dims.X, dims.Y, dims.Z) + 2) * opts.Subdivisions

			mesh, err := k.ToMesh(s, cells)
			if err != nil {
				return fmt.Errorf("tessellate: ToMesh failed for label %d: %w", l, err)
			}

			mesh.Weld(g.VoxelSize() * 1e-4)
			mesh.Label = l
			mesh.Name = fmt.Sprintf("fragment_%d", l)
			meshes[i] = mesh
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := meshes[:0]
	for _, m := range meshes {
		if !m.IsEmpty() {
			out = append(out, m)
		}
	}
	return out, nil
}

// labelSolid is the trilinearly interpolated indicator field of one label,
// sampled at voxel centers with one voxel of empty padding on every side.
type labelSolid struct {
	dims   grid.Coord // padded
	origin [3]float64 // center of padded voxel (0, 0, 0)
	voxel  float64
	field  []float32
}

func newLabelSolid(g *grid.Grid, l int32, seams bool) *labelSolid {
	gd := g.Dims()
	pd := grid.Coord{X: gd.X + 2, Y: gd.Y + 2, Z: gd.Z + 2}
	c0 := g.VoxelCenter(grid.Coord{})

	s := &labelSolid{
		dims:   pd,
		origin: [3]float64{c0.X - g.VoxelSize(), c0.Y - g.VoxelSize(), c0.Z - g.VoxelSize()},
		voxel:  g.VoxelSize(),
		field:  make([]float32, pd.Volume()),
	}

	for i := 0; i < g.Len(); i++ {
		if !g.Occupied(i) {
			continue
		}

		c := g.CoordOf(i)
		var v float32
		switch {
		case g.Label(i) == l:
			v = 1
		case seams && g.Boundary(i) && touches(g, c, l):
			v = SeamWeight
		default:
			continue
		}
		s.field[s.index(c.X+1, c.Y+1, c.Z+1)] = v
	}
	return s
}

// touches reports whether a neighbour of c within one voxel carries label l.
func touches(g *grid.Grid, c grid.Coord, l int32) bool {
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				n := c.Add(grid.Coord{X: dx, Y: dy, Z: dz})
				if g.InBounds(n) {
					j := g.Index(n)
					if g.Occupied(j) && g.Label(j) == l {
						return true
					}
				}
			}
		}
	}
	return false
}

func (s *labelSolid) index(x, y, z int) int {
	return x + s.dims.X*(y+s.dims.Y*z)
}

func (s *labelSolid) at(x, y, z int) float64 {
	if x < 0 || y < 0 || z < 0 || x >= s.dims.X || y >= s.dims.Y || z >= s.dims.Z {
		return 0
	}
	return float64(s.field[s.index(x, y, z)])
}

// BoundingBox returns the padded grid box.
func (s *labelSolid) BoundingBox() (min, max [3]float64) {
	h := s.voxel / 2
	for i, n := range [3]int{s.dims.X, s.dims.Y, s.dims.Z} {
		min[i] = s.origin[i] - h
		max[i] = s.origin[i] + float64(n-1)*s.voxel + h
	}
	return min, max
}

// Evaluate returns IsoLevel minus the interpolated indicator, so the label's
// voxels are inside.
func (s *labelSolid) Evaluate(x, y, z float64) float64 {
	fx := (x - s.origin[0]) / s.voxel
	fy := (y - s.origin[1]) / s.voxel
	fz := (z - s.origin[2]) / s.voxel

	x0, y0, z0 := int(math.Floor(fx)), int(math.Floor(fy)), int(math.Floor(fz))
	tx, ty, tz := fx-float64(x0), fy-float64(y0), fz-float64(z0)

	lerp := func(a, b, t float64) float64 { return a + (b-a)*t }

	c00 := lerp(s.at(x0, y0, z0), s.at(x0+1, y0, z0), tx)
	c10 := lerp(s.at(x0, y0+1, z0), s.at(x0+1, y0+1, z0), tx)
	c01 := lerp(s.at(x0, y0, z0+1), s.at(x0+1, y0, z0+1), tx)
	c11 := lerp(s.at(x0, y0+1, z0+1), s.at(x0+1, y0+1, z0+1), tx)

	v := lerp(lerp(c00, c10, ty), lerp(c01, c11, ty), tz)
	return IsoLevel - v
}
