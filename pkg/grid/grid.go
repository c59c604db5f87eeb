// Package grid implements the regular voxel grid the fracture pipeline works
// on: voxelization of a closed triangle mesh, per-voxel labels and tentative
// distances, boundary detection, stochastic erosion and masking.
//
// Voxels are addressed either by Coord or by linear index
// x + X*(y + Y*z). Every per-voxel pass runs through a compute.Dispatcher
// and is a barrier.
package grid

import (
	"fmt"
	"math"
	"slices"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/chazu/shard/pkg/geom"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

const (
	// ErrTypeZeroVolume is the error type returned when a bounding box has
	// no volume.
	ErrTypeZeroVolume = "zero-volume"

	// ErrTypeConfig is the error type returned for unsupported options.
	ErrTypeConfig = "config"
)

// Unassigned is the label of a voxel no seed has reached.
const Unassigned int32 = -1

// Coord is an integer voxel coordinate. It is also used for grid
// dimensions.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (c Coord) String() string {
	return fmt.Sprintf("%dx%dx%d", c.X, c.Y, c.Z)
}

// Volume returns X*Y*Z.
func (c Coord) Volume() int {
	return c.X * c.Y * c.Z
}

// Add returns c+o.
func (c Coord) Add(o Coord) Coord {
	return Coord{X: c.X + o.X, Y: c.Y + o.Y, Z: c.Z + o.Z}
}

// Array returns the coordinate as an array.
func (c Coord) Array() [3]int {
	return [3]int{c.X, c.Y, c.Z}
}

// Grid is a dense voxel grid.
type Grid struct {
	dims   Coord
	origin v3.Vec
	voxel  float64

	occupied []bool
	base     []bool
	labels   []int32
	dist     []float32
	boundary []bool
	masked   []bool

	boundarySize int
}

// New returns an empty grid with the given dimensions whose cubic voxels
// cover box. The grid is centered on box.
func New(dims Coord, box geom.AABB) (*Grid, error) {
	if dims.X <= 0 || dims.Y <= 0 || dims.Z <= 0 {
		return nil, errors.New("grid dimensions must be positive").
			WithType(ErrTypeConfig).
			WithTag("dims", dims.String())
	}
	if box.IsEmpty() {
		return nil, errors.New("grid bounding box is empty").
			WithType(ErrTypeZeroVolume)
	}

	size := box.Size()
	voxel := math.Max(size.X/float64(dims.X), math.Max(size.Y/float64(dims.Y), size.Z/float64(dims.Z)))
	if voxel <= 0 {
		voxel = 1
	}

	ext := v3.Vec{X: float64(dims.X), Y: float64(dims.Y), Z: float64(dims.Z)}.MulScalar(voxel)
	n := dims.Volume()

	g := &Grid{
		dims:         dims,
		origin:       box.Center().Sub(ext.MulScalar(0.5)),
		voxel:        voxel,
		occupied:     make([]bool, n),
		base:         make([]bool, n),
		labels:       make([]int32, n),
		dist:         make([]float32, n),
		boundary:     make([]bool, n),
		masked:       make([]bool, n),
		boundarySize: 1,
	}
	g.clearLabels()
	return g, nil
}

// Dims returns the grid dimensions.
func (g *Grid) Dims() Coord {
	return g.dims
}

// Len returns the number of voxels.
func (g *Grid) Len() int {
	return len(g.occupied)
}

// Index returns the linear index of c.
func (g *Grid) Index(c Coord) int {
	return c.X + g.dims.X*(c.Y+g.dims.Y*c.Z)
}

// CoordOf returns the coordinate of linear index i.
func (g *Grid) CoordOf(i int) Coord {
	x := i % g.dims.X
	i /= g.dims.X
	return Coord{X: x, Y: i % g.dims.Y, Z: i / g.dims.Y}
}

// InBounds reports whether c lies inside the grid.
func (g *Grid) InBounds(c Coord) bool {
	return c.X >= 0 && c.Y >= 0 && c.Z >= 0 &&
		c.X < g.dims.X && c.Y < g.dims.Y && c.Z < g.dims.Z
}

// Occupied reports whether voxel i is occupied and not masked.
func (g *Grid) Occupied(i int) bool {
	return g.occupied[i] && !g.masked[i]
}

// SetOccupied sets both the current and the base occupancy of voxel i.
func (g *Grid) SetOccupied(i int, v bool) {
	g.occupied[i] = v
	g.base[i] = v
}

// Label returns the label of voxel i.
func (g *Grid) Label(i int) int32 {
	return g.labels[i]
}

// SetLabel sets the label of voxel i.
func (g *Grid) SetLabel(i int, l int32) {
	g.labels[i] = l
}

// Distance returns the tentative distance of voxel i.
func (g *Grid) Distance(i int) float32 {
	return g.dist[i]
}

// Assign replaces every label and distance.
func (g *Grid) Assign(labels []int32, dist []float32) {
	if len(labels) != g.Len() || len(dist) != g.Len() {
		panic(fmt.Sprintf("grid: assign %d labels and %d distances to %d voxels", len(labels), len(dist), g.Len()))
	}
	copy(g.labels, labels)
	copy(g.dist, dist)
}

// Boundary reports whether voxel i was flagged by the last boundary pass.
func (g *Grid) Boundary(i int) bool {
	return g.boundary[i]
}

// Masked reports whether voxel i is hidden.
func (g *Grid) Masked(i int) bool {
	return g.masked[i]
}

// OccupiedCount returns the number of visible occupied voxels.
func (g *Grid) OccupiedCount() int {
	n := 0
	for i := range g.occupied {
		if g.Occupied(i) {
			n++
		}
	}
	return n
}

// LabelCounts returns the number of visible occupied voxels per label,
// unassigned voxels excluded.
func (g *Grid) LabelCounts() map[int32]int {
	counts := make(map[int32]int)
	for i, l := range g.labels {
		if g.Occupied(i) && l != Unassigned {
			counts[l]++
		}
	}
	return counts
}

// Labels returns the distinct labels of visible occupied voxels in
// ascending order.
func (g *Grid) Labels() []int32 {
	counts := g.LabelCounts()
	labels := make([]int32, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	slices.Sort(labels)
	return labels
}

// VoxelSize returns the edge length of a voxel in world units.
func (g *Grid) VoxelSize() float64 {
	return g.voxel
}

// VoxelCenter returns the world position of the center of voxel c.
func (g *Grid) VoxelCenter(c Coord) v3.Vec {
	return g.origin.Add(v3.Vec{
		X: float64(c.X) + 0.5,
		Y: float64(c.Y) + 0.5,
		Z: float64(c.Z) + 0.5,
	}.MulScalar(g.voxel))
}

// AABB returns the world box covered by the grid.
func (g *Grid) AABB() geom.AABB {
	return geom.AABB{
		Min: g.origin,
		Max: g.origin.Add(v3.Vec{
			X: float64(g.dims.X),
			Y: float64(g.dims.Y),
			Z: float64(g.dims.Z),
		}.MulScalar(g.voxel)),
	}
}

// ResetFilling restores the base occupancy and clears labels, distances,
// boundary and mask flags so the grid can be fractured again.
func (g *Grid) ResetFilling() {
	copy(g.occupied, g.base)
	clear(g.boundary)
	clear(g.masked)
	g.clearLabels()
}

// MaskUnassigned hides every occupied voxel without a label and returns how
// many were hidden.
func (g *Grid) MaskUnassigned() int {
	n := 0
	for i, l := range g.labels {
		if g.Occupied(i) && l == Unassigned {
			g.masked[i] = true
			n++
		}
	}
	return n
}

// UndoMask makes every masked voxel visible again.
func (g *Grid) UndoMask() {
	clear(g.masked)
}

func (g *Grid) clearLabels() {
	inf := float32(math.Inf(1))
	for i := range g.labels {
		g.labels[i] = Unassigned
		g.dist[i] = inf
	}
}
