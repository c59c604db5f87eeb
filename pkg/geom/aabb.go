// Package geom holds the small amount of world-space geometry shared by the
// voxel grid, the mesh codecs and the fragment exporter.
package geom

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// AABB is an axis-aligned bounding box in world units. The zero value is not
// empty; use NewAABB to start a box that grows through Update.
type AABB struct {
	Min v3.Vec `json:"min"`
	Max v3.Vec `json:"max"`
}

// NewAABB returns an empty box ready for point-union updates.
func NewAABB() AABB {
	inf := math.Inf(1)
	return AABB{
		Min: v3.Vec{X: inf, Y: inf, Z: inf},
		Max: v3.Vec{X: -inf, Y: -inf, Z: -inf},
	}
}

// Update grows the box to contain p.
func (b *AABB) Update(p v3.Vec) {
	b.Min = v3.Vec{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)}
	b.Max = v3.Vec{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)}
}

// Union grows the box to contain o. Empty boxes are ignored.
func (b *AABB) Union(o AABB) {
	if o.IsEmpty() {
		return
	}
	b.Update(o.Min)
	b.Update(o.Max)
}

// IsEmpty reports whether no point was ever added.
func (b AABB) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Size returns the extent along each axis.
func (b AABB) Size() v3.Vec {
	if b.IsEmpty() {
		return v3.Vec{}
	}
	return b.Max.Sub(b.Min)
}

// Center returns the midpoint of the box.
func (b AABB) Center() v3.Vec {
	return v3.Vec{
		X: (b.Min.X + b.Max.X) / 2,
		Y: (b.Min.Y + b.Max.Y) / 2,
		Z: (b.Min.Z + b.Max.Z) / 2,
	}
}

// Volume returns the enclosed volume; degenerate boxes have zero volume.
func (b AABB) Volume() float64 {
	s := b.Size()
	return s.X * s.Y * s.Z
}

// MaxExtent returns the length of the largest axis.
func (b AABB) MaxExtent() float64 {
	s := b.Size()
	return math.Max(s.X, math.Max(s.Y, s.Z))
}
