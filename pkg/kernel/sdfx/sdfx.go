// Package sdfx implements the kernel.Kernel interface using the
// github.com/deadsy/sdfx SDF library's marching cubes.
package sdfx

import (
	"fmt"

	"github.com/chazu/shard/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface checks.
var (
	_ kernel.Kernel = (*SdfxKernel)(nil)
	_ kernel.Solid  = (*sdfxSolid)(nil)
)

// field adapts a kernel.Solid to sdf.SDF3.
type field struct {
	s  kernel.Solid
	bb sdf.Box3
}

func (f *field) Evaluate(p v3.Vec) float64 {
	return f.s.Evaluate(p.X, p.Y, p.Z)
}

func (f *field) BoundingBox() sdf.Box3 {
	return f.bb
}

// sdfxSolid wraps an sdf.SDF3 to implement kernel.Solid.
type sdfxSolid struct {
	s sdf.SDF3
}

// BoundingBox returns the axis-aligned bounding box.
func (s *sdfxSolid) BoundingBox() (min, max [3]float64) {
	bb := s.s.BoundingBox()
	min = [3]float64{bb.Min.X, bb.Min.Y, bb.Min.Z}
	max = [3]float64{bb.Max.X, bb.Max.Y, bb.Max.Z}
	return min, max
}

// Evaluate returns the signed distance at (x, y, z).
func (s *sdfxSolid) Evaluate(x, y, z float64) float64 {
	return s.s.Evaluate(v3.Vec{X: x, Y: y, Z: z})
}

// Wrap exposes an sdf.SDF3 as a kernel.Solid.
func Wrap(s sdf.SDF3) kernel.Solid {
	return &sdfxSolid{s: s}
}

// Box returns a box solid with its minimum corner at the origin.
func Box(x, y, z float64) (kernel.Solid, error) {
	s, err := sdf.Box3D(v3.Vec{X: x, Y: y, Z: z}, 0)
	if err != nil {
		return nil, fmt.Errorf("sdfx.Box3D: %w", err)
	}
	// Shift from center-origin to min-corner-origin.
	m := sdf.Translate3d(v3.Vec{X: x / 2, Y: y / 2, Z: z / 2})
	return Wrap(sdf.Transform3D(s, m)), nil
}

// Sphere returns a sphere solid centered at the origin.
func Sphere(radius float64) (kernel.Solid, error) {
	s, err := sdf.Sphere3D(radius)
	if err != nil {
		return nil, fmt.Errorf("sdfx.Sphere3D: %w", err)
	}
	return Wrap(s), nil
}

// SdfxKernel implements kernel.Kernel using sdfx.
type SdfxKernel struct{}

// New returns a new SdfxKernel.
func New() *SdfxKernel {
	return &SdfxKernel{}
}

// unwrap returns the sdf.SDF3 behind a kernel.Solid, adapting foreign
// solids.
func unwrap(s kernel.Solid) sdf.SDF3 {
	if ss, ok := s.(*sdfxSolid); ok {
		return ss.s
	}
	min, max := s.BoundingBox()
	return &field{
		s: s,
		bb: sdf.Box3{
			Min: v3.Vec{X: min[0], Y: min[1], Z: min[2]},
			Max: v3.Vec{X: max[0], Y: max[1], Z: max[2]},
		},
	}
}

// ToMesh converts a solid to a triangle mesh using uniform marching cubes.
// The result is a triangle soup with face normals; callers weld it when
// shared vertices are needed.
func (k *SdfxKernel) ToMesh(s kernel.Solid, cells int) (*kernel.Mesh, error) {
	if cells <= 0 {
		return nil, fmt.Errorf("marching cubes cells must be positive, got %d", cells)
	}

	min, max := s.BoundingBox()
	for i := 0; i < 3; i++ {
		if !(max[i] > min[i]) {
			return nil, fmt.Errorf("solid bounding box is empty on axis %d", i)
		}
	}

	renderer := render.NewMarchingCubesUniform(cells)
	triangles := render.ToTriangles(unwrap(s), renderer)

	numTri := len(triangles)
	numVerts := numTri * 3

	vertices := make([]float32, 0, numVerts*3)
	normals := make([]float32, 0, numVerts*3)
	indices := make([]uint32, 0, numVerts)

	for i, tri := range triangles {
		n := tri.Normal()
		nx := float32(n.X)
		ny := float32(n.Y)
		nz := float32(n.Z)

		for j := 0; j < 3; j++ {
			v := tri[j]
			vertices = append(vertices, float32(v.X), float32(v.Y), float32(v.Z))
			normals = append(normals, nx, ny, nz)
			indices = append(indices, uint32(i*3+j))
		}
	}

	return &kernel.Mesh{
		Vertices: vertices,
		Normals:  normals,
		Indices:  indices,
		Label:    -1,
	}, nil
}
