// Package meshio imports and exports triangle meshes. Imported models are
// cached next to their source in an exact little-endian binary layout so
// later runs skip the codec.
package meshio

import (
	"path/filepath"
	"strings"

	"github.com/chazu/shard/pkg/geom"
	"github.com/chazu/shard/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

const (
	ErrTypeCache             = "cache"
	ErrTypeIO                = "io"
	ErrTypeMalformedMesh     = "malformed-mesh"
	ErrTypeUnsupportedFormat = "unsupported-format"
)

// Vertex is an imported mesh vertex.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
	Tangent  [3]float32
}

// Face is an imported triangle with its bounding box and normal.
type Face struct {
	Indices   [3]uint32
	Component uint32
	Min       [3]float32
	Max       [3]float32
	Normal    [3]float32
}

// Component is one part of a model.
type Component struct {
	Vertices []Vertex
	Faces    []Face
	AABB     geom.AABB
}

// Model is an imported mesh made of components.
type Model struct {
	Path       string
	Components []Component
	AABB       geom.AABB
}

// Name returns the file name of the model without its extension.
func (m *Model) Name() string {
	base := filepath.Base(m.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// VertexCount returns the number of vertices of every component.
func (m *Model) VertexCount() int {
	n := 0
	for _, c := range m.Components {
		n += len(c.Vertices)
	}
	return n
}

// FaceCount returns the number of faces of every component.
func (m *Model) FaceCount() int {
	n := 0
	for _, c := range m.Components {
		n += len(c.Faces)
	}
	return n
}

// ToMesh fuses every component into one indexed mesh.
func (m *Model) ToMesh() *kernel.Mesh {
	out := &kernel.Mesh{
		Vertices: make([]float32, 0, 3*m.VertexCount()),
		Normals:  make([]float32, 0, 3*m.VertexCount()),
		Indices:  make([]uint32, 0, 3*m.FaceCount()),
		Label:    -1,
		Name:     m.Name(),
	}

	for _, c := range m.Components {
		base := uint32(len(out.Vertices) / 3)
		for _, v := range c.Vertices {
			out.Vertices = append(out.Vertices, v.Position[:]...)
			out.Normals = append(out.Normals, v.Normal[:]...)
		}
		for _, f := range c.Faces {
			out.Indices = append(out.Indices, f.Indices[0]+base, f.Indices[1]+base, f.Indices[2]+base)
		}
	}
	return out
}

// Release drops the vertex and face buffers. The bounding box is kept.
func (m *Model) Release() {
	for i := range m.Components {
		m.Components[i].Vertices = nil
		m.Components[i].Faces = nil
	}
	m.Components = nil
}

// newComponent builds a component from a triangle soup, fusing vertices
// with identical positions and averaging face normals per vertex.
func newComponent(id uint32, tris [][3]v3.Vec) Component {
	c := Component{AABB: geom.NewAABB()}
	lookup := make(map[[3]float32]uint32, len(tris))

	index := func(p v3.Vec) uint32 {
		key := [3]float32{float32(p.X), float32(p.Y), float32(p.Z)}
		if i, ok := lookup[key]; ok {
			return i
		}
		i := uint32(len(c.Vertices))
		lookup[key] = i
		c.Vertices = append(c.Vertices, Vertex{Position: key})
		c.AABB.Update(p)
		return i
	}

	normals := make([]v3.Vec, 0, len(tris))
	for _, t := range tris {
		f := Face{Component: id}
		for j, p := range t {
			f.Indices[j] = index(p)
		}
		if f.Indices[0] == f.Indices[1] || f.Indices[1] == f.Indices[2] || f.Indices[0] == f.Indices[2] {
			continue
		}

		lo := t[0].Min(t[1]).Min(t[2])
		hi := t[0].Max(t[1]).Max(t[2])
		n := t[1].Sub(t[0]).Cross(t[2].Sub(t[0]))
		f.Min = vec32(lo)
		f.Max = vec32(hi)
		if l := n.Length(); l > 0 {
			f.Normal = vec32(n.DivScalar(l))
		}

		c.Faces = append(c.Faces, f)
		normals = append(normals, n)
	}

	sum := make([]v3.Vec, len(c.Vertices))
	for i, f := range c.Faces {
		for _, v := range f.Indices {
			sum[v] = sum[v].Add(normals[i])
		}
	}
	for i, n := range sum {
		if l := n.Length(); l > 0 {
			c.Vertices[i].Normal = vec32(n.DivScalar(l))
		}
	}
	return c
}

func vec32(v v3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}
