package kernel

import (
	"math"

	"github.com/chazu/shard/pkg/geom"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Mesh is an indexed triangle mesh.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, indices has 3 uint32s per triangle.
type Mesh struct {
	Vertices []float32 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`  // [nx0,ny0,nz0, ...]
	Indices  []uint32  `json:"indices"`  // [i0,i1,i2, ...] triangles
	Label    int32     `json:"label"`    // fragment label the surface was extracted for
	Name     string    `json:"name"`
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Vertex returns the position of vertex i.
func (m *Mesh) Vertex(i int) v3.Vec {
	return v3.Vec{
		X: float64(m.Vertices[3*i]),
		Y: float64(m.Vertices[3*i+1]),
		Z: float64(m.Vertices[3*i+2]),
	}
}

// Triangle returns the vertex indices of triangle i.
func (m *Mesh) Triangle(i int) [3]uint32 {
	return [3]uint32{m.Indices[3*i], m.Indices[3*i+1], m.Indices[3*i+2]}
}

// AABB returns the bounding box of the vertices.
func (m *Mesh) AABB() geom.AABB {
	box := geom.NewAABB()
	for i := 0; i < m.VertexCount(); i++ {
		box.Update(m.Vertex(i))
	}
	return box
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	return &Mesh{
		Vertices: append([]float32(nil), m.Vertices...),
		Normals:  append([]float32(nil), m.Normals...),
		Indices:  append([]uint32(nil), m.Indices...),
		Label:    m.Label,
		Name:     m.Name,
	}
}

// Weld merges vertices closer than eps along every axis and drops triangles
// that become degenerate. Normals are recomputed.
func (m *Mesh) Weld(eps float64) {
	if eps <= 0 {
		eps = 1e-6
	}

	type key [3]int64
	lookup := make(map[key]uint32, m.VertexCount())
	remap := make([]uint32, m.VertexCount())
	vertices := make([]float32, 0, len(m.Vertices))

	for i := 0; i < m.VertexCount(); i++ {
		p := m.Vertex(i)
		k := key{
			int64(math.Round(p.X / eps)),
			int64(math.Round(p.Y / eps)),
			int64(math.Round(p.Z / eps)),
		}

		idx, ok := lookup[k]
		if !ok {
			idx = uint32(len(vertices) / 3)
			lookup[k] = idx
			vertices = append(vertices, m.Vertices[3*i:3*i+3]...)
		}
		remap[i] = idx
	}

	indices := m.Indices[:0]
	for t := 0; t < m.TriangleCount(); t++ {
		a := remap[m.Indices[3*t]]
		b := remap[m.Indices[3*t+1]]
		c := remap[m.Indices[3*t+2]]
		if a == b || b == c || a == c {
			continue
		}
		indices = append(indices, a, b, c)
	}

	m.Vertices = vertices
	m.Indices = indices
	m.ComputeNormals()
}

// ComputeNormals sets every vertex normal to the normalized sum of the
// area-weighted normals of the triangles using it.
func (m *Mesh) ComputeNormals() {
	normals := make([]float64, len(m.Vertices))

	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		a, b, c := m.Vertex(int(tri[0])), m.Vertex(int(tri[1])), m.Vertex(int(tri[2]))
		n := b.Sub(a).Cross(c.Sub(a))

		for _, v := range tri {
			normals[3*v] += n.X
			normals[3*v+1] += n.Y
			normals[3*v+2] += n.Z
		}
	}

	m.Normals = make([]float32, len(m.Vertices))
	for i := 0; i < len(normals); i += 3 {
		l := math.Sqrt(normals[i]*normals[i] + normals[i+1]*normals[i+1] + normals[i+2]*normals[i+2])
		if l == 0 {
			continue
		}
		m.Normals[i] = float32(normals[i] / l)
		m.Normals[i+1] = float32(normals[i+1] / l)
		m.Normals[i+2] = float32(normals[i+2] / l)
	}
}
