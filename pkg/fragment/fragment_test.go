package fragment

import (
	"bytes"
	"container/heap"
	"strings"
	"testing"

	"github.com/chazu/shard/pkg/geom"
	"github.com/chazu/shard/pkg/grid"
	"github.com/chazu/shard/pkg/kernel"
	"github.com/chazu/shard/pkg/kernel/sdfx"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/require"
)

func sphere(t *testing.T, cells int) *kernel.Mesh {
	s, err := sdfx.Sphere(1)
	require.NoError(t, err)

	m, err := sdfx.New().ToMesh(s, cells)
	require.NoError(t, err)
	m.Weld(1e-6)
	m.Label = 2
	m.Name = "fragment_2"
	return m
}

func TestSimplifyReachesTarget(t *testing.T) {
	m := sphere(t, 20)
	require.Greater(t, m.TriangleCount(), 400)
	before := m.Clone()

	out := Simplify(m, 200)
	require.LessOrEqual(t, out.TriangleCount(), 200)
	require.Greater(t, out.TriangleCount(), 0)
	require.Equal(t, int32(2), out.Label)
	require.Equal(t, "fragment_2", out.Name)
	require.Len(t, out.Normals, len(out.Vertices))

	// The input is left alone.
	require.Equal(t, before, m)

	// Simplified vertices stay near the sphere.
	for i := 0; i < out.VertexCount(); i++ {
		require.InDelta(t, 1, out.Vertex(i).Length(), 0.35)
	}

	for _, idx := range out.Indices {
		require.Less(t, int(idx), out.VertexCount())
	}
}

func TestSimplifyDeterministic(t *testing.T) {
	m := sphere(t, 16)
	require.Equal(t, Simplify(m, 150), Simplify(m, 150))
}

// plane returns an n by n grid of unit squares in z = 0. Every collapse on
// it has zero error.
func plane(n int) *kernel.Mesh {
	m := &kernel.Mesh{Label: 1, Name: "fragment_1"}
	for y := 0; y <= n; y++ {
		for x := 0; x <= n; x++ {
			m.Vertices = append(m.Vertices, float32(x), float32(y), 0)
		}
	}
	at := func(x, y int) uint32 { return uint32(y*(n+1) + x) }
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			m.Indices = append(m.Indices,
				at(x, y), at(x+1, y), at(x+1, y+1),
				at(x, y), at(x+1, y+1), at(x, y+1))
		}
	}
	m.ComputeNormals()
	return m
}

func TestSimplifyFlatTies(t *testing.T) {
	m := plane(12)
	require.Equal(t, 288, m.TriangleCount())

	first := Simplify(m, 60)
	require.Less(t, first.TriangleCount(), m.TriangleCount())
	require.Greater(t, first.TriangleCount(), 0)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, Simplify(m, 60))
	}

	for i := 0; i < first.VertexCount(); i++ {
		v := first.Vertex(i)
		require.Zero(t, v.Z)
		require.True(t, v.X >= 0 && v.X <= 12 && v.Y >= 0 && v.Y <= 12, "vertex %v left the plane", v)
	}
}

func TestCollapseHeapBreaksTies(t *testing.T) {
	var h collapseHeap
	for _, e := range [][2]int{{4, 9}, {0, 7}, {4, 5}, {2, 3}, {0, 1}} {
		heap.Push(&h, collapse{a: e[0], b: e[1]})
	}
	heap.Push(&h, collapse{cost: -1, a: 8, b: 9})

	var got [][2]int
	for h.Len() > 0 {
		c := heap.Pop(&h).(collapse)
		got = append(got, [2]int{c.a, c.b})
	}
	require.Equal(t, [][2]int{{8, 9}, {0, 1}, {0, 7}, {2, 3}, {4, 5}, {4, 9}}, got)
}

func TestSimplifyNoop(t *testing.T) {
	m := sphere(t, 8)
	out := Simplify(m, m.TriangleCount())
	require.Equal(t, m.Indices, out.Indices)
	require.Equal(t, m.Vertices, out.Vertices)

	out.Vertices[0] = 99
	require.NotEqual(t, float32(99), m.Vertices[0])
}

func TestQuadricOptimum(t *testing.T) {
	// Three orthogonal planes through (1, 2, 3).
	var q quadric
	q.add(planeQuadric(v3.Vec{X: 1}, -1))
	q.add(planeQuadric(v3.Vec{Y: 1}, -2))
	q.add(planeQuadric(v3.Vec{Z: 1}, -3))

	p, ok := q.optimum()
	require.True(t, ok)
	require.InDelta(t, 1, p.X, 1e-9)
	require.InDelta(t, 2, p.Y, 1e-9)
	require.InDelta(t, 3, p.Z, 1e-9)
	require.InDelta(t, 0, q.eval(p), 1e-9)
	require.InDelta(t, 3, q.eval(v3.Vec{X: 2, Y: 3, Z: 4}), 1e-9)

	var flat quadric
	flat.add(planeQuadric(v3.Vec{Z: 1}, 0))
	_, ok = flat.optimum()
	require.False(t, ok)
}

func labeledGrid(t *testing.T) *grid.Grid {
	g, err := grid.New(grid.Coord{X: 4, Y: 1, Z: 1}, geom.AABB{Max: v3.Vec{X: 4, Y: 1, Z: 1}})
	require.NoError(t, err)
	for i, l := range []int32{0, 1, 1, 1} {
		g.SetOccupied(i, true)
		g.SetLabel(i, l)
	}
	return g
}

func TestArena(t *testing.T) {
	g := labeledGrid(t)
	meshes := []*kernel.Mesh{{Label: 0}, {Label: 1}}

	a := NewArena(g, meshes)
	require.Equal(t, 2, a.Len())

	f := a.Get(1)
	require.Equal(t, int32(1), f.Label)
	require.Equal(t, 3, f.Voxels)
	require.Equal(t, 4, f.OccupiedVoxels)
	require.Equal(t, 75.0, f.Percentage())
	require.Equal(t, grid.Coord{X: 4, Y: 1, Z: 1}, f.Dims)

	a.Release()
	require.Zero(t, a.Len())
	require.Nil(t, f.Mesh)
}

func TestPercentageEmpty(t *testing.T) {
	require.Zero(t, (&Fragment{Voxels: 3}).Percentage())
}

func TestWriteMetadata(t *testing.T) {
	f := &Fragment{Label: 1, Voxels: 3, OccupiedVoxels: 4, Dims: grid.Coord{X: 4, Y: 1, Z: 8}}
	mesh := &kernel.Mesh{
		Vertices: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
		Indices:  []uint32{0, 1, 2},
	}

	var buf bytes.Buffer
	err := WriteMetadata(&buf, []Metadata{NewMetadata("bunny_2f_1it_1_500.stl", f, mesh)})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, MetadataHeader, lines[0])
	require.Equal(t, "bunny_2f_1it_1_500.stl\t1\t4x1x8\t3\t4\t75.0000\t3\t1", lines[1])
}
