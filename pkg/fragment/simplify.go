package fragment

import (
	"container/heap"
	"maps"
	"math"
	"slices"

	"github.com/chazu/shard/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Simplify returns a copy of mesh decimated by quadric error edge collapse
// to at most targetFaces faces. Collapses that would flip a face are
// skipped, so the target may not be reached on small or degenerate meshes.
// A mesh already at or below the target is returned as an unmodified copy.
// The result only depends on the input mesh and the target.
func Simplify(mesh *kernel.Mesh, targetFaces int) *kernel.Mesh {
	if targetFaces < 0 {
		targetFaces = 0
	}
	if mesh.TriangleCount() <= targetFaces {
		return mesh.Clone()
	}

	s := newSimplifier(mesh)
	s.run(targetFaces)
	return s.result(mesh)
}

// quadric is a symmetric 4x4 error matrix stored as its upper triangle:
// a2 ab ac ad b2 bc bd c2 cd d2.
type quadric [10]float64

func planeQuadric(n v3.Vec, d float64) quadric {
	return quadric{
		n.X * n.X, n.X * n.Y, n.X * n.Z, n.X * d,
		n.Y * n.Y, n.Y * n.Z, n.Y * d,
		n.Z * n.Z, n.Z * d,
		d * d,
	}
}

func (q *quadric) add(o quadric) {
	for i := range q {
		q[i] += o[i]
	}
}

func (q quadric) eval(p v3.Vec) float64 {
	x, y, z := p.X, p.Y, p.Z
	return q[0]*x*x + 2*q[1]*x*y + 2*q[2]*x*z + 2*q[3]*x +
		q[4]*y*y + 2*q[5]*y*z + 2*q[6]*y +
		q[7]*z*z + 2*q[8]*z +
		q[9]
}

// optimum returns the point minimizing the error, if the system is not
// singular.
func (q quadric) optimum() (v3.Vec, bool) {
	a, b, c := q[0], q[1], q[2]
	d, e, f := q[4], q[5], q[7]
	// [[a b c] [b d e] [c e f]] p = -[q3 q6 q8]
	det := a*(d*f-e*e) - b*(b*f-e*c) + c*(b*e-d*c)
	if math.Abs(det) < 1e-12 {
		return v3.Vec{}, false
	}

	r0, r1, r2 := -q[3], -q[6], -q[8]
	x := (r0*(d*f-e*e) - b*(r1*f-e*r2) + c*(r1*e-d*r2)) / det
	y := (a*(r1*f-e*r2) - r0*(b*f-e*c) + c*(b*r2-r1*c)) / det
	z := (a*(d*r2-r1*e) - b*(b*r2-r1*c) + r0*(b*e-d*c)) / det
	return v3.Vec{X: x, Y: y, Z: z}, true
}

type collapse struct {
	cost   float64
	a, b   int
	pos    v3.Vec
	va, vb uint32
}

type collapseHeap []collapse

func (h collapseHeap) Len() int { return len(h) }
func (h collapseHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	if h[i].a != h[j].a {
		return h[i].a < h[j].a
	}
	return h[i].b < h[j].b
}
func (h collapseHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *collapseHeap) Push(x any)   { *h = append(*h, x.(collapse)) }
func (h *collapseHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type simplifier struct {
	pos     []v3.Vec
	q       []quadric
	version []uint32
	deadV   []bool
	tris    [][3]int
	deadT   []bool
	adj     [][]int // triangles per vertex
	faces   int
	heap    collapseHeap
}

func newSimplifier(m *kernel.Mesh) *simplifier {
	nv := m.VertexCount()
	s := &simplifier{
		pos:     make([]v3.Vec, nv),
		q:       make([]quadric, nv),
		version: make([]uint32, nv),
		deadV:   make([]bool, nv),
		tris:    make([][3]int, m.TriangleCount()),
		deadT:   make([]bool, m.TriangleCount()),
		adj:     make([][]int, nv),
		faces:   m.TriangleCount(),
	}

	for i := range s.pos {
		s.pos[i] = m.Vertex(i)
	}

	for t := range s.tris {
		tri := m.Triangle(t)
		s.tris[t] = [3]int{int(tri[0]), int(tri[1]), int(tri[2])}

		p0, p1, p2 := s.pos[tri[0]], s.pos[tri[1]], s.pos[tri[2]]
		n := p1.Sub(p0).Cross(p2.Sub(p0))
		if l := n.Length(); l > 0 {
			n = n.DivScalar(l)
			pq := planeQuadric(n, -n.Dot(p0))
			for _, v := range s.tris[t] {
				s.q[v].add(pq)
			}
		}
		for _, v := range s.tris[t] {
			s.adj[v] = append(s.adj[v], t)
		}
	}

	for t, tri := range s.tris {
		for j := 0; j < 3; j++ {
			a, b := tri[j], tri[(j+1)%3]
			// Each interior edge is seen from both sides; push it once.
			if a < b || !s.hasEdge(t, b, a) {
				s.push(a, b)
			}
		}
	}
	heap.Init(&s.heap)
	return s
}

// hasEdge reports whether a triangle other than t has the directed edge
// a->b.
func (s *simplifier) hasEdge(t, a, b int) bool {
	for _, o := range s.adj[a] {
		if o == t {
			continue
		}
		tri := s.tris[o]
		for j := 0; j < 3; j++ {
			if tri[j] == a && tri[(j+1)%3] == b {
				return true
			}
		}
	}
	return false
}

func (s *simplifier) push(a, b int) {
	if a > b {
		a, b = b, a
	}

	var q quadric
	q.add(s.q[a])
	q.add(s.q[b])

	mid := s.pos[a].Add(s.pos[b]).MulScalar(0.5)
	best, cost := mid, q.eval(mid)
	candidates := []v3.Vec{s.pos[a], s.pos[b]}
	// Near-singular systems can place the optimum far off the surface.
	if p, ok := q.optimum(); ok && p.Sub(mid).Length() <= 2*s.pos[a].Sub(s.pos[b]).Length() {
		candidates = append([]v3.Vec{p}, candidates...)
	}
	for _, p := range candidates {
		if c := q.eval(p); c < cost {
			best, cost = p, c
		}
	}

	heap.Push(&s.heap, collapse{
		cost: cost,
		a:    a,
		b:    b,
		pos:  best,
		va:   s.version[a],
		vb:   s.version[b],
	})
}

func (s *simplifier) run(target int) {
	for s.faces > target && s.heap.Len() > 0 {
		c := heap.Pop(&s.heap).(collapse)
		if s.deadV[c.a] || s.deadV[c.b] || s.version[c.a] != c.va || s.version[c.b] != c.vb {
			continue
		}
		if s.flips(c) {
			continue
		}
		s.apply(c)
	}
}

// flips reports whether moving a and b to the collapse position turns any
// surviving triangle around.
func (s *simplifier) flips(c collapse) bool {
	for _, v := range [2]int{c.a, c.b} {
		for _, t := range s.adj[v] {
			if s.deadT[t] {
				continue
			}
			tri := s.tris[t]
			if contains(tri, c.a) && contains(tri, c.b) {
				continue
			}

			var before, after [3]v3.Vec
			for j, w := range tri {
				before[j] = s.pos[w]
				after[j] = s.pos[w]
				if w == c.a || w == c.b {
					after[j] = c.pos
				}
			}

			n0 := before[1].Sub(before[0]).Cross(before[2].Sub(before[0]))
			n1 := after[1].Sub(after[0]).Cross(after[2].Sub(after[0]))
			if n0.Dot(n1) <= 0 {
				return true
			}
		}
	}
	return false
}

func (s *simplifier) apply(c collapse) {
	a, b := c.a, c.b
	s.pos[a] = c.pos
	s.q[a].add(s.q[b])
	s.deadV[b] = true
	s.version[a]++

	for _, t := range s.adj[b] {
		if s.deadT[t] {
			continue
		}
		if contains(s.tris[t], a) {
			s.deadT[t] = true
			s.faces--
			continue
		}
		for j := range s.tris[t] {
			if s.tris[t][j] == b {
				s.tris[t][j] = a
			}
		}
		s.adj[a] = append(s.adj[a], t)
	}
	s.adj[b] = nil

	// Compact a's triangle list and requeue its edges.
	live := s.adj[a][:0]
	neighbours := make(map[int]bool)
	for _, t := range s.adj[a] {
		if s.deadT[t] {
			continue
		}
		live = append(live, t)
		for _, w := range s.tris[t] {
			if w != a {
				neighbours[w] = true
			}
		}
	}
	s.adj[a] = live

	for _, w := range slices.Sorted(maps.Keys(neighbours)) {
		s.push(a, w)
	}
}

func (s *simplifier) result(src *kernel.Mesh) *kernel.Mesh {
	remap := make([]int, len(s.pos))
	for i := range remap {
		remap[i] = -1
	}

	out := &kernel.Mesh{Label: src.Label, Name: src.Name}
	for t, tri := range s.tris {
		if s.deadT[t] {
			continue
		}
		for _, v := range tri {
			if remap[v] < 0 {
				remap[v] = len(out.Vertices) / 3
				p := s.pos[v]
				out.Vertices = append(out.Vertices, float32(p.X), float32(p.Y), float32(p.Z))
			}
			out.Indices = append(out.Indices, uint32(remap[v]))
		}
	}
	out.ComputeNormals()
	return out
}

func contains(tri [3]int, v int) bool {
	return tri[0] == v || tri[1] == v || tri[2] == v
}
