package sdfx

import (
	"math"
	"testing"
)

// ball is a kernel.Solid defined outside of sdfx.
type ball struct {
	r float64
}

func (b ball) BoundingBox() (min, max [3]float64) {
	return [3]float64{-b.r - 1, -b.r - 1, -b.r - 1}, [3]float64{b.r + 1, b.r + 1, b.r + 1}
}

func (b ball) Evaluate(x, y, z float64) float64 {
	return math.Sqrt(x*x+y*y+z*z) - b.r
}

func TestBox(t *testing.T) {
	k := New()
	box, err := Box(100, 50, 25)
	if err != nil {
		t.Fatalf("Box failed: %v", err)
	}
	mesh, err := k.ToMesh(box, 40)
	if err != nil {
		t.Fatalf("ToMesh failed: %v", err)
	}
	if mesh.IsEmpty() {
		t.Fatal("mesh is empty")
	}
	triCount := mesh.TriangleCount()
	if triCount == 0 {
		t.Fatal("expected non-zero triangle count")
	}
	// Verify vertex and index array sizes are consistent.
	if len(mesh.Vertices) != len(mesh.Normals) {
		t.Fatalf("vertices length %d != normals length %d", len(mesh.Vertices), len(mesh.Normals))
	}
	if len(mesh.Indices) != triCount*3 {
		t.Fatalf("indices length %d != triCount*3 %d", len(mesh.Indices), triCount*3)
	}
}

func TestBoundingBox(t *testing.T) {
	box, err := Box(100, 50, 25)
	if err != nil {
		t.Fatalf("Box failed: %v", err)
	}
	min, max := box.BoundingBox()

	const tol = 0.01
	expectMin := [3]float64{0, 0, 0}
	expectMax := [3]float64{100, 50, 25}

	for i := 0; i < 3; i++ {
		if math.Abs(min[i]-expectMin[i]) > tol {
			t.Errorf("min[%d] = %f, expected %f", i, min[i], expectMin[i])
		}
		if math.Abs(max[i]-expectMax[i]) > tol {
			t.Errorf("max[%d] = %f, expected %f", i, max[i], expectMax[i])
		}
	}
}

func TestForeignSolid(t *testing.T) {
	k := New()
	mesh, err := k.ToMesh(ball{r: 5}, 24)
	if err != nil {
		t.Fatalf("ToMesh failed: %v", err)
	}
	if mesh.IsEmpty() {
		t.Fatal("ball mesh is empty")
	}

	// Every vertex lies on the zero level set up to the cell size.
	const tol = 0.6
	for i := 0; i < mesh.VertexCount(); i++ {
		p := mesh.Vertex(i)
		if d := math.Abs(p.Length() - 5); d > tol {
			t.Fatalf("vertex %d at distance %f from the surface", i, d)
		}
	}
}

func TestSphereMoreCellsMoreTriangles(t *testing.T) {
	k := New()
	s, err := Sphere(10)
	if err != nil {
		t.Fatalf("Sphere failed: %v", err)
	}

	coarse, err := k.ToMesh(s, 8)
	if err != nil {
		t.Fatalf("ToMesh(8) failed: %v", err)
	}
	fine, err := k.ToMesh(s, 32)
	if err != nil {
		t.Fatalf("ToMesh(32) failed: %v", err)
	}
	if fine.TriangleCount() <= coarse.TriangleCount() {
		t.Fatalf("fine (%d triangles) should have more triangles than coarse (%d triangles)",
			fine.TriangleCount(), coarse.TriangleCount())
	}
}

func TestToMeshInvalid(t *testing.T) {
	k := New()
	if _, err := k.ToMesh(ball{r: 1}, 0); err == nil {
		t.Error("expected error for zero cells")
	}
	if _, err := k.ToMesh(ball{r: -1}, 8); err == nil {
		t.Error("expected error for empty bounding box")
	}
}
