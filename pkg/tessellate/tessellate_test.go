package tessellate_test

import (
	"context"
	"testing"

	"github.com/chazu/shard/pkg/compute"
	"github.com/chazu/shard/pkg/geom"
	"github.com/chazu/shard/pkg/grid"
	"github.com/chazu/shard/pkg/kernel"
	"github.com/chazu/shard/pkg/kernel/sdfx"
	"github.com/chazu/shard/pkg/tessellate"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// newKernel returns a fresh sdfx kernel for testing.
func newKernel() kernel.Kernel {
	return sdfx.New()
}

// splitGrid returns a fully occupied grid with unit voxels labeled 0 for
// x < X/2 and 1 otherwise, boundaries detected.
func splitGrid(t *testing.T, dims grid.Coord) *grid.Grid {
	t.Helper()

	g, err := grid.New(dims, geom.AABB{Max: v3.Vec{X: float64(dims.X), Y: float64(dims.Y), Z: float64(dims.Z)}})
	if err != nil {
		t.Fatalf("grid.New failed: %v", err)
	}
	for i := 0; i < g.Len(); i++ {
		g.SetOccupied(i, true)
		if g.CoordOf(i).X < dims.X/2 {
			g.SetLabel(i, 0)
		} else {
			g.SetLabel(i, 1)
		}
	}
	if _, err := g.DetectBoundaries(context.Background(), compute.NewDispatcher(1), 1); err != nil {
		t.Fatalf("DetectBoundaries failed: %v", err)
	}
	return g
}

func TestTessellateNilGrid(t *testing.T) {
	meshes, err := tessellate.Tessellate(context.Background(), compute.NewDispatcher(1), nil, newKernel(), tessellate.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meshes != nil {
		t.Fatalf("expected nil meshes, got %d", len(meshes))
	}
}

func TestTessellateOneMeshPerLabel(t *testing.T) {
	g := splitGrid(t, grid.Coord{X: 8, Y: 6, Z: 6})

	meshes, err := tessellate.Tessellate(context.Background(), compute.NewDispatcher(2), g, newKernel(), tessellate.Options{
		Subdivisions: 1,
		IncludeSeams: true,
	})
	if err != nil {
		t.Fatalf("Tessellate failed: %v", err)
	}
	if len(meshes) != 2 {
		t.Fatalf("expected 2 meshes, got %d", len(meshes))
	}

	box := g.AABB()
	for i, m := range meshes {
		if m.Label != int32(i) {
			t.Errorf("mesh %d has label %d", i, m.Label)
		}
		if m.Name == "" {
			t.Errorf("mesh %d has no name", i)
		}
		if m.IsEmpty() || m.TriangleCount() == 0 {
			t.Fatalf("mesh %d is empty", i)
		}
		if m.VertexCount() >= 3*m.TriangleCount() {
			t.Errorf("mesh %d is not welded: %d vertices for %d triangles", i, m.VertexCount(), m.TriangleCount())
		}

		mb := m.AABB()
		if mb.Min.X < box.Min.X-1 || mb.Max.X > box.Max.X+1 {
			t.Errorf("mesh %d extends outside the grid: %+v", i, mb)
		}
	}

	// Label 0 covers x in [0, 4) and reaches into the seam at x = 4.
	if got := meshes[0].AABB().Max.X; got < 3.5 || got > 5 {
		t.Errorf("label 0 max x = %f, expected near the seam", got)
	}
	if got := meshes[1].AABB().Min.X; got < 3 || got > 4.5 {
		t.Errorf("label 1 min x = %f, expected near the seam", got)
	}
}

func TestTessellateSkipsMaskedVoxels(t *testing.T) {
	g := splitGrid(t, grid.Coord{X: 8, Y: 4, Z: 4})
	for i := 0; i < g.Len(); i++ {
		if g.Label(i) == 1 {
			g.SetLabel(i, grid.Unassigned)
		}
	}
	if n := g.MaskUnassigned(); n != 64 {
		t.Fatalf("MaskUnassigned() = %d, want 64", n)
	}

	meshes, err := tessellate.Tessellate(context.Background(), compute.NewDispatcher(1), g, newKernel(), tessellate.Options{IncludeSeams: true})
	if err != nil {
		t.Fatalf("Tessellate failed: %v", err)
	}
	if len(meshes) != 1 {
		t.Fatalf("expected 1 mesh, got %d", len(meshes))
	}
	if got := meshes[0].AABB().Max.X; got > 4.5 {
		t.Errorf("mesh reaches into masked voxels: max x = %f", got)
	}
}

func TestTessellateCanceled(t *testing.T) {
	g := splitGrid(t, grid.Coord{X: 4, Y: 4, Z: 4})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := tessellate.Tessellate(ctx, compute.NewDispatcher(1), g, newKernel(), tessellate.Options{}); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
