package grid

import (
	"context"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/chazu/shard/pkg/compute"
	"github.com/chazu/shard/pkg/rng"
	"github.com/stretchr/testify/require"
)

func labelHalves(g *Grid) {
	for i := 0; i < g.Len(); i++ {
		if g.CoordOf(i).X < g.Dims().X/2 {
			g.SetLabel(i, 0)
		} else {
			g.SetLabel(i, 1)
		}
	}
}

func TestDetectBoundaries(t *testing.T) {
	d := compute.NewDispatcher(3)

	t.Run("single label", func(t *testing.T) {
		g := filled(t, Coord{X: 6, Y: 6, Z: 6})
		for i := 0; i < g.Len(); i++ {
			g.SetLabel(i, 0)
		}

		n, err := g.DetectBoundaries(context.Background(), d, 1)
		require.NoError(t, err)
		require.Equal(t, 216-64, n)
		require.True(t, g.Boundary(g.Index(Coord{X: 0, Y: 2, Z: 2})))
		require.False(t, g.Boundary(g.Index(Coord{X: 2, Y: 2, Z: 2})))
	})

	t.Run("two labels", func(t *testing.T) {
		g := filled(t, Coord{X: 6, Y: 6, Z: 6})
		labelHalves(g)

		n, err := g.DetectBoundaries(context.Background(), d, 1)
		require.NoError(t, err)
		require.Equal(t, 216-32, n)
		require.True(t, g.Boundary(g.Index(Coord{X: 2, Y: 2, Z: 2})))
		require.True(t, g.Boundary(g.Index(Coord{X: 3, Y: 2, Z: 2})))
		require.False(t, g.Boundary(g.Index(Coord{X: 1, Y: 2, Z: 2})))
	})

	t.Run("wide radius", func(t *testing.T) {
		g := filled(t, Coord{X: 6, Y: 6, Z: 6})
		for i := 0; i < g.Len(); i++ {
			g.SetLabel(i, 0)
		}

		n, err := g.DetectBoundaries(context.Background(), d, 2)
		require.NoError(t, err)
		require.Equal(t, 216-8, n)
	})

	t.Run("invalid size", func(t *testing.T) {
		g := filled(t, Coord{X: 2, Y: 2, Z: 2})
		_, err := g.DetectBoundaries(context.Background(), d, 0)
		require.True(t, errors.IsType(err, ErrTypeConfig))
	})
}

func TestShapeOffsets(t *testing.T) {
	tests := []struct {
		shape  Shape
		radius int
		want   int
	}{
		{shape: Square, radius: 1, want: 26},
		{shape: Square, radius: 2, want: 124},
		{shape: Ellipse, radius: 1, want: 6},
		{shape: Ellipse, radius: 2, want: 32},
		{shape: Cross, radius: 1, want: 6},
		{shape: Cross, radius: 2, want: 12},
	}

	for _, test := range tests {
		t.Run(test.shape.String(), func(t *testing.T) {
			require.Len(t, test.shape.Offsets(test.radius), test.want)
		})
	}
}

func TestParseShape(t *testing.T) {
	s, err := ParseShape("ellipse")
	require.NoError(t, err)
	require.Equal(t, Ellipse, s)

	_, err = ParseShape("star")
	require.Error(t, err)
}

func TestErodeRemovesShell(t *testing.T) {
	d := compute.NewDispatcher(2)
	g := filled(t, Coord{X: 6, Y: 6, Z: 6})
	for i := 0; i < g.Len(); i++ {
		g.SetLabel(i, 0)
	}
	_, err := g.DetectBoundaries(context.Background(), d, 1)
	require.NoError(t, err)

	removed, err := g.Erode(context.Background(), d, rng.New(5), ErosionOptions{
		Shape:       Square,
		Size:        3,
		Iterations:  1,
		Probability: 1,
		Threshold:   0,
	})
	require.NoError(t, err)
	require.Equal(t, 152, removed)
	require.Equal(t, 64, g.OccupiedCount())
	require.Equal(t, Unassigned, g.Label(0))

	// The new outer layer is flagged again.
	require.True(t, g.Boundary(g.Index(Coord{X: 1, Y: 1, Z: 1})))
}

func TestErodeNeverGrows(t *testing.T) {
	d := compute.NewDispatcher(4)
	g := filled(t, Coord{X: 12, Y: 12, Z: 12})
	labelHalves(g)
	_, err := g.DetectBoundaries(context.Background(), d, 1)
	require.NoError(t, err)

	before := g.OccupiedCount()
	removed, err := g.Erode(context.Background(), d, rng.New(80), ErosionOptions{
		Shape:       Ellipse,
		Size:        3,
		Iterations:  3,
		Probability: 0.5,
		Threshold:   0.5,
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, removed, 0)
	require.Equal(t, before-removed, g.OccupiedCount())
	require.LessOrEqual(t, g.OccupiedCount(), before)
}

func TestErodeIndependentOfWorkers(t *testing.T) {
	opts := ErosionOptions{
		Shape:       Cross,
		Size:        2,
		Iterations:  2,
		Probability: 0.5,
		Threshold:   0.1,
	}

	run := func(workers int) []bool {
		d := compute.NewDispatcher(workers)
		g := filled(t, Coord{X: 16, Y: 16, Z: 16})
		labelHalves(g)
		_, err := g.DetectBoundaries(context.Background(), d, 1)
		require.NoError(t, err)
		_, err = g.Erode(context.Background(), d, rng.New(7), opts)
		require.NoError(t, err)

		occ := make([]bool, g.Len())
		for i := range occ {
			occ[i] = g.Occupied(i)
		}
		return occ
	}

	require.Equal(t, run(1), run(8))
}

func TestErodeInvalidOptions(t *testing.T) {
	d := compute.NewDispatcher(1)
	g := filled(t, Coord{X: 2, Y: 2, Z: 2})

	tests := []struct {
		name string
		opts ErosionOptions
	}{
		{name: "shape", opts: ErosionOptions{Shape: Shape(9), Size: 1, Probability: 0.5}},
		{name: "size", opts: ErosionOptions{Shape: Square, Size: 0, Probability: 0.5}},
		{name: "iterations", opts: ErosionOptions{Shape: Square, Size: 1, Iterations: -1}},
		{name: "probability", opts: ErosionOptions{Shape: Square, Size: 1, Probability: 2}},
		{name: "threshold", opts: ErosionOptions{Shape: Square, Size: 1, Threshold: -1}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := g.Erode(context.Background(), d, rng.New(1), test.opts)
			require.True(t, errors.IsType(err, ErrTypeConfig))
			require.Equal(t, 8, g.OccupiedCount())
		})
	}
}
