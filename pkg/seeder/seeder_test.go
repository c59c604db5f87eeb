package seeder

import (
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/chazu/shard/pkg/geom"
	"github.com/chazu/shard/pkg/grid"
	"github.com/chazu/shard/pkg/metric"
	"github.com/chazu/shard/pkg/rng"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/require"
)

// newGrid returns a grid with unit voxels where occupied decides which
// voxels are filled.
func newGrid(t *testing.T, dims grid.Coord, occupied func(c grid.Coord) bool) *grid.Grid {
	g, err := grid.New(dims, geom.AABB{Max: v3.Vec{X: float64(dims.X), Y: float64(dims.Y), Z: float64(dims.Z)}})
	require.NoError(t, err)
	for i := 0; i < g.Len(); i++ {
		g.SetOccupied(i, occupied(g.CoordOf(i)))
	}
	return g
}

func all(grid.Coord) bool { return true }

func requireUnique(t *testing.T, g *grid.Grid, seeds []Seed) {
	seen := make(map[grid.Coord]bool)
	for _, s := range seeds {
		require.False(t, seen[s.Pos], "duplicate seed %v", s.Pos)
		seen[s.Pos] = true
		require.True(t, g.InBounds(s.Pos))
		require.True(t, g.Occupied(g.Index(s.Pos)))
	}
}

func TestUniform(t *testing.T) {
	sparse := func(c grid.Coord) bool { return (c.X+c.Y+c.Z)%3 == 0 }

	tests := []struct {
		name     string
		kind     rng.Kind
		occupied func(grid.Coord) bool
		n        int
	}{
		{name: "uniform full", kind: rng.Uniform, occupied: all, n: 30},
		{name: "halton full", kind: rng.Halton, occupied: all, n: 30},
		{name: "uniform sparse", kind: rng.Uniform, occupied: sparse, n: 20},
		{name: "halton sparse", kind: rng.Halton, occupied: sparse, n: 20},
		{name: "halton every voxel", kind: rng.Halton, occupied: all, n: 512},
		{name: "uniform every voxel", kind: rng.Uniform, occupied: all, n: 512},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g := newGrid(t, grid.Coord{X: 8, Y: 8, Z: 8}, test.occupied)

			seeds, err := Uniform(g, test.n, test.kind, rng.New(80))
			require.NoError(t, err)
			require.Len(t, seeds, test.n)
			requireUnique(t, g, seeds)

			for i, s := range seeds {
				require.Equal(t, int32(i), s.Label)
			}
		})
	}
}

func TestUniformDeterministic(t *testing.T) {
	g := newGrid(t, grid.Coord{X: 8, Y: 8, Z: 8}, all)

	for _, kind := range []rng.Kind{rng.Uniform, rng.Halton} {
		a, err := Uniform(g, 16, kind, rng.New(3))
		require.NoError(t, err)
		b, err := Uniform(g, 16, kind, rng.New(3))
		require.NoError(t, err)
		require.Equal(t, a, b)
	}
}

func TestUniformErrors(t *testing.T) {
	g := newGrid(t, grid.Coord{X: 2, Y: 2, Z: 2}, func(c grid.Coord) bool { return c.X == 0 })

	_, err := Uniform(g, 5, rng.Uniform, rng.New(1))
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeTooManySeeds))

	_, err = Uniform(g, 0, rng.Uniform, rng.New(1))
	require.True(t, errors.IsType(err, grid.ErrTypeConfig))

	_, err = Uniform(g, 1, rng.Kind(7), rng.New(1))
	require.True(t, errors.IsType(err, grid.ErrTypeConfig))
}

func TestNearSeeds(t *testing.T) {
	g := newGrid(t, grid.Coord{X: 16, Y: 16, Z: 16}, all)
	base := []Seed{
		{Pos: grid.Coord{X: 2, Y: 2, Z: 2}, Label: 0},
		{Pos: grid.Coord{X: 13, Y: 13, Z: 13}, Label: 1},
	}

	near := NearSeeds(g, base, 20, 2, rng.New(9))
	require.Len(t, near, 20)
	requireUnique(t, g, append(append([]Seed(nil), base...), near...))

	for _, s := range near {
		b := base[s.Label]
		require.LessOrEqual(t, metric.Chebyshev.Between(s.Pos.Array(), b.Pos.Array()), 2.0)
	}
}

func TestNearSeedsExhausted(t *testing.T) {
	g := newGrid(t, grid.Coord{X: 3, Y: 1, Z: 1}, all)
	base := []Seed{{Pos: grid.Coord{X: 1}, Label: 4}}

	near := NearSeeds(g, base, 10, 1, rng.New(2))
	require.LessOrEqual(t, len(near), 2)
	for _, s := range near {
		require.Equal(t, int32(4), s.Label)
	}

	require.Nil(t, NearSeeds(g, nil, 3, 1, rng.New(2)))
	require.Nil(t, NearSeeds(g, base, 0, 1, rng.New(2)))
}

func TestMergeSeeds(t *testing.T) {
	base := []Seed{
		{Pos: grid.Coord{X: 0}, Label: 0},
		{Pos: grid.Coord{X: 10}, Label: 1},
	}
	superset := []Seed{
		base[0],
		base[1],
		{Pos: grid.Coord{X: 1}, Label: 7},  // collapses into base 0
		{Pos: grid.Coord{X: 3}, Label: 8},  // nearest to base 0
		{Pos: grid.Coord{X: 5}, Label: 9},  // tie, lowest label wins
		{Pos: grid.Coord{X: 8}, Label: 10}, // nearest to base 1
	}

	merged := MergeSeeds(base, superset, metric.Euclidean)
	require.Equal(t, []Seed{
		{Pos: grid.Coord{X: 0}, Label: 0},
		{Pos: grid.Coord{X: 10}, Label: 1},
		{Pos: grid.Coord{X: 3}, Label: 0, Metric: metric.Euclidean},
		{Pos: grid.Coord{X: 5}, Label: 0, Metric: metric.Euclidean},
		{Pos: grid.Coord{X: 8}, Label: 1, Metric: metric.Euclidean},
	}, merged)
}

func TestMergeSeedsNeverIncreasesLabels(t *testing.T) {
	g := newGrid(t, grid.Coord{X: 12, Y: 12, Z: 12}, all)
	stream := rng.New(80)

	base, err := Uniform(g, 6, rng.Halton, stream)
	require.NoError(t, err)
	extra, err := Uniform(g, 40, rng.Uniform, stream)
	require.NoError(t, err)

	superset := append(append([]Seed(nil), base...), extra...)
	before := Labels(superset)

	for _, fn := range []metric.Distance{metric.Euclidean, metric.Manhattan, metric.Chebyshev} {
		merged := MergeSeeds(base, superset, fn)
		require.LessOrEqual(t, Labels(merged), before)
		require.LessOrEqual(t, Labels(merged), Labels(base))
		require.Equal(t, base, merged[:len(base)])
		require.Equal(t, merged, MergeSeeds(base, superset, fn))
	}
}

func TestWithMetric(t *testing.T) {
	seeds := []Seed{{Label: 0}, {Label: 1}}
	require.NoError(t, WithMetric(seeds, metric.Manhattan))
	require.Equal(t, metric.Manhattan, seeds[1].Metric)

	err := WithMetric(seeds, metric.Distance(42))
	require.True(t, errors.IsType(err, grid.ErrTypeConfig))
}
