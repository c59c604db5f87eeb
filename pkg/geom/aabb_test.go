package geom

import (
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/require"
)

func TestAABBEmpty(t *testing.T) {
	b := NewAABB()
	require.True(t, b.IsEmpty())
	require.Zero(t, b.Volume())
	require.Equal(t, v3.Vec{}, b.Size())
}

func TestAABBUpdate(t *testing.T) {
	b := NewAABB()
	b.Update(v3.Vec{X: 1, Y: 2, Z: 3})
	b.Update(v3.Vec{X: -1, Y: 4, Z: 0})

	require.False(t, b.IsEmpty())
	require.Equal(t, v3.Vec{X: -1, Y: 2, Z: 0}, b.Min)
	require.Equal(t, v3.Vec{X: 1, Y: 4, Z: 3}, b.Max)
	require.Equal(t, v3.Vec{X: 2, Y: 2, Z: 3}, b.Size())
	require.Equal(t, v3.Vec{X: 0, Y: 3, Z: 1.5}, b.Center())
	require.Equal(t, 12.0, b.Volume())
	require.Equal(t, 3.0, b.MaxExtent())
}

func TestAABBUnion(t *testing.T) {
	a := NewAABB()
	a.Update(v3.Vec{})

	b := NewAABB()
	b.Update(v3.Vec{X: 2, Y: 2, Z: 2})

	a.Union(b)
	a.Union(NewAABB())
	require.Equal(t, v3.Vec{}, a.Min)
	require.Equal(t, v3.Vec{X: 2, Y: 2, Z: 2}, a.Max)
}

func TestAABBFlatHasZeroVolume(t *testing.T) {
	b := NewAABB()
	b.Update(v3.Vec{X: 0, Y: 0, Z: 0})
	b.Update(v3.Vec{X: 1, Y: 1, Z: 0})
	require.Zero(t, b.Volume())
}
