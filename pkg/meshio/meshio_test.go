package meshio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/chazu/shard/pkg/geom"
	"github.com/chazu/shard/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/require"
)

// stripModel returns a model with 10 vertices and 6 faces.
func stripModel() *Model {
	c := Component{AABB: geom.NewAABB()}
	for i := 0; i < 10; i++ {
		p := [3]float32{float32(i / 2), float32(i % 2), 0.25 * float32(i)}
		c.Vertices = append(c.Vertices, Vertex{
			Position: p,
			Normal:   [3]float32{0, 0, 1},
			UV:       [2]float32{float32(i) / 10, 0.5},
			Tangent:  [3]float32{1, 0, 0},
		})
		c.AABB.Update(v3.Vec{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])})
	}
	for i := uint32(0); i < 6; i++ {
		c.Faces = append(c.Faces, Face{
			Indices:   [3]uint32{i, i + 1, i + 2},
			Component: 0,
			Min:       [3]float32{0, 0, float32(i)},
			Max:       [3]float32{1, 1, float32(i) + 1},
			Normal:    [3]float32{0, 0, 1},
		})
	}

	m := &Model{Components: []Component{c}, AABB: geom.NewAABB()}
	m.AABB.Union(c.AABB)
	return m
}

func cube() *kernel.Mesh {
	return &kernel.Mesh{
		Vertices: []float32{
			0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0,
			0, 0, 1, 1, 0, 1, 1, 1, 1, 0, 1, 1,
		},
		Indices: []uint32{
			0, 2, 1, 0, 3, 2,
			4, 5, 6, 4, 6, 7,
			0, 1, 5, 0, 5, 4,
			3, 6, 2, 3, 7, 6,
			0, 4, 7, 0, 7, 3,
			1, 2, 6, 1, 6, 5,
		},
	}
}

func TestCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strip.bin")
	m := stripModel()

	require.NoError(t, WriteCache(path, m))

	info, err := os.Stat(path)
	require.NoError(t, err)
	want := 8 + (8 + 10*VertexRecordSize + 8 + 6*FaceRecordSize + AABBRecordSize) + AABBRecordSize
	require.Equal(t, int64(want), info.Size())

	got, err := ReadCache(path)
	require.NoError(t, err)
	require.Equal(t, m.Components, got.Components)
	require.Equal(t, m.AABB, got.AABB)
	require.Equal(t, 10, got.VertexCount())
	require.Equal(t, 6, got.FaceCount())
}

func TestReadCacheErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadCache(filepath.Join(dir, "missing.bin"))
	require.True(t, errors.IsType(err, ErrTypeCache))

	path := filepath.Join(dir, "strip.bin")
	require.NoError(t, WriteCache(path, stripModel()))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	short := filepath.Join(dir, "short.bin")
	require.NoError(t, os.WriteFile(short, data[:len(data)-10], 0o644))
	_, err = ReadCache(short)
	require.True(t, errors.IsType(err, ErrTypeCache))

	huge := append([]byte(nil), data...)
	huge[8] = 0xff // first component vertex count
	bad := filepath.Join(dir, "bad.bin")
	require.NoError(t, os.WriteFile(bad, huge, 0o644))
	_, err = ReadCache(bad)
	require.True(t, errors.IsType(err, ErrTypeCache))
}

func TestCachePath(t *testing.T) {
	require.Equal(t, "models/bunny.bin", CachePath("models/bunny.stl"))
	require.Equal(t, "a.b/c.bin", CachePath("a.b/c.STL"))
}

func TestLoadUnsupported(t *testing.T) {
	_, err := Load("model.ply", false)
	require.True(t, errors.IsType(err, ErrTypeUnsupportedFormat))

	require.True(t, Supported("a/serapis.OBJ"))
	require.True(t, CanSave("a/fragment.stl"))
	require.False(t, CanSave("a/fragment.obj"))
}

const twoObjects = `# unit square split in two, then a triangle
o square
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
f 1/1 2/1 3/1 4/1

g triangle
v 0 0 2
v 1 0 2
v 0 1 2
f -3//1 -2//1 -1//1
`

func TestLoadOBJ(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serapis.obj")
	require.NoError(t, os.WriteFile(path, []byte(twoObjects), 0o644))

	m, err := Load(path, true)
	require.NoError(t, err)
	require.Equal(t, "serapis", m.Name())
	require.Len(t, m.Components, 2)
	require.Len(t, m.Components[0].Faces, 2)
	require.Len(t, m.Components[1].Faces, 1)
	require.Equal(t, uint32(1), m.Components[1].Faces[0].Component)
	require.Equal(t, 7, m.VertexCount())
	require.Equal(t, v3.Vec{X: 1, Y: 1, Z: 2}, m.AABB.Max)

	cached, err := Load(path, true)
	require.NoError(t, err)
	require.Equal(t, m.Components, cached.Components)
}

func TestDecodeOBJErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"short vertex", "v 1 2\n"},
		{"bad coordinate", "v 1 x 3\n"},
		{"short face", "v 0 0 0\nv 1 0 0\nf 1 2\n"},
		{"index zero", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 0 1 2\n"},
		{"index out of range", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 4\n"},
		{"negative out of range", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf -4 1 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeOBJ(strings.NewReader(tt.input))
			require.Error(t, err)
		})
	}
}

func TestLoadOBJWithoutFaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.obj")
	require.NoError(t, os.WriteFile(path, []byte("v 0 0 0\nv 1 0 0\n"), 0o644))

	_, err := Load(path, false)
	require.True(t, errors.IsType(err, ErrTypeMalformedMesh))
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.stl"), false)
	require.True(t, errors.IsType(err, ErrTypeIO))
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cube.stl")
	require.NoError(t, SaveSTL(cube(), path))

	m, err := Load(path, true)
	require.NoError(t, err)
	require.Equal(t, "cube", m.Name())
	require.Equal(t, 8, m.VertexCount())
	require.Equal(t, 12, m.FaceCount())
	require.Equal(t, v3.Vec{}, m.AABB.Min)
	require.Equal(t, v3.Vec{X: 1, Y: 1, Z: 1}, m.AABB.Max)

	// The cache now exists and is used.
	_, err = os.Stat(CachePath(path))
	require.NoError(t, err)
	cached, err := Load(path, true)
	require.NoError(t, err)
	require.Equal(t, m.Components, cached.Components)
	require.Equal(t, path, cached.Path)

	// A corrupt cache falls back to the import.
	require.NoError(t, os.WriteFile(CachePath(path), []byte{1, 2, 3}, 0o644))
	again, err := Load(path, true)
	require.NoError(t, err)
	require.Equal(t, 12, again.FaceCount())

	mesh := again.ToMesh()
	require.Equal(t, 8, mesh.VertexCount())
	require.Equal(t, 12, mesh.TriangleCount())
	require.Equal(t, "cube", mesh.Name)

	again.Release()
	require.Zero(t, again.VertexCount())
	require.Equal(t, v3.Vec{X: 1, Y: 1, Z: 1}, again.AABB.Max)
}

func TestNewComponent(t *testing.T) {
	a, b, c, d := v3.Vec{}, v3.Vec{X: 1}, v3.Vec{Y: 1}, v3.Vec{X: 1, Y: 1}
	comp := newComponent(3, [][3]v3.Vec{
		{a, b, c},
		{b, d, c},
		{a, a, b}, // degenerate
	})

	require.Len(t, comp.Vertices, 4)
	require.Len(t, comp.Faces, 2)
	require.Equal(t, uint32(3), comp.Faces[1].Component)
	require.Equal(t, [3]float32{0, 0, 1}, comp.Faces[0].Normal)
	require.Equal(t, [3]float32{0, 0, 1}, comp.Vertices[0].Normal)
	require.Equal(t, [3]float32{1, 1, 0}, comp.Faces[1].Max)
}

func TestScanFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.stl", "a.stl", "c.STL", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "d.stl"), 0o755))

	files, err := ScanFiles(dir, ".stl", "")
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "a.stl"),
		filepath.Join(dir, "b.stl"),
		filepath.Join(dir, "c.STL"),
	}, files)

	files, err = ScanFiles(dir, ".stl", "b")
	require.NoError(t, err)
	require.Len(t, files, 2)

	_, err = ScanFiles(filepath.Join(dir, "missing"), ".stl", "")
	require.True(t, errors.IsType(err, ErrTypeIO))
}
