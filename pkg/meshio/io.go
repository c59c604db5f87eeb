package meshio

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/chazu/shard/pkg/geom"
	"github.com/chazu/shard/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/unixpickle/model3d/model3d"
)

// SupportedExtensions lists the mesh formats Load understands.
var SupportedExtensions = []string{".obj", ".stl"}

// SaveExtensions lists the mesh formats fragments can be written as.
var SaveExtensions = []string{".stl"}

var importers = map[string]func(path string) (*Model, error){
	".obj": importOBJ,
	".stl": importSTL,
}

func extOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// Supported reports whether path has a supported mesh extension.
func Supported(path string) bool {
	return slices.Contains(SupportedExtensions, extOf(path))
}

// CanSave reports whether fragments can be written to path.
func CanSave(path string) bool {
	return slices.Contains(SaveExtensions, extOf(path))
}

// Load imports the mesh at path. When useCache is set, the binary cache
// next to path is read first and written after a fresh import; cache
// failures are logged and fall back to the import.
func Load(path string, useCache bool) (*Model, error) {
	if !Supported(path) {
		return nil, errors.New("unsupported mesh format").
			WithType(ErrTypeUnsupportedFormat).
			WithTag("path", path)
	}

	cache := CachePath(path)
	if useCache {
		if _, err := os.Stat(cache); err == nil {
			m, err := ReadCache(cache)
			if err == nil {
				m.Path = path
				return m, nil
			}
			logs.Warn(err)
		}
	}

	m, err := importers[extOf(path)](path)
	if err != nil {
		return nil, err
	}

	if useCache {
		if err := WriteCache(cache, m); err != nil {
			logs.Warn(err)
		}
	}
	return m, nil
}

func importSTL(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New("opening mesh failed").
			WithType(ErrTypeIO).
			WithTag("path", path).
			Wrap(err)
	}
	defer f.Close()

	triangles, err := model3d.ReadSTL(f)
	if err != nil {
		return nil, errors.New("decoding stl failed").
			WithType(ErrTypeMalformedMesh).
			WithTag("path", path).
			Wrap(err)
	}

	tris := make([][3]v3.Vec, len(triangles))
	for i, t := range triangles {
		for j, c := range t {
			tris[i][j] = v3.Vec{X: c.X, Y: c.Y, Z: c.Z}
		}
	}

	return newModel(path, [][][3]v3.Vec{tris})
}

// newModel builds a model with one component per non-empty group.
func newModel(path string, groups [][][3]v3.Vec) (*Model, error) {
	m := &Model{Path: path, AABB: geom.NewAABB()}
	for _, tris := range groups {
		c := newComponent(uint32(len(m.Components)), tris)
		if len(c.Faces) == 0 {
			continue
		}
		m.Components = append(m.Components, c)
		m.AABB.Union(c.AABB)
	}

	if len(m.Components) == 0 {
		return nil, errors.New("mesh has no faces").
			WithType(ErrTypeMalformedMesh).
			WithTag("path", path)
	}
	return m, nil
}

// SaveSTL writes mesh to path as STL.
func SaveSTL(mesh *kernel.Mesh, path string) error {
	out := model3d.NewMesh()
	for t := 0; t < mesh.TriangleCount(); t++ {
		idx := mesh.Triangle(t)

		var tri model3d.Triangle
		for j, v := range idx {
			p := mesh.Vertex(int(v))
			tri[j] = model3d.Coord3D{X: p.X, Y: p.Y, Z: p.Z}
		}
		out.Add(&tri)
	}

	if err := out.SaveGroupedSTL(path); err != nil {
		return errors.New("saving stl failed").
			WithType(ErrTypeIO).
			WithTag("path", path).
			Wrap(err)
	}
	return nil
}

// ScanFiles returns the files of dir with extension ext, sorted by name.
// When start is set, files whose model name sorts before it are skipped.
func ScanFiles(dir, ext, start string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.New("reading input folder failed").
			WithType(ErrTypeIO).
			WithTag("dir", dir).
			Wrap(err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ext) {
			continue
		}
		if start != "" && strings.TrimSuffix(name, filepath.Ext(name)) < start {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	slices.Sort(files)
	return files, nil
}
