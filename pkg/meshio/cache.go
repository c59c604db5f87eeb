package meshio

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/chazu/shard/pkg/geom"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Record sizes of the cache layout in bytes.
const (
	VertexRecordSize = 64
	FaceRecordSize   = 64
	AABBRecordSize   = 24
)

type vertexRecord struct {
	Position [3]float32
	_        float32
	Normal   [3]float32
	_        float32
	UV       [2]float32
	_        [2]float32
	Tangent  [3]float32
	_        float32
}

type faceRecord struct {
	Indices   [3]uint32
	Component uint32
	Min       [3]float32
	_         float32
	Max       [3]float32
	_         float32
	Normal    [3]float32
	_         float32
}

type aabbRecord struct {
	Min [3]float32
	Max [3]float32
}

func toAABBRecord(b geom.AABB) aabbRecord {
	if b.IsEmpty() {
		return aabbRecord{}
	}
	return aabbRecord{Min: vec32(b.Min), Max: vec32(b.Max)}
}

func (r aabbRecord) aabb() geom.AABB {
	return geom.AABB{
		Min: v3.Vec{X: float64(r.Min[0]), Y: float64(r.Min[1]), Z: float64(r.Min[2])},
		Max: v3.Vec{X: float64(r.Max[0]), Y: float64(r.Max[1]), Z: float64(r.Max[2])},
	}
}

// CachePath returns the cache file path for a source mesh path.
func CachePath(source string) string {
	ext := len(source) - len(extOf(source))
	return source[:ext] + ".bin"
}

// WriteCache writes m to path. The file is written next to path first and
// renamed into place once complete.
func WriteCache(path string, m *Model) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.New("creating cache file failed").
			WithType(ErrTypeCache).
			WithTag("path", path).
			Wrap(err)
	}

	err = writeCache(f, m)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
		return errors.New("writing cache file failed").
			WithType(ErrTypeCache).
			WithTag("path", path).
			Wrap(err)
	}
	return nil
}

func writeCache(w io.Writer, m *Model) error {
	bw := bufio.NewWriter(w)
	le := binary.LittleEndian

	if err := binary.Write(bw, le, uint64(len(m.Components))); err != nil {
		return err
	}

	for _, c := range m.Components {
		vertices := make([]vertexRecord, len(c.Vertices))
		for i, v := range c.Vertices {
			vertices[i] = vertexRecord{Position: v.Position, Normal: v.Normal, UV: v.UV, Tangent: v.Tangent}
		}
		faces := make([]faceRecord, len(c.Faces))
		for i, f := range c.Faces {
			faces[i] = faceRecord{Indices: f.Indices, Component: f.Component, Min: f.Min, Max: f.Max, Normal: f.Normal}
		}

		for _, v := range []any{
			uint64(len(vertices)), vertices,
			uint64(len(faces)), faces,
			toAABBRecord(c.AABB),
		} {
			if err := binary.Write(bw, le, v); err != nil {
				return err
			}
		}
	}

	if err := binary.Write(bw, le, toAABBRecord(m.AABB)); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadCache reads a model written by WriteCache. Missing, truncated or
// inconsistent files return an error of type ErrTypeCache.
func ReadCache(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New("opening cache file failed").
			WithType(ErrTypeCache).
			WithTag("path", path).
			Wrap(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.New("reading cache file info failed").
			WithType(ErrTypeCache).
			WithTag("path", path).
			Wrap(err)
	}

	m, err := readCache(bufio.NewReader(f), info.Size())
	if err != nil {
		return nil, errors.New("reading cache file failed").
			WithType(ErrTypeCache).
			WithTag("path", path).
			Wrap(err)
	}
	return m, nil
}

func readCache(r io.Reader, size int64) (*Model, error) {
	le := binary.LittleEndian
	remaining := size

	readCount := func(record int64) (int, error) {
		var n uint64
		if err := binary.Read(r, le, &n); err != nil {
			return 0, err
		}
		remaining -= 8
		if record > 0 && n > uint64(remaining/record) {
			return 0, errors.Newf("cache declares %d records of %d bytes with %d bytes left", n, record, remaining)
		}
		remaining -= int64(n) * record
		return int(n), nil
	}

	count, err := readCount(AABBRecordSize)
	if err != nil {
		return nil, err
	}

	m := &Model{Components: make([]Component, count)}
	for i := range m.Components {
		nv, err := readCount(VertexRecordSize)
		if err != nil {
			return nil, err
		}
		vertices := make([]vertexRecord, nv)
		if err := binary.Read(r, le, vertices); err != nil {
			return nil, err
		}

		nf, err := readCount(FaceRecordSize)
		if err != nil {
			return nil, err
		}
		faces := make([]faceRecord, nf)
		if err := binary.Read(r, le, faces); err != nil {
			return nil, err
		}

		var box aabbRecord
		if err := binary.Read(r, le, &box); err != nil {
			return nil, err
		}
		remaining -= AABBRecordSize

		c := Component{
			Vertices: make([]Vertex, nv),
			Faces:    make([]Face, nf),
			AABB:     box.aabb(),
		}
		for j, v := range vertices {
			c.Vertices[j] = Vertex{Position: v.Position, Normal: v.Normal, UV: v.UV, Tangent: v.Tangent}
		}
		for j, f := range faces {
			for _, idx := range f.Indices {
				if int(idx) >= nv {
					return nil, errors.Newf("face %d of component %d references vertex %d of %d", j, i, idx, nv)
				}
			}
			c.Faces[j] = Face{Indices: f.Indices, Component: f.Component, Min: f.Min, Max: f.Max, Normal: f.Normal}
		}
		m.Components[i] = c
	}

	var box aabbRecord
	if err := binary.Read(r, le, &box); err != nil {
		return nil, err
	}
	m.AABB = box.aabb()
	return m, nil
}
