// Package fragment post-processes the meshes extracted from a fractured
// grid: per-fragment statistics, simplification and metadata export.
package fragment

import (
	"bufio"
	"fmt"
	"io"

	"github.com/chazu/shard/pkg/grid"
	"github.com/chazu/shard/pkg/kernel"
)

// Fragment is one piece of a fractured model.
type Fragment struct {
	Mesh  *kernel.Mesh
	Label int32

	// Voxels is the number of voxels carrying Label.
	Voxels int

	// OccupiedVoxels is the number of occupied voxels of the whole grid.
	OccupiedVoxels int

	Dims grid.Coord
}

// Percentage returns the share of the occupied voxels the fragment holds.
func (f *Fragment) Percentage() float64 {
	if f.OccupiedVoxels == 0 {
		return 0
	}
	return 100 * float64(f.Voxels) / float64(f.OccupiedVoxels)
}

// Arena owns the fragments of one fracture run.
type Arena struct {
	fragments []*Fragment
}

// NewArena builds fragments from the meshes of a tessellated grid.
func NewArena(g *grid.Grid, meshes []*kernel.Mesh) *Arena {
	counts := g.LabelCounts()
	occupied := g.OccupiedCount()

	a := &Arena{fragments: make([]*Fragment, 0, len(meshes))}
	for _, m := range meshes {
		a.Add(&Fragment{
			Mesh:           m,
			Label:          m.Label,
			Voxels:         counts[m.Label],
			OccupiedVoxels: occupied,
			Dims:           g.Dims(),
		})
	}
	return a
}

// Add appends f and returns its index.
func (a *Arena) Add(f *Fragment) int {
	a.fragments = append(a.fragments, f)
	return len(a.fragments) - 1
}

// Len returns the number of fragments.
func (a *Arena) Len() int {
	return len(a.fragments)
}

// Get returns fragment i.
func (a *Arena) Get(i int) *Fragment {
	return a.fragments[i]
}

// All returns the fragments in insertion order.
func (a *Arena) All() []*Fragment {
	return a.fragments
}

// Release drops every fragment and its mesh.
func (a *Arena) Release() {
	for i := range a.fragments {
		a.fragments[i].Mesh = nil
		a.fragments[i] = nil
	}
	a.fragments = nil
}

// Metadata is one row of the metadata file.
type Metadata struct {
	Filename       string     `json:"filename"`
	Label          int32      `json:"label"`
	Dims           grid.Coord `json:"dims"`
	Voxels         int        `json:"voxels"`
	OccupiedVoxels int        `json:"occupied_voxels"`
	Percentage     float64    `json:"percentage"`
	Vertices       int        `json:"vertices"`
	Faces          int        `json:"faces"`
}

// NewMetadata describes f exported as mesh under filename.
func NewMetadata(filename string, f *Fragment, mesh *kernel.Mesh) Metadata {
	return Metadata{
		Filename:       filename,
		Label:          f.Label,
		Dims:           f.Dims,
		Voxels:         f.Voxels,
		OccupiedVoxels: f.OccupiedVoxels,
		Percentage:     f.Percentage(),
		Vertices:       mesh.VertexCount(),
		Faces:          mesh.TriangleCount(),
	}
}

// MetadataHeader is the first line of a metadata file.
const MetadataHeader = "Filename\tFragment id\tVoxelization size\tVoxels\tOccupied voxels\tPercentage\tVertices\tFaces"

// WriteMetadata writes rows as tab separated values with a header line.
func WriteMetadata(w io.Writer, rows []Metadata) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, MetadataHeader); err != nil {
		return err
	}
	for _, r := range rows {
		_, err := fmt.Fprintf(bw, "%s\t%d\t%s\t%d\t%d\t%.4f\t%d\t%d\n",
			r.Filename,
			r.Label,
			r.Dims,
			r.Voxels,
			r.OccupiedVoxels,
			r.Percentage,
			r.Vertices,
			r.Faces,
		)
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}
