package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/chazu/shard/pkg/fragment"
	"github.com/chazu/shard/pkg/meshio"
)

// ExportOptions names and places the files of a run.
type ExportOptions struct {
	Dir   string
	Model string
	Ext   string

	// Fragments and Iteration only appear in the file names.
	Fragments int
	Iteration int

	// Targets are the face counts each fragment is simplified to, largest
	// first. Without targets fragments are exported as extracted.
	Targets []int
}

// FileName returns the name of an exported fragment.
func FileName(model string, fragments, iteration int, label int32, target int, ext string) string {
	return fmt.Sprintf("%s_%df_%dit_%d_%d%s", model, fragments, iteration, label, target, ext)
}

// Export simplifies every fragment of run to each target and writes the
// results to opts.Dir. It returns one metadata row per written file. The
// first failure aborts the export.
func (f *Fragmenter) Export(run *Run, opts ExportOptions) ([]fragment.Metadata, error) {
	defer instrumentStage(StageExport, time.Now())

	if !meshio.CanSave("fragment" + opts.Ext) {
		err := errors.New("unsupported save extension").
			WithType(meshio.ErrTypeUnsupportedFormat).
			WithTag("ext", opts.Ext)
		instrumentStageError(StageExport, err)
		return nil, err
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		err = errors.New("creating output folder failed").
			WithType(meshio.ErrTypeIO).
			WithTag("dir", opts.Dir).
			Wrap(err)
		instrumentStageError(StageExport, err)
		return nil, err
	}

	var rows []fragment.Metadata
	for _, frag := range run.Fragments.All() {
		mesh := frag.Mesh
		targets := opts.Targets
		if len(targets) == 0 {
			targets = []int{mesh.TriangleCount()}
		}

		for _, target := range targets {
			mesh = fragment.Simplify(mesh, target)

			name := FileName(opts.Model, opts.Fragments, opts.Iteration, frag.Label, target, strings.ToLower(opts.Ext))
			if err := meshio.SaveSTL(mesh, filepath.Join(opts.Dir, name)); err != nil {
				instrumentStageError(StageExport, err)
				return nil, err
			}
			fragmentsExported.Inc()
			rows = append(rows, fragment.NewMetadata(name, frag, mesh))
		}
	}
	return rows, nil
}

// WriteMetadataFile writes rows to path as a metadata file.
func WriteMetadataFile(path string, rows []fragment.Metadata) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.New("creating metadata file failed").
			WithType(meshio.ErrTypeIO).
			WithTag("path", path).
			Wrap(err)
	}

	err = fragment.WriteMetadata(f, rows)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.New("writing metadata file failed").
			WithType(meshio.ErrTypeIO).
			WithTag("path", path).
			Wrap(err)
	}
	return nil
}
