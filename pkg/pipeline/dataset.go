package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/chazu/shard/pkg/fracture"
	"github.com/chazu/shard/pkg/fragment"
	"github.com/chazu/shard/pkg/grid"
	"github.com/chazu/shard/pkg/meshio"
	"github.com/chazu/shard/pkg/rng"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
)

// DatasetExtraSeeds is the extra seed count of every dataset run. It
// overrides Parameters.NumExtraSeeds.
const DatasetExtraSeeds = 2

// Report describes the runs made on one model.
type Report struct {
	RunID          string              `json:"run_id"`
	Model          string              `json:"model"`
	Source         string              `json:"source"`
	Dims           grid.Coord          `json:"dims"`
	VoxelSize      float64             `json:"voxel_size"`
	OccupiedVoxels int                 `json:"occupied_voxels"`
	Parameters     fracture.Parameters `json:"parameters"`
	Runs           []RunReport         `json:"runs"`
	Files          int                 `json:"files"`
	Seconds        float64             `json:"seconds"`
}

// RunReport describes one fracture of a model.
type RunReport struct {
	ID         string `json:"id"`
	Fragments  int    `json:"fragments"`
	Iteration  int    `json:"iteration"`
	Seeds      int    `json:"seeds"`
	ExtraSeeds int    `json:"extra_seeds"`
	Labels     int    `json:"labels"`
	Rounds     int    `json:"rounds"`
	Converged  bool   `json:"converged"`
	Unassigned int    `json:"unassigned"`
	Boundary   int    `json:"boundary"`
	Eroded     int    `json:"eroded"`
	Masked     int    `json:"masked"`
	Exported   int    `json:"exported"`
}

// Summary is the outcome of a dataset generation.
type Summary struct {
	RunID   string
	Reports []*Report

	// Failed lists the inputs that were skipped after an error.
	Failed []string
}

// GenerateDataset fractures every model of the procedure input folder. A
// model that fails is logged and skipped; only context cancellation and
// invalid procedures stop the generation.
func (f *Fragmenter) GenerateDataset(ctx context.Context, proc fracture.Procedure) (*Summary, error) {
	if err := proc.Validate().Err(); err != nil {
		return nil, err
	}

	files, err := meshio.ScanFiles(proc.InputFolder, proc.SearchExtension, proc.StartModel)
	if err != nil {
		return nil, err
	}

	s := &Summary{RunID: uuid.NewString()}
	logs.WithTag("run_id", s.RunID).
		WithTag("models", len(files)).
		WithTag("input", proc.InputFolder).
		Info("dataset generation started")

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return s, err
		}

		r, err := f.ProcessModel(ctx, proc, path)
		if err != nil {
			if ctx.Err() != nil {
				return s, err
			}
			logs.Warn(errors.New("model skipped").
				WithTag("run_id", s.RunID).
				WithTag("path", path).
				Wrap(err))
			s.Failed = append(s.Failed, path)
			continue
		}
		s.Reports = append(s.Reports, r)
	}

	logs.WithTag("run_id", s.RunID).
		WithTag("models", len(s.Reports)).
		WithTag("failed", len(s.Failed)).
		Info("dataset generation finished")
	return s, nil
}

// ProcessModel fractures the model at path for every fragment count of the
// procedure and every iteration of that count. Fragments, metadata and the
// report are written to a folder named after the model in the destination
// folder, which is archived when the procedure asks for compression.
func (f *Fragmenter) ProcessModel(ctx context.Context, proc fracture.Procedure, path string) (*Report, error) {
	began := time.Now()

	model, err := f.LoadModel(path, true)
	if err != nil {
		return nil, err
	}
	name := model.Name()
	mesh := model.ToMesh()
	box := model.AABB
	model.Release()

	p := proc.Parameters.Clone()
	p.Normalize()

	g, err := f.Voxelize(ctx, mesh, box, p)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(proc.DestinationFolder, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New("creating output folder failed").
			WithType(meshio.ErrTypeIO).
			WithTag("dir", dir).
			Wrap(err)
	}
	r := &Report{
		RunID:          uuid.NewString(),
		Model:          name,
		Source:         path,
		Dims:           g.Dims(),
		VoxelSize:      g.VoxelSize(),
		OccupiedVoxels: g.OccupiedCount(),
		Parameters:     p,
	}
	log := logs.WithTag("run_id", r.RunID).WithTag("model", name)
	log.WithTag("dims", r.Dims.String()).
		WithTag("occupied", r.OccupiedVoxels).
		Info("model voxelized")

	var rows []fragment.Metadata
	for n := proc.Fragments.Min; n <= proc.Fragments.Max; n++ {
		iterations := proc.IterationsFor(n)
		for it := 0; it < iterations; it++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			params := p.Clone()
			params.NumSeeds = n
			params.NumExtraSeeds = DatasetExtraSeeds
			stream := rng.New(p.Seed).Sub(uint64(n)<<32 | uint64(it))

			run, err := f.FractureGrid(ctx, g, params, stream)
			if err != nil {
				return nil, err
			}
			run.Model = name

			md, err := f.Export(run, ExportOptions{
				Dir:       dir,
				Model:     name,
				Ext:       proc.SaveExtension,
				Fragments: n,
				Iteration: it,
				Targets:   params.TargetTriangles,
			})
			run.Fragments.Release()
			if err != nil {
				return nil, err
			}

			rows = append(rows, md...)
			r.Runs = append(r.Runs, newRunReport(run, params, it, len(md)))
		}
	}
	r.Files = len(rows)

	if proc.ExportMetadata {
		if err := WriteMetadataFile(filepath.Join(dir, name+"_metadata.txt"), rows); err != nil {
			return nil, err
		}
	}

	r.Seconds = time.Since(began).Seconds()
	if err := WriteReport(filepath.Join(dir, name+"_report.json"), r); err != nil {
		return nil, err
	}

	if proc.Compress {
		f.archive(dir, filepath.Join(proc.DestinationFolder, name+".zip"))
	}

	log.WithTag("runs", len(r.Runs)).
		WithTag("files", r.Files).
		Info("model fractured")
	return r, nil
}

func (f *Fragmenter) archive(dir, dest string) {
	if f.archiver == nil {
		logs.WithTag("dir", dir).Warn("compression requested without an archiver")
		return
	}
	t := f.archiver.Archive(dir, dest)
	logs.WithTag("task_id", t.ID).
		WithTag("dir", dir).
		Debug("archive started")
}

func newRunReport(run *Run, p fracture.Parameters, iteration, exported int) RunReport {
	return RunReport{
		ID:         run.ID,
		Fragments:  p.NumSeeds,
		Iteration:  iteration,
		Seeds:      len(run.Seeds),
		ExtraSeeds: p.NumExtraSeeds,
		Labels:     len(run.Flood.Counts),
		Rounds:     run.Flood.Rounds,
		Converged:  run.Flood.Converged,
		Unassigned: run.Flood.Unassigned,
		Boundary:   run.Boundary,
		Eroded:     run.Eroded,
		Masked:     run.Masked,
		Exported:   exported,
	}
}

// WriteReport writes r to path as indented JSON.
func WriteReport(path string, r *Report) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.New("encoding report failed").
			WithTag("path", path).
			Wrap(err)
	}

	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.New("writing report failed").
			WithType(meshio.ErrTypeIO).
			WithTag("path", path).
			Wrap(err)
	}
	return nil
}
