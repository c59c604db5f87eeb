// Package pipeline runs the fracture pipeline: a mesh is voxelized, seeded,
// partitioned by a flood, eroded along the fragment boundaries and
// tessellated back into one mesh per fragment, which is simplified and
// exported.
package pipeline

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/chazu/shard/pkg/archive"
	"github.com/chazu/shard/pkg/compute"
	"github.com/chazu/shard/pkg/fracture"
	"github.com/chazu/shard/pkg/fragment"
	"github.com/chazu/shard/pkg/geom"
	"github.com/chazu/shard/pkg/grid"
	"github.com/chazu/shard/pkg/kernel"
	"github.com/chazu/shard/pkg/meshio"
	"github.com/chazu/shard/pkg/rng"
	"github.com/chazu/shard/pkg/seeder"
	"github.com/chazu/shard/pkg/tessellate"
	"github.com/google/uuid"
)

// Stage names used in logs and metrics.
const (
	StageLoad       = "load"
	StageVoxelize   = "voxelize"
	StageSeed       = "seed"
	StageFlood      = "flood"
	StageBoundary   = "boundary"
	StageErode      = "erode"
	StageTessellate = "tessellate"
	StageExport     = "export"
)

// erosionTask is the sub-stream index of the erosion draws.
const erosionTask = 1

// Run is the outcome of one fracture of a grid.
type Run struct {
	ID    string
	Model string

	Seeds    []seeder.Seed
	Flood    fracture.FloodResult
	Boundary int
	Eroded   int
	Masked   int

	Fragments *fragment.Arena
}

// Fragmenter runs fractures. The dispatcher, kernel and archiver are shared
// by every run.
type Fragmenter struct {
	d        *compute.Dispatcher
	kernel   kernel.Kernel
	flood    *fracture.FloodFracturer
	archiver *archive.Archiver
	done     chan struct{}
}

// New returns a fragmenter. The archiver may be nil, in which case
// compression requests are ignored.
func New(d *compute.Dispatcher, k kernel.Kernel, a *archive.Archiver) *Fragmenter {
	f := &Fragmenter{
		d:        d,
		kernel:   k,
		flood:    fracture.NewFloodFracturer(d),
		archiver: a,
		done:     make(chan struct{}),
	}

	if a == nil {
		close(f.done)
	} else {
		go f.logArchives()
	}
	return f
}

func (f *Fragmenter) logArchives() {
	defer close(f.done)

	for t := range f.archiver.Results() {
		err := t.Err()
		instrumentArchive(err)
		if err != nil {
			logs.Warn(err)
			continue
		}
		logs.WithTag("task_id", t.ID).
			WithTag("dest", t.Destination).
			Info("folder archived")
	}
}

// Close waits for pending archives.
func (f *Fragmenter) Close() {
	if f.archiver != nil {
		f.archiver.Close()
	}
	<-f.done
}

// LoadModel imports the mesh at path.
func (f *Fragmenter) LoadModel(path string, useCache bool) (*meshio.Model, error) {
	defer instrumentStage(StageLoad, time.Now())

	m, err := meshio.Load(path, useCache)
	if err != nil {
		instrumentStageError(StageLoad, err)
		return nil, err
	}
	return m, nil
}

// Voxelize samples mesh into a grid covering box, sized by p.
func (f *Fragmenter) Voxelize(ctx context.Context, mesh *kernel.Mesh, box geom.AABB, p fracture.Parameters) (*grid.Grid, error) {
	defer instrumentStage(StageVoxelize, time.Now())

	var dims grid.Coord
	var err error
	if p.MetricVoxelization {
		var clamped bool
		dims, clamped, err = grid.MetricDims(box, p.VoxelsPerUnit, p.ClampVoxels)
		if clamped {
			logs.WithTag("model", mesh.Name).
				WithTag("dims", dims.String()).
				Debug("voxelization clamped")
		}
	} else {
		dims, err = grid.AlignedDims(box, p.GridSubdivisions)
	}
	if err != nil {
		instrumentStageError(StageVoxelize, err)
		return nil, err
	}

	g, err := grid.Build(ctx, f.d, mesh, box, dims, p.FillShape)
	if err != nil {
		instrumentStageError(StageVoxelize, err)
		return nil, err
	}
	return g, nil
}

// FractureModel loads the model at path, voxelizes it and fractures it
// once with a stream seeded from p.Seed.
func (f *Fragmenter) FractureModel(ctx context.Context, path string, p fracture.Parameters, useCache bool) (*Run, error) {
	if err := p.Validate().Err(); err != nil {
		return nil, err
	}

	model, err := f.LoadModel(path, useCache)
	if err != nil {
		return nil, err
	}
	mesh := model.ToMesh()
	box := model.AABB
	model.Release()

	g, err := f.Voxelize(ctx, mesh, box, p)
	if err != nil {
		return nil, err
	}

	run, err := f.FractureGrid(ctx, g, p, rng.New(p.Seed))
	if err != nil {
		return nil, err
	}
	run.Model = mesh.Name
	return run, nil
}

// FractureGrid fractures g into fragments. The grid filling is reset first,
// so a grid can be fractured repeatedly. Configuration errors are returned
// before the grid is modified.
func (f *Fragmenter) FractureGrid(ctx context.Context, g *grid.Grid, p fracture.Parameters, stream *rng.Stream) (*Run, error) {
	if err := p.Validate().Err(); err != nil {
		return nil, err
	}
	fractureRuns.Inc()

	g.ResetFilling()
	run := &Run{ID: uuid.NewString()}
	log := logs.WithTag("run_id", run.ID)

	start := time.Now()
	seeds, err := placeSeeds(g, p, stream)
	if err != nil {
		instrumentStageError(StageSeed, err)
		return nil, err
	}
	instrumentStage(StageSeed, start)
	run.Seeds = seeds

	start = time.Now()
	run.Flood, err = f.flood.Build(ctx, g, seeds, fracture.FloodOptions{
		Distance:     p.Distance,
		Connectivity: p.Neighbourhood.Connectivity(),
		MaxRounds:    p.MaxRounds,
	})
	if err != nil {
		instrumentStageError(StageFlood, err)
		return nil, err
	}
	instrumentStage(StageFlood, start)
	floodRounds.Observe(float64(run.Flood.Rounds))

	if n := run.Flood.Unassigned; n > 0 {
		unreachableVoxels.Add(float64(n))
		log.WithTag("unassigned", n).Info("voxels unreachable from every seed")
	}
	if !run.Flood.Converged {
		log.WithTag("rounds", run.Flood.Rounds).Info("flood stopped at the round cap")
	}

	start = time.Now()
	run.Boundary, err = g.DetectBoundaries(ctx, f.d, p.BoundarySize)
	if err != nil {
		instrumentStageError(StageBoundary, err)
		return nil, err
	}
	instrumentStage(StageBoundary, start)

	if p.Erosion.Enabled {
		start = time.Now()
		run.Eroded, err = g.Erode(ctx, f.d, stream.Sub(erosionTask), p.Erosion.Options())
		if err != nil {
			instrumentStageError(StageErode, err)
			return nil, err
		}
		instrumentStage(StageErode, start)
	}

	if p.RemoveIsolatedRegions {
		run.Masked = g.MaskUnassigned()
		defer g.UndoMask()
	}

	start = time.Now()
	meshes, err := tessellate.Tessellate(ctx, f.d, g, f.kernel, tessellate.Options{
		Subdivisions: p.Subdivisions,
		IncludeSeams: true,
	})
	if err != nil {
		instrumentStageError(StageTessellate, err)
		return nil, err
	}
	instrumentStage(StageTessellate, start)

	run.Fragments = fragment.NewArena(g, meshes)

	log.WithTag("seeds", len(seeds)).
		WithTag("fragments", run.Fragments.Len()).
		WithTag("rounds", run.Flood.Rounds).
		Debug("grid fractured")
	return run, nil
}

// placeSeeds draws the base seeds, clusters bias seeds around them and
// merges the extra seeds into their labels.
func placeSeeds(g *grid.Grid, p fracture.Parameters, stream *rng.Stream) ([]seeder.Seed, error) {
	seeds, err := seeder.Uniform(g, p.NumSeeds, p.SeedingKind, stream)
	if err != nil {
		return nil, err
	}

	if p.BiasSeeds > p.NumSeeds {
		seeds = append(seeds, seeder.NearSeeds(g, seeds, p.BiasSeeds-p.NumSeeds, p.Spreading, stream)...)
	}

	if p.NumExtraSeeds > 0 {
		n := min(p.NumExtraSeeds, g.OccupiedCount())
		extra, err := seeder.Uniform(g, n, rng.Uniform, stream)
		if err != nil {
			return nil, err
		}
		seeds = seeder.MergeSeeds(seeds, extra, p.MergeSeedsDistance)
	}

	if err := seeder.WithMetric(seeds, p.Distance); err != nil {
		return nil, err
	}
	return seeds, nil
}
