package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/chazu/shard/pkg/archive"
	"github.com/chazu/shard/pkg/compute"
	"github.com/chazu/shard/pkg/engine"
	"github.com/chazu/shard/pkg/fracture"
	"github.com/chazu/shard/pkg/kernel/sdfx"
	"github.com/chazu/shard/pkg/metric"
	"github.com/chazu/shard/pkg/pipeline"
	"github.com/chazu/shard/pkg/rng"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
)

var (
	// The shard version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "shard_info",
		Help:        "Shard information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

type config struct {
	Input         string   `cli:""        env:"SHARD_INPUT"          help:"Mesh file to fracture."`
	Output        string   `cli:""        env:"SHARD_OUTPUT"         help:"Destination folder of the fragments."`
	Procedure     string   `cli:""        env:"SHARD_PROCEDURE"      help:"Lisp procedure file describing dataset generations."`
	Seeds         int      `cli:""        env:"SHARD_SEEDS"          help:"Number of fragments of a single mesh."`
	Seed          int      `cli:""        env:"SHARD_SEED"           help:"Random seed."`
	Distance      string   `cli:""        env:"SHARD_DISTANCE"       help:"Distance function (euclidean|manhattan|chebyshev)."`
	Neighbourhood string   `cli:""        env:"SHARD_NEIGHBOURHOOD"  help:"Flood connectivity (vonneumann|moore)."`
	Seeding       string   `cli:""        env:"SHARD_SEEDING"        help:"Seed placement (uniform|halton)."`
	Targets       []string `cli:""        env:"SHARD_TARGETS"        help:"Comma separated face counts fragments are simplified to."`
	Erosion       bool     `cli:""        env:"SHARD_EROSION"        help:"Erode fragment boundaries."`
	VoxelsPerUnit int      `cli:""        env:"SHARD_VOXELS_PER_UNIT" help:"Voxels per world unit."`
	ClampVoxels   int      `cli:""        env:"SHARD_CLAMP_VOXELS"   help:"Maximum voxels along an axis."`
	Compress      bool     `cli:""        env:"SHARD_COMPRESS"       help:"Archive the output folder of every model."`
	NoCache       bool     `cli:",hidden" env:"SHARD_NO_CACHE"       help:"Ignore the binary mesh cache."`
	Workers       int      `cli:",hidden" env:"SHARD_WORKERS"        help:"Maximum number of worker goroutines, 0 uses every CPU."`
	MetricsAddr   string   `cli:""        env:"SHARD_METRICS_ADDR"   help:"Listening address of the Prometheus metrics endpoint."`
	LogLevel      string   `cli:""        env:"SHARD_LOG_LEVEL"      help:"Log level (debug|info|warning|error)."`
	LogIndent     bool     `cli:""        env:"SHARD_LOG_INDENT"     help:"Indent logs."`
	Version       bool     `cli:""        env:"-"                    help:"Show version."`
	Help          bool     `cli:""        env:"-"                    help:"Show help."`
}

func defaultConfig() config {
	p := fracture.Default()

	targets := make([]string, len(p.TargetTriangles))
	for i, t := range p.TargetTriangles {
		targets[i] = strconv.Itoa(t)
	}

	return config{
		Output:        "fragments",
		Seeds:         p.NumSeeds,
		Seed:          int(p.Seed),
		Distance:      p.Distance.String(),
		Neighbourhood: p.Neighbourhood.String(),
		Seeding:       p.SeedingKind.String(),
		Targets:       targets,
		Erosion:       p.Erosion.Enabled,
		VoxelsPerUnit: int(p.VoxelsPerUnit),
		ClampVoxels:   p.ClampVoxels,
		LogLevel:      logs.InfoLevel.String(),
	}
}

func main() {
	conf := defaultConfig()

	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Fractures meshes into voxel-based fragments.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go listenAndServe(ctx, &http.Server{Addr: conf.MetricsAddr, Handler: mux})
	}

	f := pipeline.New(compute.NewDispatcher(conf.Workers), sdfx.New(), archive.NewArchiver(64))
	defer f.Close()

	var err error
	switch {
	case conf.Procedure != "":
		err = runProcedureFile(ctx, f, conf.Procedure)
	case conf.Input != "":
		err = runFile(ctx, f, conf)
	default:
		err = errors.New("an input mesh or a procedure file is required")
	}
	if err != nil {
		f.Close()
		logs.Fatal(err)
	}
}

func runProcedureFile(ctx context.Context, f *pipeline.Fragmenter, path string) error {
	prog, err := engine.NewEngine().EvaluateFile(path)
	if err != nil {
		return errors.New("loading procedure file failed").
			WithType(fracture.ErrTypeConfig).
			WithTag("path", path).
			Wrap(err)
	}
	if len(prog.Procedures) == 0 {
		return errors.New("procedure file declares no procedure").
			WithType(fracture.ErrTypeConfig).
			WithTag("path", path)
	}

	for i, proc := range prog.Procedures {
		warn(proc.Validate())

		s, err := f.GenerateDataset(ctx, proc)
		if err != nil {
			return errors.New("dataset generation failed").
				WithTag("procedure", i).
				Wrap(err)
		}
		logs.WithTag("run_id", s.RunID).
			WithTag("procedure", i).
			WithTag("models", len(s.Reports)).
			WithTag("failed", len(s.Failed)).
			Info("procedure done")
	}
	return nil
}

func runFile(ctx context.Context, f *pipeline.Fragmenter, conf config) error {
	proc, err := singleFileProcedure(conf)
	if err != nil {
		return err
	}

	r := proc.Validate()
	warn(r)
	if err := r.Err(); err != nil {
		return err
	}

	report, err := f.ProcessModel(ctx, proc, conf.Input)
	if err != nil {
		return err
	}
	logs.WithTag("run_id", report.RunID).
		WithTag("model", report.Model).
		WithTag("files", report.Files).
		Info("fragments written")
	return nil
}

// singleFileProcedure turns the command line options into a procedure over
// the input mesh only.
func singleFileProcedure(conf config) (fracture.Procedure, error) {
	p := fracture.Default()
	p.NumSeeds = conf.Seeds
	p.Seed = uint64(conf.Seed)
	p.Erosion.Enabled = conf.Erosion
	p.VoxelsPerUnit = float64(conf.VoxelsPerUnit)
	p.ClampVoxels = conf.ClampVoxels

	var err error
	if p.Distance, err = metric.Parse(conf.Distance); err != nil {
		return fracture.Procedure{}, configError("distance", err)
	}
	if p.Neighbourhood, err = fracture.ParseNeighbourhood(conf.Neighbourhood); err != nil {
		return fracture.Procedure{}, configError("neighbourhood", err)
	}
	if p.SeedingKind, err = rng.ParseKind(conf.Seeding); err != nil {
		return fracture.Procedure{}, configError("seeding", err)
	}

	p.TargetTriangles = p.TargetTriangles[:0]
	for _, t := range conf.Targets {
		n, err := strconv.Atoi(t)
		if err != nil {
			return fracture.Procedure{}, configError("targets", err)
		}
		p.TargetTriangles = append(p.TargetTriangles, n)
	}
	p.Normalize()

	proc := fracture.DefaultProcedure()
	proc.InputFolder = filepath.Dir(conf.Input)
	proc.SearchExtension = filepath.Ext(conf.Input)
	proc.DestinationFolder = conf.Output
	proc.Fragments = fracture.Interval{Min: p.NumSeeds, Max: p.NumSeeds}
	proc.Iterations = fracture.Interval{Min: 1, Max: 1}
	proc.Compress = conf.Compress
	proc.Parameters = p
	return proc, nil
}

func configError(field string, err error) error {
	return errors.New("invalid option").
		WithType(fracture.ErrTypeConfig).
		WithTag("field", field).
		Wrap(err)
}

func warn(r fracture.ValidationResult) {
	for _, w := range r.Warnings {
		logs.WithTag("field", w.Field).Warn(w.Message)
	}
}

func listenAndServe(ctx context.Context, s *http.Server) {
	go func() {
		<-ctx.Done()
		if err := s.Shutdown(context.Background()); err != nil {
			logs.Warn(errors.Newf("shutting down the server failed").
				WithTag("addr", s.Addr).
				Wrap(err))
		}
	}()

	logs.WithTag("addr", s.Addr).Info("starting metrics server")

	switch err := s.ListenAndServe(); err {
	case nil, http.ErrServerClosed, context.Canceled:
		logs.WithTag("addr", s.Addr).Info("stopping metrics server")

	default:
		logs.Warn(errors.Newf("metrics server stopped").
			WithTag("addr", s.Addr).
			Wrap(err))
	}
}
