package pipeline

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel = "error_type"
	stageLabel   = "stage"
	statusLabel  = "status"
)

var (
	fractureRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shard_fracture_runs",
		Help: "The number of fracture runs.",
	})

	fractureErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shard_fracture_errors",
		Help: "The errors that occured while fracturing a model.",
	}, []string{
		stageLabel,
		errTypeLabel,
	})

	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shard_stage_latency",
		Help:    "The time spent in each pipeline stage.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{
		stageLabel,
	})

	floodRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shard_flood_rounds",
		Help:    "The number of rounds a flood took.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	unreachableVoxels = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shard_unreachable_voxels",
		Help: "The occupied voxels no seed could reach.",
	})

	fragmentsExported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shard_fragments_exported",
		Help: "The number of fragment files written.",
	})

	archives = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shard_archives",
		Help: "The number of completed folder archives.",
	}, []string{
		statusLabel,
	})
)

func instrumentStage(stage string, start time.Time) {
	stageLatency.With(prometheus.Labels{
		stageLabel: stage,
	}).Observe(time.Since(start).Seconds())
}

func instrumentStageError(stage string, err error) {
	fractureErrors.
		With(prometheus.Labels{
			stageLabel:   stage,
			errTypeLabel: errors.Type(err),
		}).
		Inc()
}

func instrumentArchive(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	archives.With(prometheus.Labels{statusLabel: status}).Inc()
}
