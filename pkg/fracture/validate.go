package fracture

import (
	"fmt"
	"slices"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/chazu/shard/pkg/grid"
)

// ErrTypeConfig is the error type of rejected configurations.
const ErrTypeConfig = grid.ErrTypeConfig

// ValidationSeverity indicates whether a validation finding blocks a run or
// is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks the run
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	Field    string             // parameter the finding is about
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Field, e.Message)
}

// ValidationResult bundles blocking errors and advisory warnings.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// OK reports whether there are no blocking errors.
func (r ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

// Err returns the first blocking error as a typed error, or nil.
func (r ValidationResult) Err() error {
	if r.OK() {
		return nil
	}
	e := r.Errors[0]
	return errors.New(e.Message).
		WithType(ErrTypeConfig).
		WithTag("field", e.Field).
		WithTag("errors", len(r.Errors))
}

func (r *ValidationResult) add(sev ValidationSeverity, field, format string, args ...any) {
	e := ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Severity: sev}
	if sev == SeverityError {
		r.Errors = append(r.Errors, e)
	} else {
		r.Warnings = append(r.Warnings, e)
	}
}

// Validate checks the parameters. It never mutates p.
func (p Parameters) Validate() ValidationResult {
	var r ValidationResult

	if p.NumSeeds <= 0 {
		r.add(SeverityError, "num_seeds", "must be positive, got %d", p.NumSeeds)
	}
	if p.BiasSeeds < 0 {
		r.add(SeverityError, "bias_seeds", "must not be negative, got %d", p.BiasSeeds)
	} else if p.BiasSeeds > 0 && p.BiasSeeds <= p.NumSeeds {
		r.add(SeverityWarning, "bias_seeds", "%d does not exceed num_seeds %d, no seeds are clustered", p.BiasSeeds, p.NumSeeds)
	}
	if p.NumExtraSeeds < 0 {
		r.add(SeverityError, "num_extra_seeds", "must not be negative, got %d", p.NumExtraSeeds)
	}
	if !p.MergeSeedsDistance.Valid() {
		r.add(SeverityError, "merge_seeds_distance", "invalid distance function %s", p.MergeSeedsDistance)
	}
	if !p.Distance.Valid() {
		r.add(SeverityError, "distance", "invalid distance function %s", p.Distance)
	}
	if !p.Neighbourhood.Valid() {
		r.add(SeverityError, "neighbourhood", "unsupported neighbourhood %s", p.Neighbourhood)
	}
	if p.BoundarySize < 1 {
		r.add(SeverityError, "boundary_size", "must be at least 1, got %d", p.BoundarySize)
	}

	if p.Erosion.Enabled {
		if err := p.Erosion.Options().Validate(); err != nil {
			r.add(SeverityError, "erosion", "%s", err)
		}
	}

	if len(p.TargetTriangles) == 0 {
		r.add(SeverityWarning, "target_triangles", "no targets, fragments are exported unsimplified")
	}
	for _, t := range p.TargetTriangles {
		if t <= 0 {
			r.add(SeverityError, "target_triangles", "targets must be positive, got %d", t)
			break
		}
	}
	if !slices.IsSortedFunc(p.TargetTriangles, func(a, b int) int { return b - a }) {
		r.add(SeverityWarning, "target_triangles", "targets are not sorted descending")
	}

	if p.GridSubdivisions <= 0 {
		r.add(SeverityError, "grid_subdivisions", "must be positive, got %d", p.GridSubdivisions)
	}
	if p.MetricVoxelization {
		if !(p.VoxelsPerUnit > 0) {
			r.add(SeverityError, "voxels_per_unit", "must be positive, got %v", p.VoxelsPerUnit)
		}
		if p.ClampVoxels <= 0 {
			r.add(SeverityError, "clamp_voxels", "must be positive, got %d", p.ClampVoxels)
		}
	}

	if p.Spreading < 0 {
		r.add(SeverityError, "spreading", "must not be negative, got %d", p.Spreading)
	}
	if !p.SeedingKind.Valid() {
		r.add(SeverityError, "seeding_kind", "unsupported random kind %s", p.SeedingKind)
	}
	if p.MaxRounds < 0 {
		r.add(SeverityError, "max_rounds", "must not be negative, got %d", p.MaxRounds)
	}
	if p.Subdivisions < 1 {
		r.add(SeverityError, "subdivisions", "must be at least 1, got %d", p.Subdivisions)
	}
	return r
}
