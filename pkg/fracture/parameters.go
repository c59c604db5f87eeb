// Package fracture holds the fracture configuration and the flood
// partitioner that assigns every occupied voxel of a grid to the fragment of
// its nearest seed.
package fracture

import (
	"fmt"
	"slices"
	"strings"

	"github.com/chazu/shard/pkg/grid"
	"github.com/chazu/shard/pkg/metric"
	"github.com/chazu/shard/pkg/rng"
)

// Neighbourhood is the voxel connectivity used by the flood.
type Neighbourhood uint8

const (
	// VonNeumann connects voxels sharing a face.
	VonNeumann Neighbourhood = iota
	// Moore connects voxels sharing a face, an edge or a corner.
	Moore
	numNeighbourhoods
)

var neighbourhoodNames = [numNeighbourhoods]string{"VonNeumann", "Moore"}

func (n Neighbourhood) String() string {
	if n >= numNeighbourhoods {
		return fmt.Sprintf("Neighbourhood(%d)", uint8(n))
	}
	return neighbourhoodNames[n]
}

// Valid reports whether n is a supported neighbourhood.
func (n Neighbourhood) Valid() bool {
	return n < numNeighbourhoods
}

// Connectivity returns the number of neighbours, 6 or 26.
func (n Neighbourhood) Connectivity() int {
	if n == Moore {
		return 26
	}
	return 6
}

// ParseNeighbourhood converts a case-insensitive name into a Neighbourhood.
func ParseNeighbourhood(name string) (Neighbourhood, error) {
	for i, n := range neighbourhoodNames {
		if strings.EqualFold(n, name) {
			return Neighbourhood(i), nil
		}
	}
	return 0, fmt.Errorf("unknown neighbourhood %q, expected vonneumann or moore", name)
}

// Erosion configures the erosion pass.
type Erosion struct {
	Enabled     bool       `json:"enabled"`
	Shape       grid.Shape `json:"shape"`
	Size        int        `json:"size"`
	Iterations  int        `json:"iterations"`
	Probability float64    `json:"probability"`
	Threshold   float64    `json:"threshold"`
}

// Options returns the grid erosion options.
func (e Erosion) Options() grid.ErosionOptions {
	return grid.ErosionOptions{
		Shape:       e.Shape,
		Size:        e.Size,
		Iterations:  e.Iterations,
		Probability: e.Probability,
		Threshold:   e.Threshold,
	}
}

// Parameters is the configuration of a fracture run. It is built with
// Default, adjusted by the caller and read-only during the run.
type Parameters struct {
	// NumSeeds is the number of fragments requested.
	NumSeeds int `json:"num_seeds"`

	// BiasSeeds, when larger than NumSeeds, adds BiasSeeds-NumSeeds seeds
	// clustered around the base seeds.
	BiasSeeds int `json:"bias_seeds"`

	// NumExtraSeeds uniform seeds are merged into the base labels with
	// MergeSeedsDistance.
	NumExtraSeeds      int             `json:"num_extra_seeds"`
	MergeSeedsDistance metric.Distance `json:"merge_seeds_distance"`

	Distance      metric.Distance `json:"distance"`
	Neighbourhood Neighbourhood   `json:"neighbourhood"`
	Erosion       Erosion         `json:"erosion"`
	BoundarySize  int             `json:"boundary_size"`

	// TargetTriangles are the face counts fragments are simplified to,
	// sorted descending.
	TargetTriangles []int `json:"target_triangles"`

	GridSubdivisions   int     `json:"grid_subdivisions"`
	VoxelsPerUnit      float64 `json:"voxels_per_unit"`
	ClampVoxels        int     `json:"clamp_voxels"`
	MetricVoxelization bool    `json:"metric_voxelization"`

	FillShape             bool `json:"fill_shape"`
	RemoveIsolatedRegions bool `json:"remove_isolated_regions"`

	Spreading   int      `json:"spreading"`
	Seed        uint64   `json:"seed"`
	SeedingKind rng.Kind `json:"seeding_kind"`

	// MaxRounds caps the flood. Zero uses the occupied voxel count.
	MaxRounds int `json:"max_rounds"`

	// Subdivisions is the number of marching cubes cells per voxel.
	Subdivisions int `json:"subdivisions"`
}

// Default returns the default parameters.
func Default() Parameters {
	return Parameters{
		NumSeeds:           8,
		BiasSeeds:          128,
		NumExtraSeeds:      30,
		MergeSeedsDistance: metric.Euclidean,
		Distance:           metric.Chebyshev,
		Neighbourhood:      VonNeumann,
		Erosion: Erosion{
			Enabled:     false,
			Shape:       grid.Ellipse,
			Size:        3,
			Iterations:  3,
			Probability: 0.5,
			Threshold:   0.5,
		},
		BoundarySize:          1,
		TargetTriangles:       []int{1000, 500},
		GridSubdivisions:      256,
		VoxelsPerUnit:         90,
		ClampVoxels:           256,
		MetricVoxelization:    true,
		FillShape:             true,
		RemoveIsolatedRegions: true,
		Spreading:             5,
		Seed:                  80,
		SeedingKind:           rng.Halton,
		Subdivisions:          1,
	}
}

// Normalize sorts TargetTriangles descending and removes duplicates.
func (p *Parameters) Normalize() {
	targets := slices.Clone(p.TargetTriangles)
	slices.Sort(targets)
	targets = slices.Compact(targets)
	slices.Reverse(targets)
	p.TargetTriangles = targets
}

// Clone returns a copy that shares no slices with p.
func (p Parameters) Clone() Parameters {
	p.TargetTriangles = slices.Clone(p.TargetTriangles)
	return p
}

// MarshalText implements encoding.TextMarshaler.
func (n Neighbourhood) MarshalText() ([]byte, error) {
	if !n.Valid() {
		return nil, fmt.Errorf("unsupported neighbourhood %d", uint8(n))
	}
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Neighbourhood) UnmarshalText(b []byte) error {
	v, err := ParseNeighbourhood(string(b))
	if err != nil {
		return err
	}
	*n = v
	return nil
}
