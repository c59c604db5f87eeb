package grid

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/chazu/shard/pkg/compute"
	"github.com/chazu/shard/pkg/rng"
)

// Shape is the footprint of the erosion kernel.
type Shape uint8

const (
	Square Shape = iota
	Ellipse
	Cross
	numShapes
)

var shapeNames = [numShapes]string{"Square", "Ellipse", "Cross"}

func (s Shape) String() string {
	if s >= numShapes {
		return fmt.Sprintf("Shape(%d)", uint8(s))
	}
	return shapeNames[s]
}

// Valid reports whether s is a supported shape.
func (s Shape) Valid() bool {
	return s < numShapes
}

// ParseShape converts a case-insensitive name into a Shape.
func ParseShape(name string) (Shape, error) {
	for i, n := range shapeNames {
		if strings.EqualFold(n, name) {
			return Shape(i), nil
		}
	}
	return 0, fmt.Errorf("unknown erosion shape %q, expected square, ellipse or cross", name)
}

// Offsets returns the neighbour offsets of the kernel footprint for the
// given radius, center excluded.
func (s Shape) Offsets(radius int) []Coord {
	var offsets []Coord
	r2 := radius * radius

	for dz := -radius; dz <= radius; dz++ {
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}

				var keep bool
				switch s {
				case Square:
					keep = true
				case Ellipse:
					keep = dx*dx+dy*dy+dz*dz <= r2
				case Cross:
					zeros := 0
					for _, v := range [3]int{dx, dy, dz} {
						if v == 0 {
							zeros++
						}
					}
					keep = zeros == 2
				}
				if keep {
					offsets = append(offsets, Coord{X: dx, Y: dy, Z: dz})
				}
			}
		}
	}
	return offsets
}

// ErosionOptions configures Erode.
type ErosionOptions struct {
	Shape      Shape
	Size       int
	Iterations int

	// Probability is the chance an eligible voxel is removed.
	Probability float64

	// Threshold is the fraction of differing neighbours a boundary voxel
	// must exceed to be eligible.
	Threshold float64
}

// Validate checks the options.
func (o ErosionOptions) Validate() error {
	switch {
	case !o.Shape.Valid():
		return errors.New("unsupported erosion shape").
			WithType(ErrTypeConfig).
			WithTag("shape", o.Shape.String())
	case o.Size < 1:
		return errors.New("erosion size must be at least 1").
			WithType(ErrTypeConfig).
			WithTag("size", o.Size)
	case o.Iterations < 0:
		return errors.New("erosion iterations must not be negative").
			WithType(ErrTypeConfig).
			WithTag("iterations", o.Iterations)
	case math.IsNaN(o.Probability) || o.Probability < 0 || o.Probability > 1:
		return errors.New("erosion probability must be in [0, 1]").
			WithType(ErrTypeConfig).
			WithTag("probability", o.Probability)
	case math.IsNaN(o.Threshold) || o.Threshold < 0 || o.Threshold > 1:
		return errors.New("erosion threshold must be in [0, 1]").
			WithType(ErrTypeConfig).
			WithTag("threshold", o.Threshold)
	}
	return nil
}

// Erode removes voxels along the boundaries found by the last
// DetectBoundaries call. In every iteration each
// occupied boundary voxel whose fraction of differing kernel neighbours
// exceeds the threshold is removed with the configured probability. Draws
// are hashed from the stream seed, the iteration and the voxel index, so
// results do not depend on the number of workers. Removals are applied once
// the pass is complete and boundaries are then recomputed. It returns the
// number of removed voxels.
func (g *Grid) Erode(ctx context.Context, d *compute.Dispatcher, stream *rng.Stream, opts ErosionOptions) (int, error) {
	if err := opts.Validate(); err != nil {
		return 0, err
	}

	offsets := opts.Shape.Offsets(max(1, opts.Size/2))
	remove := make([]bool, g.Len())
	total := 0
	inf := float32(math.Inf(1))

	for it := 0; it < opts.Iterations; it++ {
		iter := uint64(it)

		err := d.Dispatch(ctx, g.Len(), func(lo, hi int) error {
			for i := lo; i < hi; i++ {
				remove[i] = false
				if !g.boundary[i] || !g.Occupied(i) {
					continue
				}

				c := g.CoordOf(i)
				l := g.labels[i]
				diff := 0
				for _, o := range offsets {
					if g.differs(c.Add(o), l) {
						diff++
					}
				}

				frac := float64(diff) / float64(len(offsets))
				if frac > opts.Threshold && stream.At(iter, uint64(i)) < opts.Probability {
					remove[i] = true
				}
			}
			return nil
		})
		if err != nil {
			return total, err
		}

		removed := 0
		for i, r := range remove {
			if r {
				g.occupied[i] = false
				g.labels[i] = Unassigned
				g.dist[i] = inf
				removed++
			}
		}
		total += removed

		if _, err := g.DetectBoundaries(ctx, d, g.boundarySize); err != nil {
			return total, err
		}
	}
	return total, nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Shape) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unsupported erosion shape %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Shape) UnmarshalText(b []byte) error {
	v, err := ParseShape(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
