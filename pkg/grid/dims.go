package grid

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/chazu/shard/pkg/geom"
)

// Alignment is the multiple the X and Z dimensions are rounded up to.
const Alignment = 4

// AlignedDims scales target along the longest axis of box and keeps the
// aspect ratio for the other axes. X and Z are rounded up to a multiple of
// Alignment.
func AlignedDims(box geom.AABB, target int) (Coord, error) {
	if err := checkVolume(box); err != nil {
		return Coord{}, err
	}
	if target <= 0 {
		return Coord{}, errors.New("grid target dimension must be positive").
			WithType(ErrTypeConfig).
			WithTag("target", target)
	}

	size := box.Size()
	scale := float64(target) / box.MaxExtent()

	return align(Coord{
		X: atLeastOne(math.Floor(size.X * scale)),
		Y: atLeastOne(math.Floor(size.Y * scale)),
		Z: atLeastOne(math.Floor(size.Z * scale)),
	}), nil
}

// MetricDims returns dimensions giving voxelsPerUnit voxels per world unit.
// When an axis would exceed clamp, the dimensions are recomputed so the
// longest axis equals clamp; the second result reports that case.
func MetricDims(box geom.AABB, voxelsPerUnit float64, clamp int) (Coord, bool, error) {
	if err := checkVolume(box); err != nil {
		return Coord{}, false, err
	}
	if voxelsPerUnit <= 0 || clamp <= 0 {
		return Coord{}, false, errors.New("voxels per unit and clamp must be positive").
			WithType(ErrTypeConfig).
			WithTag("voxels_per_unit", voxelsPerUnit).
			WithTag("clamp", clamp)
	}

	size := box.Size()
	dims := Coord{
		X: atLeastOne(math.Ceil(size.X * voxelsPerUnit)),
		Y: atLeastOne(math.Ceil(size.Y * voxelsPerUnit)),
		Z: atLeastOne(math.Ceil(size.Z * voxelsPerUnit)),
	}

	clamped := dims.X > clamp || dims.Y > clamp || dims.Z > clamp
	if clamped {
		scale := float64(clamp) / box.MaxExtent()
		dims = Coord{
			X: atLeastOne(math.Floor(size.X * scale)),
			Y: atLeastOne(math.Floor(size.Y * scale)),
			Z: atLeastOne(math.Floor(size.Z * scale)),
		}
	}
	return align(dims), clamped, nil
}

func checkVolume(box geom.AABB) error {
	if box.IsEmpty() || !(box.Volume() > 0) {
		return errors.New("bounding box has zero volume").
			WithType(ErrTypeZeroVolume).
			WithTag("size", box.Size())
	}
	return nil
}

func align(c Coord) Coord {
	c.X = (c.X + Alignment - 1) / Alignment * Alignment
	c.Z = (c.Z + Alignment - 1) / Alignment * Alignment
	return c
}

func atLeastOne(v float64) int {
	if v < 1 || math.IsNaN(v) {
		return 1
	}
	return int(v)
}
