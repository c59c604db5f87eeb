// Package metric defines the distance functions used to grow fragments from
// their seeds and to compare seed positions.
package metric

import (
	"fmt"
	"math"
	"strings"
)

// Distance selects a distance function.
type Distance uint8

const (
	Euclidean Distance = iota
	Manhattan
	Chebyshev
	numDistances
)

var distanceNames = [numDistances]string{"Euclidean", "Manhattan", "Chebyshev"}

func (d Distance) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Distance(%d)", uint8(d))
	}
	return distanceNames[d]
}

// Valid reports whether d is one of the supported distance functions.
func (d Distance) Valid() bool {
	return d < numDistances
}

// Parse converts a case-insensitive name into a Distance.
func Parse(name string) (Distance, error) {
	for i, n := range distanceNames {
		if strings.EqualFold(n, name) {
			return Distance(i), nil
		}
	}
	return 0, fmt.Errorf("unknown distance function %q, expected euclidean, manhattan or chebyshev", name)
}

// Norm returns the length of the offset (dx, dy, dz) under d. Unsupported
// values return +Inf so they can never win a comparison.
func (d Distance) Norm(dx, dy, dz float64) float64 {
	dx, dy, dz = math.Abs(dx), math.Abs(dy), math.Abs(dz)
	switch d {
	case Euclidean:
		return math.Sqrt(dx*dx + dy*dy + dz*dz)
	case Manhattan:
		return dx + dy + dz
	case Chebyshev:
		return math.Max(dx, math.Max(dy, dz))
	}
	return math.Inf(1)
}

// Between returns the distance between two integer coordinates.
func (d Distance) Between(a, b [3]int) float64 {
	return d.Norm(float64(a[0]-b[0]), float64(a[1]-b[1]), float64(a[2]-b[2]))
}

// MarshalText implements encoding.TextMarshaler.
func (d Distance) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("unsupported distance function %d", uint8(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Distance) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
