// Package kernel defines the surface extraction interface. A Solid is a
// scalar field sampled over a bounding box; a Kernel turns the zero level set
// of that field into a triangle mesh. The abstraction allows swapping the
// extraction backend without changing the rest of the pipeline.
package kernel

// Solid is a scalar field evaluated in world space. Negative values are
// inside the surface and positive values are outside.
type Solid interface {
	// BoundingBox returns the axis-aligned region the field is sampled in.
	BoundingBox() (min, max [3]float64)

	// Evaluate returns the field value at (x, y, z).
	Evaluate(x, y, z float64) float64
}

// Kernel extracts surfaces from solids.
type Kernel interface {
	// ToMesh converts a solid to a triangle mesh, sampling the longest axis
	// of its bounding box with the given number of cells.
	ToMesh(s Solid, cells int) (*Mesh, error)
}
