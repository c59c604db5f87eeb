package fracture

import (
	"math"
	"strings"
)

// Interval is an inclusive integer range.
type Interval struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Mix linearly interpolates between Min and Max and rounds to the nearest
// integer.
func (i Interval) Mix(t float64) int {
	t = math.Max(0, math.Min(1, t))
	return int(math.Round(float64(i.Min) + float64(i.Max-i.Min)*t))
}

// Procedure describes a dataset generation run: which models to fracture,
// how many fragments and iterations to produce, and where to write them.
type Procedure struct {
	InputFolder       string `json:"input_folder"`
	SearchExtension   string `json:"search_extension"`
	DestinationFolder string `json:"destination_folder"`
	SaveExtension     string `json:"save_extension"`

	// StartModel skips every model sorted before it. Empty starts at the
	// first model.
	StartModel string `json:"start_model"`

	Fragments  Interval `json:"fragments"`
	Iterations Interval `json:"iterations"`

	ExportMetadata bool `json:"export_metadata"`
	Compress       bool `json:"compress"`

	Parameters Parameters `json:"parameters"`
}

// DefaultProcedure returns a procedure with the default parameters.
func DefaultProcedure() Procedure {
	return Procedure{
		SearchExtension: ".stl",
		SaveExtension:   ".stl",
		Fragments:       Interval{Min: 2, Max: 10},
		Iterations:      Interval{Min: 1, Max: 1},
		ExportMetadata:  true,
		Parameters:      Default(),
	}
}

// IterationsFor returns the number of iterations for a fragment count,
// interpolated over the fragment interval.
func (p Procedure) IterationsFor(fragments int) int {
	span := p.Fragments.Max - p.Fragments.Min
	if span <= 0 {
		return p.Iterations.Min
	}
	return p.Iterations.Mix(float64(fragments-p.Fragments.Min) / float64(span))
}

// Validate checks the procedure and its parameters.
func (p Procedure) Validate() ValidationResult {
	r := p.Parameters.Validate()

	if p.InputFolder == "" {
		r.add(SeverityError, "input_folder", "must be set")
	}
	if p.DestinationFolder == "" {
		r.add(SeverityError, "destination_folder", "must be set")
	}
	if !strings.HasPrefix(p.SearchExtension, ".") {
		r.add(SeverityError, "search_extension", "must start with a dot, got %q", p.SearchExtension)
	}
	if !strings.HasPrefix(p.SaveExtension, ".") {
		r.add(SeverityError, "save_extension", "must start with a dot, got %q", p.SaveExtension)
	}
	if p.Fragments.Min < 1 || p.Fragments.Max < p.Fragments.Min {
		r.add(SeverityError, "fragments", "invalid interval [%d, %d]", p.Fragments.Min, p.Fragments.Max)
	}
	if p.Iterations.Min < 1 || p.Iterations.Max < p.Iterations.Min {
		r.add(SeverityError, "iterations", "invalid interval [%d, %d]", p.Iterations.Min, p.Iterations.Max)
	}
	return r
}
