package engine

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/chazu/shard/pkg/fracture"
	"github.com/chazu/shard/pkg/grid"
	"github.com/chazu/shard/pkg/metric"
	"github.com/chazu/shard/pkg/rng"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

type sexpParameters struct {
	params fracture.Parameters
}

func (p *sexpParameters) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(fracture :num-seeds %d :distance %s)", p.params.NumSeeds, p.params.Distance)
}
func (p *sexpParameters) Type() *zygo.RegisteredType { return nil }

type sexpErosion struct {
	erosion fracture.Erosion
}

func (e *sexpErosion) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(erosion :shape %s :size %d)", e.erosion.Shape, e.erosion.Size)
}
func (e *sexpErosion) Type() *zygo.RegisteredType { return nil }

type sexpInterval struct {
	interval fracture.Interval
}

func (i *sexpInterval) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(interval %d %d)", i.interval.Min, i.interval.Max)
}
func (i *sexpInterval) Type() *zygo.RegisteredType { return nil }

type sexpProcedure struct {
	proc fracture.Procedure
}

func (p *sexpProcedure) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(procedure :input-folder %q)", p.proc.InputFolder)
}
func (p *sexpProcedure) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// keywordName returns the option name of a rewritten :keyword.
func keywordName(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

// splitKeywords pairs every :keyword in args with the form after it.
// Arguments outside a pair are returned in order as positional.
func splitKeywords(args []zygo.Sexp) (map[string]zygo.Sexp, []zygo.Sexp, error) {
	kw := make(map[string]zygo.Sexp)
	var positional []zygo.Sexp
	for i := 0; i < len(args); i++ {
		name, ok := keywordName(args[i])
		if !ok {
			positional = append(positional, args[i])
			continue
		}
		if i+1 == len(args) {
			return nil, nil, fmt.Errorf("option :%s has no value", name)
		}
		if _, dup := kw[name]; dup {
			return nil, nil, fmt.Errorf("option :%s given twice", name)
		}
		kw[name] = args[i+1]
		i++
	}
	return kw, positional, nil
}

// option sets one field of T from a keyword value.
type option[T any] func(dst *T, v zygo.Sexp) error

// applyOptions sets the keyword arguments of a builtin call on dst. Unknown
// keywords and positional arguments are rejected.
func applyOptions[T any](fn string, dst *T, options map[string]option[T], args []zygo.Sexp) error {
	kw, positional, err := splitKeywords(args)
	if err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	if len(positional) > 0 {
		return fmt.Errorf("%s: unexpected argument %s", fn, positional[0].SexpString(nil))
	}

	for _, name := range slices.Sorted(maps.Keys(kw)) {
		set, ok := options[name]
		if !ok {
			return fmt.Errorf("%s: unknown option :%s", fn, name)
		}
		if err := set(dst, kw[name]); err != nil {
			return fmt.Errorf("%s: %s: %w", fn, name, err)
		}
	}
	return nil
}

func intOpt[T any](field func(*T) *int) option[T] {
	return func(dst *T, v zygo.Sexp) error {
		n, err := toInt(v)
		if err != nil {
			return err
		}
		*field(dst) = n
		return nil
	}
}

func floatOpt[T any](field func(*T) *float64) option[T] {
	return func(dst *T, v zygo.Sexp) error {
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		*field(dst) = f
		return nil
	}
}

func boolOpt[T any](field func(*T) *bool) option[T] {
	return func(dst *T, v zygo.Sexp) error {
		b, err := toBool(v)
		if err != nil {
			return err
		}
		*field(dst) = b
		return nil
	}
}

func stringOpt[T any](field func(*T) *string) option[T] {
	return func(dst *T, v zygo.Sexp) error {
		s, err := toString(v)
		if err != nil {
			return err
		}
		*field(dst) = s
		return nil
	}
}

// enumOpt parses a member keyword or a plain string with parse.
func enumOpt[T, E any](parse func(string) (E, error), field func(*T) *E) option[T] {
	return func(dst *T, v zygo.Sexp) error {
		name, err := toKeywordString(v)
		if err != nil {
			return err
		}
		e, err := parse(name)
		if err != nil {
			return err
		}
		*field(dst) = e
		return nil
	}
}

func intervalOpt[T any](field func(*T) *fracture.Interval) option[T] {
	return func(dst *T, v zygo.Sexp) error {
		switch s := v.(type) {
		case *sexpInterval:
			*field(dst) = s.interval
			return nil
		case *zygo.SexpInt:
			*field(dst) = fracture.Interval{Min: int(s.Val), Max: int(s.Val)}
			return nil
		}
		return fmt.Errorf("expected interval or integer, got %T (%s)", v, v.SexpString(nil))
	}
}

var erosionOptions = map[string]option[fracture.Erosion]{
	"enabled":     boolOpt(func(e *fracture.Erosion) *bool { return &e.Enabled }),
	"shape":       enumOpt(grid.ParseShape, func(e *fracture.Erosion) *grid.Shape { return &e.Shape }),
	"size":        intOpt(func(e *fracture.Erosion) *int { return &e.Size }),
	"iterations":  intOpt(func(e *fracture.Erosion) *int { return &e.Iterations }),
	"probability": floatOpt(func(e *fracture.Erosion) *float64 { return &e.Probability }),
	"threshold":   floatOpt(func(e *fracture.Erosion) *float64 { return &e.Threshold }),
}

var parameterOptions = map[string]option[fracture.Parameters]{
	"num-seeds":      intOpt(func(p *fracture.Parameters) *int { return &p.NumSeeds }),
	"bias-seeds":     intOpt(func(p *fracture.Parameters) *int { return &p.BiasSeeds }),
	"extra-seeds":    intOpt(func(p *fracture.Parameters) *int { return &p.NumExtraSeeds }),
	"merge-distance": enumOpt(metric.Parse, func(p *fracture.Parameters) *metric.Distance { return &p.MergeSeedsDistance }),
	"distance":       enumOpt(metric.Parse, func(p *fracture.Parameters) *metric.Distance { return &p.Distance }),
	"neighbourhood":  enumOpt(fracture.ParseNeighbourhood, func(p *fracture.Parameters) *fracture.Neighbourhood { return &p.Neighbourhood }),
	"erosion": func(p *fracture.Parameters, v zygo.Sexp) error {
		e, ok := v.(*sexpErosion)
		if !ok {
			return fmt.Errorf("expected erosion, got %T (%s)", v, v.SexpString(nil))
		}
		p.Erosion = e.erosion
		return nil
	},
	"boundary-size": intOpt(func(p *fracture.Parameters) *int { return &p.BoundarySize }),
	"targets": func(p *fracture.Parameters, v zygo.Sexp) error {
		items, err := sexpListToSlice(v)
		if err != nil {
			return err
		}
		targets := make([]int, 0, len(items))
		for _, item := range items {
			n, err := toInt(item)
			if err != nil {
				return fmt.Errorf("target entry: %w", err)
			}
			targets = append(targets, n)
		}
		p.TargetTriangles = targets
		return nil
	},
	"grid-subdivisions":       intOpt(func(p *fracture.Parameters) *int { return &p.GridSubdivisions }),
	"voxels-per-unit":         floatOpt(func(p *fracture.Parameters) *float64 { return &p.VoxelsPerUnit }),
	"clamp-voxels":            intOpt(func(p *fracture.Parameters) *int { return &p.ClampVoxels }),
	"metric-voxelization":     boolOpt(func(p *fracture.Parameters) *bool { return &p.MetricVoxelization }),
	"fill-shape":              boolOpt(func(p *fracture.Parameters) *bool { return &p.FillShape }),
	"remove-isolated-regions": boolOpt(func(p *fracture.Parameters) *bool { return &p.RemoveIsolatedRegions }),
	"spreading":               intOpt(func(p *fracture.Parameters) *int { return &p.Spreading }),
	"seed": func(p *fracture.Parameters, v zygo.Sexp) error {
		n, err := toInt(v)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("must not be negative, got %d", n)
		}
		p.Seed = uint64(n)
		return nil
	},
	"seeding":      enumOpt(rng.ParseKind, func(p *fracture.Parameters) *rng.Kind { return &p.SeedingKind }),
	"max-rounds":   intOpt(func(p *fracture.Parameters) *int { return &p.MaxRounds }),
	"subdivisions": intOpt(func(p *fracture.Parameters) *int { return &p.Subdivisions }),
}

var procedureOptions = map[string]option[fracture.Procedure]{
	"input-folder":       stringOpt(func(p *fracture.Procedure) *string { return &p.InputFolder }),
	"search-extension":   stringOpt(func(p *fracture.Procedure) *string { return &p.SearchExtension }),
	"destination-folder": stringOpt(func(p *fracture.Procedure) *string { return &p.DestinationFolder }),
	"save-extension":     stringOpt(func(p *fracture.Procedure) *string { return &p.SaveExtension }),
	"start-model":        stringOpt(func(p *fracture.Procedure) *string { return &p.StartModel }),
	"fragments":          intervalOpt(func(p *fracture.Procedure) *fracture.Interval { return &p.Fragments }),
	"iterations":         intervalOpt(func(p *fracture.Procedure) *fracture.Interval { return &p.Iterations }),
	"export-metadata":    boolOpt(func(p *fracture.Procedure) *bool { return &p.ExportMetadata }),
	"compress":           boolOpt(func(p *fracture.Procedure) *bool { return &p.Compress }),
	"parameters": func(p *fracture.Procedure, v zygo.Sexp) error {
		params, ok := v.(*sexpParameters)
		if !ok {
			return fmt.Errorf("expected fracture parameters, got %T (%s)", v, v.SexpString(nil))
		}
		p.Parameters = params.params.Clone()
		return nil
	},
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toInt extracts an int from a SexpInt or an integral SexpFloat.
func toInt(s zygo.Sexp) (int, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return int(v.Val), nil
	case *zygo.SexpFloat:
		if v.Val == math.Trunc(v.Val) {
			return int(v.Val), nil
		}
		return 0, fmt.Errorf("expected integer, got %g", v.Val)
	}
	return 0, fmt.Errorf("expected integer, got %T (%s)", s, s.SexpString(nil))
}

func toBool(s zygo.Sexp) (bool, error) {
	if b, ok := s.(*zygo.SexpBool); ok {
		return b.Val, nil
	}
	return false, fmt.Errorf("expected boolean, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string literal. Keywords are not strings.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		if name, kw := keywordName(s); kw {
			return "", fmt.Errorf("expected string, got keyword :%s", name)
		}
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a member keyword (:moore) or a plain string
// ("moore").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the procedure builtins into a zygomys
// environment. Procedures and defaults are recorded on prog.
//
// Builtins see sources rewritten by preprocessSource: an option keyword
// arrives as "__kw_num-seeds" and an enum member as "__kw_vonneumann".
func registerBuiltins(env *zygo.Zlisp, prog *Program) {

	// -----------------------------------------------------------------------
	// (erosion :shape :ellipse :size 3 :iterations 3 :probability 0.5)
	// -----------------------------------------------------------------------
	env.AddFunction("erosion", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		e := fracture.Default().Erosion
		e.Enabled = true
		if err := applyOptions(name, &e, erosionOptions, args); err != nil {
			return zygo.SexpNull, err
		}
		return &sexpErosion{erosion: e}, nil
	})

	// -----------------------------------------------------------------------
	// (fracture :num-seeds 8 :distance :chebyshev :targets (list 1000 500))
	// -----------------------------------------------------------------------
	env.AddFunction("fracture", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		p := prog.Defaults()
		if err := applyOptions(name, &p, parameterOptions, args); err != nil {
			return zygo.SexpNull, err
		}
		p.Normalize()

		if r := p.Validate(); !r.OK() {
			return zygo.SexpNull, fmt.Errorf("fracture: %s", r.Errors[0])
		}
		return &sexpParameters{params: p}, nil
	})

	// -----------------------------------------------------------------------
	// (interval 2 10)
	// -----------------------------------------------------------------------
	env.AddFunction("interval", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("interval requires exactly 2 arguments, got %d", len(args))
		}
		lo, err := toInt(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("interval: min: %w", err)
		}
		hi, err := toInt(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("interval: max: %w", err)
		}
		if hi < lo {
			return zygo.SexpNull, fmt.Errorf("interval: max %d is less than min %d", hi, lo)
		}
		return &sexpInterval{interval: fracture.Interval{Min: lo, Max: hi}}, nil
	})

	// -----------------------------------------------------------------------
	// (defaults (fracture ...))
	//
	// Later fracture and procedure forms start from these parameters.
	// -----------------------------------------------------------------------
	env.AddFunction("defaults", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("defaults requires exactly 1 argument, got %d", len(args))
		}
		p, ok := args[0].(*sexpParameters)
		if !ok {
			return zygo.SexpNull, fmt.Errorf("defaults: expected fracture parameters, got %T (%s)",
				args[0], args[0].SexpString(nil))
		}
		params := p.params.Clone()
		prog.Parameters = &params
		return p, nil
	})

	// -----------------------------------------------------------------------
	// (procedure :input-folder "models" :destination-folder "out"
	//            :fragments (interval 2 10) :parameters (fracture ...))
	// -----------------------------------------------------------------------
	env.AddFunction("procedure", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		proc := fracture.DefaultProcedure()
		proc.Parameters = prog.Defaults()
		if err := applyOptions(name, &proc, procedureOptions, args); err != nil {
			return zygo.SexpNull, err
		}

		if r := proc.Validate(); !r.OK() {
			return zygo.SexpNull, fmt.Errorf("procedure: %s", r.Errors[0])
		}
		prog.Procedures = append(prog.Procedures, proc)
		return &sexpProcedure{proc: proc}, nil
	})
}
