// Package engine evaluates procedure files. A procedure file is a Lisp
// program run in a sandboxed zygomys environment whose builtins describe
// fracture parameters and dataset generation procedures.
package engine

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chazu/shard/pkg/fracture"
	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Program is the output of a procedure file.
type Program struct {
	// Parameters holds the parameters set with defaults, or nil.
	Parameters *fracture.Parameters

	// Procedures lists the procedures in evaluation order.
	Procedures []fracture.Procedure
}

// Defaults returns the program parameters, or the package defaults when
// the program never set any.
func (p *Program) Defaults() fracture.Parameters {
	if p.Parameters != nil {
		return p.Parameters.Clone()
	}
	return fracture.Default()
}

// Engine wraps the zygomys interpreter. It is safe for concurrent use;
// each evaluation creates a fresh sandboxed environment.
type Engine struct {
	// Timeout bounds every evaluation. Zero or negative disables it.
	Timeout time.Duration
}

// NewEngine creates an engine with DefaultTimeout.
func NewEngine() *Engine {
	return &Engine{Timeout: DefaultTimeout}
}

// Evaluate runs source and returns the program it describes.
//
// Return semantics:
//   - On success: returns program + nil errors + nil error
//   - On parse/eval failure: returns nil program + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*Program, []EvalError, error) {
	return e.EvaluateContext(context.Background(), source)
}

// EvaluateContext is Evaluate bounded by ctx in addition to the engine
// timeout.
func (e *Engine) EvaluateContext(ctx context.Context, source string) (*Program, []EvalError, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		p, evalErrs, err := e.evaluate(source)
		ch <- evalResult{program: p, errors: evalErrs, err: err}
	}()

	return await(ctx, ch)
}

// EvaluateFile reads and evaluates the procedure file at path. Eval errors
// are joined into the returned error.
func (e *Engine) EvaluateFile(path string) (*Program, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading procedure file: %w", err)
	}

	p, evalErrs, err := e.Evaluate(string(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(evalErrs) > 0 {
		msgs := make([]string, len(evalErrs))
		for i, ee := range evalErrs {
			msgs[i] = ee.Error()
		}
		return nil, fmt.Errorf("%s: %s", path, strings.Join(msgs, "; "))
	}
	return p, nil
}

func (e *Engine) evaluate(source string) (*Program, []EvalError, error) {
	p := &Program{}

	// Empty source is a valid program without procedures.
	if strings.TrimSpace(source) == "" {
		return p, nil, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	registerBuiltins(env, p)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}
	return p, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{
				Line:    line,
				Message: strings.TrimSpace(m[2]),
			}}
		}
	}

	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
