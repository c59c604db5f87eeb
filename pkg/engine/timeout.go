package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout bounds a single evaluation unless the engine sets its own.
const DefaultTimeout = 5 * time.Second

type evalResult struct {
	program *Program
	errors  []EvalError
	err     error
}

// await returns the evaluation result from ch, or an error once ctx is
// done. An abandoned evaluation keeps running until its sandbox returns and
// its result lands in the buffered channel unread.
func await(ctx context.Context, ch <-chan evalResult) (*Program, []EvalError, error) {
	select {
	case res := <-ch:
		return res.program, res.errors, res.err

	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("evaluation timed out: %w", ctx.Err())
		}
		return nil, nil, fmt.Errorf("evaluation canceled: %w", ctx.Err())
	}
}
