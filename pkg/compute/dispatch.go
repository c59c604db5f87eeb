// Package compute runs data-parallel passes over index ranges. Each call to
// Dispatch is a barrier: it returns once every chunk has completed.
package compute

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// minChunk is the smallest range handed to a single goroutine.
const minChunk = 512

// Dispatcher splits [0, n) into contiguous chunks and runs them with a
// bounded number of goroutines.
type Dispatcher struct {
	workers int
}

// NewDispatcher returns a dispatcher running at most workers goroutines at
// once. A non-positive value uses GOMAXPROCS.
func NewDispatcher(workers int) *Dispatcher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Dispatcher{workers: workers}
}

// Workers returns the concurrency limit.
func (d *Dispatcher) Workers() int {
	return d.workers
}

// Dispatch calls fn for every chunk [lo, hi) covering [0, n). The first
// error cancels the remaining chunks and is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, n int, fn func(lo, hi int) error) error {
	return d.DispatchGrain(ctx, n, minChunk, fn)
}

// DispatchGrain is Dispatch with an explicit smallest chunk size, for passes
// where a single index is expensive.
func (d *Dispatcher) DispatchGrain(ctx context.Context, n, grain int, fn func(lo, hi int) error) error {
	if n <= 0 {
		return ctx.Err()
	}
	if grain < 1 {
		grain = 1
	}

	chunk := (n + d.workers*4 - 1) / (d.workers * 4)
	if chunk < grain {
		chunk = grain
	}

	if chunk >= n || d.workers == 1 {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(0, n)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for lo := 0; lo < n; lo += chunk {
		lo := lo
		hi := min(lo+chunk, n)

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(lo, hi)
		})
	}
	return g.Wait()
}

// Count runs fn over [0, n) and sums the per-chunk results.
func (d *Dispatcher) Count(ctx context.Context, n int, fn func(lo, hi int) int) (int, error) {
	var total atomic.Int64

	err := d.Dispatch(ctx, n, func(lo, hi int) error {
		total.Add(int64(fn(lo, hi)))
		return nil
	})
	return int(total.Load()), err
}
