package compute

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatchCoversRange(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		n       int
	}{
		{name: "empty", workers: 4, n: 0},
		{name: "single chunk", workers: 4, n: 10},
		{name: "many chunks", workers: 4, n: 100000},
		{name: "serial", workers: 1, n: 5000},
		{name: "default workers", workers: 0, n: 7777},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			d := NewDispatcher(test.workers)
			require.Positive(t, d.Workers())

			seen := make([]int32, test.n)
			err := d.Dispatch(context.Background(), test.n, func(lo, hi int) error {
				for i := lo; i < hi; i++ {
					atomic.AddInt32(&seen[i], 1)
				}
				return nil
			})
			require.NoError(t, err)

			for i, c := range seen {
				require.Equal(t, int32(1), c, "index %d", i)
			}
		})
	}
}

func TestDispatchReturnsError(t *testing.T) {
	d := NewDispatcher(4)
	boom := errors.New("boom")

	err := d.Dispatch(context.Background(), 100000, func(lo, hi int) error {
		if lo == 0 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
}

func TestDispatchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewDispatcher(2).Dispatch(ctx, 10, func(lo, hi int) error {
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCount(t *testing.T) {
	d := NewDispatcher(3)

	total, err := d.Count(context.Background(), 50000, func(lo, hi int) int {
		c := 0
		for i := lo; i < hi; i++ {
			if i%2 == 0 {
				c++
			}
		}
		return c
	})
	require.NoError(t, err)
	require.Equal(t, 25000, total)
}

func TestDispatchGrain(t *testing.T) {
	d := NewDispatcher(4)

	var chunks atomic.Int32
	seen := make([]int32, 16)
	err := d.DispatchGrain(context.Background(), len(seen), 1, func(lo, hi int) error {
		chunks.Add(1)
		for i := lo; i < hi; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int32(16), chunks.Load())
	for _, c := range seen {
		require.Equal(t, int32(1), c)
	}
}
