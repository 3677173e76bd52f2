// Package fileproc applies a function to many files in parallel.
package fileproc

import (
	"context"
	"errors"
	"runtime"

	"github.com/sourcegraph/conc/pool"
)

// DefaultWorkerMultiplier is the multiplier applied to NumCPU for worker count.
// File loading is I/O bound, so more workers than CPUs pays off.
const DefaultWorkerMultiplier = 2

// MapFiles calls fn for every path with at most workers calls in flight
// (workers <= 0 uses 2x NumCPU) and returns the results in input order.
//
// If any call fails, the error for the earliest failing path is returned
// and calls not yet started are skipped. onDone, if set, runs after each
// finished call and may be called from several goroutines.
func MapFiles[T any](ctx context.Context, paths []string, workers int, fn func(path string) (T, error), onDone func()) ([]T, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU() * DefaultWorkerMultiplier
	}

	results := make([]T, len(paths))
	errs := make([]error, len(paths))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := pool.New().WithMaxGoroutines(workers)
	for i, path := range paths {
		p.Go(func() {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = fn(path)
			if errs[i] != nil {
				cancel()
			}
			if onDone != nil {
				onDone()
			}
		})
	}
	p.Wait()

	// Skipped calls carry the cancellation; report the real failure first.
	var cancelled error
	for _, err := range errs {
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			if cancelled == nil {
				cancelled = err
			}
		default:
			return nil, err
		}
	}
	if cancelled != nil {
		return nil, cancelled
	}
	return results, nil
}
