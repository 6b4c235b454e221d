// Package parallel runs index-build loops over a bounded set of worker
// goroutines.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Workers resolves a configured worker count; n <= 0 means one per CPU.
func Workers(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// For calls fn(worker, i) for every i in [0, n). Worker w handles indexes
// w, w+workers, w+2*workers, ... so per-worker scratch space can be indexed
// by worker and rows of uneven cost are spread evenly. The first error
// cancels the remaining work.
func For(ctx context.Context, n, workers int, fn func(worker, i int) error) error {
	if n == 0 {
		return ctx.Err()
	}
	workers = min(Workers(workers), n)
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := w; i < n; i += workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := fn(w, i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
