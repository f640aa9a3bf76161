// Package pool runs a function over a slice with a bounded number of goroutines.
package pool

import (
	"context"
	"sync"
)

// WorkerFunc processes one item.
type WorkerFunc[T any] func(ctx context.Context, item T) error

// Run calls fn for every item using at most numWorkers goroutines. The
// returned slice is parallel to items: errs[i] is the result for items[i].
// Items not started before ctx is cancelled get ctx.Err().
func Run[T any](ctx context.Context, items []T, numWorkers int, fn WorkerFunc[T]) []error {
	if numWorkers < 1 {
		numWorkers = 1
	}
	errs := make([]error, len(items))
	indexes := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers && w < len(items); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				if err := ctx.Err(); err != nil {
					errs[i] = err
					continue
				}
				errs[i] = fn(ctx, items[i])
			}
		}()
	}

	next := 0
feed:
	for ; next < len(items); next++ {
		select {
		case indexes <- next:
		case <-ctx.Done():
			break feed
		}
	}
	close(indexes)
	wg.Wait()

	for ; next < len(items); next++ {
		errs[next] = ctx.Err()
	}
	return errs
}

// Failed returns the non-nil errors of a Run result.
func Failed(errs []error) []error {
	var out []error
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
