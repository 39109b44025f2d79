package parser

import (
	"context"
	"runtime"
	"sync"
)

// minParallelItems is the input size below which work runs inline; spinning
// up workers for a handful of blocks costs more than it saves.
const minParallelItems = 64

type indexedJob[In any] struct {
	index int
	item  In
}

type indexedResult[Out any] struct {
	index int
	out   Out
}

// mapOrdered applies fn to every item on a pool of workers and returns the
// outputs in input order. Cancellation is checked between items, never inside
// fn; a cancelled run returns ctx.Err() and no partial output.
func mapOrdered[In, Out any](ctx context.Context, workers int, items []In, fn func(In) Out) ([]Out, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]Out, len(items))

	if len(items) < minParallelItems || workers == 1 {
		for i, item := range items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out[i] = fn(item)
		}
		return out, nil
	}

	jobs := make(chan indexedJob[In], workers*10)
	results := make(chan indexedResult[Out], workers*10)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					continue // drain so the dispatcher never blocks
				}
				results <- indexedResult[Out]{index: job.index, out: fn(job.item)}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, item := range items {
			select {
			case <-ctx.Done():
				return
			case jobs <- indexedJob[In]{index: i, item: item}:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		out[r.index] = r.out
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
