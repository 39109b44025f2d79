package service

import (
	"context"
	"runtime"
	"sync"
)

type parseJob struct {
	ctx  context.Context
	fn   func(ctx context.Context)
	done chan struct{}
}

// parsePool runs CPU-bound parses on a fixed set of workers so that intake of
// new uploads never waits on them.
type parsePool struct {
	jobs      chan parseJob
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newParsePool(workers int) *parsePool {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &parsePool{jobs: make(chan parseJob, workers*4)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				if job.ctx.Err() == nil {
					job.fn(job.ctx)
				}
				close(job.done)
			}
		}()
	}
	return p
}

// run queues fn and waits until a worker has finished it. fn is expected to
// observe ctx; a job cancelled while still queued is skipped.
func (p *parsePool) run(ctx context.Context, fn func(ctx context.Context)) error {
	job := parseJob{ctx: ctx, fn: fn, done: make(chan struct{})}
	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-job.done
	return ctx.Err()
}

func (p *parsePool) close() {
	p.closeOnce.Do(func() {
		close(p.jobs)
		p.wg.Wait()
	})
}
