// Package workerpool implements the fixed-size, work-stealing goroutine
// pool the index builder dispatches revision and directory walks onto.
// It generalizes the teacher's Room/Task worker pool from an untyped
// interface{} result into a typed, per-call error aggregation model, since
// every builder stage needs "run N independent jobs, collect the first
// error, wait for the rest to finish" rather than a persistent job queue.
package workerpool

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool runs jobs across a fixed number of worker goroutines.
type Pool struct {
	size int
}

// firstError latches the first non-nil error reported to it, guarded by a
// mutex rather than atomic.Value: CompareAndSwap on an atomic.Value panics
// if two goroutines ever store errors of different concrete types, and
// job() is a caller-supplied func with no guarantee every error it returns
// shares one dynamic type.
type firstError struct {
	mu  sync.Mutex
	err error
}

func (f *firstError) set(err error) {
	if err == nil {
		return
	}
	f.mu.Lock()
	if f.err == nil {
		f.err = err
	}
	f.mu.Unlock()
}

func (f *firstError) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// New creates a Pool sized to n workers. n<=0 selects runtime.NumCPU().
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
		if n < 1 {
			n = 1
		}
	}
	return &Pool{size: n}
}

// Size returns the configured worker count.
func (p *Pool) Size() int { return p.size }

// ForEach work-steals job(i) for i in [0, n) across p.Size() workers,
// stopping early (best-effort) on the first error and returning it once
// every in-flight job has finished. Cancelling ctx also stops dispatching
// new work; in-flight jobs are allowed to complete.
func (p *Pool) ForEach(ctx context.Context, n int, job func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	var next int64 = -1
	var firstErr firstError
	var wg sync.WaitGroup

	workers := p.size
	if workers > n {
		workers = n
	}
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if firstErr.get() != nil {
					return
				}
				i := int(atomic.AddInt64(&next, 1))
				if i >= n {
					return
				}
				if err := job(ctx, i); err != nil {
					firstErr.set(err)
				}
			}
		}()
	}
	wg.Wait()
	if err := firstErr.get(); err != nil {
		return err
	}
	return ctx.Err()
}
