// Package scanner drives concurrent classfile parsing over a WorkQueue that
// can grow while it drains — new work units arrive as parsers discover
// external-class references. Each parsed record is linked into the graph as
// soon as it is parsed; the graph's own lock serializes those Link calls.
package scanner

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/junjiewwang/classgraph/internal/discovery"
)

// WorkQueue is a many-producer, many-consumer queue of discovery.WorkUnit
// that, unlike a submit-all-then-wait worker pool, accepts new units for as
// long as any worker might still be running — required because parsing a
// classfile can itself enqueue new units via external-class discovery.
type WorkQueue struct {
	units   chan discovery.WorkUnit
	wg      sync.WaitGroup
	pending int64 // units submitted but not yet drained, for close detection
	once    sync.Once
}

// NewWorkQueue creates a WorkQueue with the given channel buffer size.
func NewWorkQueue(bufferSize int) *WorkQueue {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &WorkQueue{
		units: make(chan discovery.WorkUnit, bufferSize),
	}
}

// Add enqueues one or more work units. Safe to call concurrently, including
// from inside a worker that is itself draining the queue.
func (q *WorkQueue) Add(units ...discovery.WorkUnit) {
	if len(units) == 0 {
		return
	}
	atomic.AddInt64(&q.pending, int64(len(units)))
	q.wg.Add(len(units))
	for _, u := range units {
		q.units <- u
	}
}

// done marks one unit as fully processed (parsed and, if applicable,
// extended). Called by the worker loop after each unit.
func (q *WorkQueue) done() {
	q.wg.Done()
	atomic.AddInt64(&q.pending, -1)
}

// Run drains the queue with concurrency workers, invoking handle for each
// unit. handle may call Add to enqueue newly discovered units. Run returns
// once every unit — including ones discovered mid-run — has been handled,
// or ctx is cancelled.
func (q *WorkQueue) Run(ctx context.Context, concurrency int, handle func(context.Context, discovery.WorkUnit)) {
	if concurrency <= 0 {
		concurrency = 4
	}

	var workers sync.WaitGroup
	workers.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer workers.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case unit, ok := <-q.units:
					if !ok {
						return
					}
					handle(ctx, unit)
					q.done()
				}
			}
		}()
	}

	// Close the channel once every submitted unit (including those added
	// while draining) has been marked done.
	go func() {
		q.wg.Wait()
		q.once.Do(func() { close(q.units) })
	}()

	workers.Wait()
}
