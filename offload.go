package corsac

import (
	"context"
	"sync"
)

// offloadQueueDepth bounds the executor queue. One slot is enough for the
// single-flight pipeline; anything beyond it runs inline.
const offloadQueueDepth = 1

// executor runs heavy stages on a single worker goroutine so the calling
// goroutine stays cheap to schedule around. The queue is bounded: when it is
// full the task runs inline on the caller instead of blocking behind a
// stuck worker.
type executor struct {
	tasks chan func()
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

func newExecutor(depth int) *executor {
	e := &executor{
		tasks: make(chan func(), depth),
		done:  make(chan struct{}),
	}
	go e.loop()
	return e
}

func (e *executor) loop() {
	for {
		select {
		case fn := <-e.tasks:
			fn()
		case <-e.done:
			// Finish what was already queued, then exit. Enqueueing is
			// serialized against close, so nothing lands after this drain.
			for {
				select {
				case fn := <-e.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// run executes fn on the worker when the queue has room, inline otherwise,
// and waits for completion or ctx expiry. On expiry the task is abandoned:
// it still runs to completion on the worker, but the caller stops waiting
// and discards whatever it produces.
func (e *executor) run(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		wrapped()
		return nil
	}
	select {
	case e.tasks <- wrapped:
		e.mu.Unlock()
	default:
		e.mu.Unlock()
		wrapped()
		return nil
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops the worker once queued tasks drain. Idempotent.
func (e *executor) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.done)
}
