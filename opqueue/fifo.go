package opqueue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/krisalay/tiered-cache/types"
)

// request is one queued operation.
type request struct {
	op    func() error
	done  chan error
	onErr func(error)
}

/*
FIFO executes operations on a single background worker in the order they
were enqueued.

The channel is buffered so bursts of writes queue up without each caller
waiting on the previous one to be accepted. Do blocks until its op has run;
Submit only blocks long enough to enqueue, and drops the op when the buffer
is full.
*/
type FIFO struct {
	ch chan request

	// mu guards closed against concurrent sends on a closed channel.
	mu     sync.RWMutex
	closed bool

	wg sync.WaitGroup

	enqueued  atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewFIFO starts a queue with room for buffer pending operations.
func NewFIFO(buffer int) *FIFO {
	if buffer < 1 {
		buffer = 1
	}
	q := &FIFO{ch: make(chan request, buffer)}

	q.wg.Add(1)
	go q.worker()

	return q
}

func (q *FIFO) Do(ctx context.Context, op func() error) error {
	req := request{op: op, done: make(chan error, 1)}

	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return types.ErrClosed
	}
	select {
	case q.ch <- req:
		q.enqueued.Add(1)
	case <-ctx.Done():
		q.mu.RUnlock()
		return ctx.Err()
	}
	q.mu.RUnlock()

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		// The op stays queued and will still run.
		return ctx.Err()
	}
}

func (q *FIFO) Submit(op func() error, onErr func(error)) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		report(onErr, types.ErrClosed)
		return
	}
	select {
	case q.ch <- request{op: op, onErr: onErr}:
		q.enqueued.Add(1)
	default:
		q.dropped.Add(1)
		report(onErr, ErrQueueFull)
	}
}

func (q *FIFO) Stats() Stats {
	return Stats{
		Enqueued:  q.enqueued.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
		Depth:     len(q.ch),
	}
}

// Close stops accepting new ops and waits for the worker to drain
// everything already queued.
func (q *FIFO) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *FIFO) worker() {
	defer q.wg.Done()

	for req := range q.ch {
		err := req.op()
		q.completed.Add(1)
		if err != nil {
			q.failed.Add(1)
		}
		if req.done != nil {
			req.done <- err
		} else {
			report(req.onErr, err)
		}
	}
}

func report(onErr func(error), err error) {
	if onErr != nil && err != nil {
		onErr(err)
	}
}
