package opqueue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/krisalay/tiered-cache/types"
)

// Inline runs operations synchronously on the caller's goroutine, one at a
// time. The fast tier uses it: its store is in memory and a mutex is enough
// to keep writes from interleaving.
type Inline struct {
	mu     sync.Mutex
	closed atomic.Bool

	enqueued  atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
}

// NewInline returns a ready Inline executor.
func NewInline() *Inline {
	return &Inline{}
}

func (s *Inline) Do(ctx context.Context, op func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.run(op)
}

func (s *Inline) Submit(op func() error, onErr func(error)) {
	report(onErr, s.run(op))
}

func (s *Inline) run(op func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return types.ErrClosed
	}
	s.enqueued.Add(1)
	err := op()
	s.completed.Add(1)
	if err != nil {
		s.failed.Add(1)
	}
	return err
}

func (s *Inline) Stats() Stats {
	return Stats{
		Enqueued:  s.enqueued.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
	}
}

// Close waits for a running op and rejects later ones.
func (s *Inline) Close() {
	s.mu.Lock()
	s.closed.Store(true)
	s.mu.Unlock()
}
