package expiration

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// SweepFunc removes every expired entry it finds and reports how many went.
type SweepFunc func(ctx context.Context) (int, error)

/*
Janitor runs a sweep on a fixed interval, independent of request traffic, so
that expired data nobody reads again is still reclaimed.

The janitor is owned by the tier that created it. Start launches one
goroutine; Stop cancels it and waits for it to exit, so a stopped tier never
has a sweep running in the background. Sweeps never overlap: a tick that
arrives while the previous sweep is still running is skipped.
*/
type Janitor struct {
	interval time.Duration
	clock    clock.Clock
	sweep    SweepFunc

	// sweeping guards against re-entrant sweeps from ticks and RunOnce.
	sweeping atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewJanitor creates a janitor that calls sweep every interval.
// An interval of zero or less disables the background loop; RunOnce still works.
func NewJanitor(interval time.Duration, clk clock.Clock, sweep SweepFunc) *Janitor {
	if clk == nil {
		clk = clock.New()
	}
	return &Janitor{
		interval: interval,
		clock:    clk,
		sweep:    sweep,
	}
}

// Start launches the background loop. Calling Start on a running janitor is a no-op.
func (j *Janitor) Start(ctx context.Context) {
	if j.interval <= 0 {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})

	ticker := j.clock.Ticker(j.interval)
	go func(done chan struct{}) {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _, _ = j.RunOnce(ctx)
			}
		}
	}(j.done)
}

// Stop cancels the background loop and waits for it to return.
// It is safe to call more than once.
func (j *Janitor) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the background loop is active.
func (j *Janitor) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancel != nil
}

// RunOnce performs one sweep now. ran is false when another sweep was
// already in progress and this call did nothing.
func (j *Janitor) RunOnce(ctx context.Context) (ran bool, removed int, err error) {
	if !j.sweeping.CompareAndSwap(false, true) {
		return false, 0, nil
	}
	defer j.sweeping.Store(false)

	removed, err = j.sweep(ctx)
	return true, removed, err
}
