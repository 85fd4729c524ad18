package opqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krisalay/tiered-cache/types"
)

func TestFIFO_RunsInSubmissionOrder(t *testing.T) {
	q := NewFIFO(64)
	defer q.Close()

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 50; i++ {
		i := i
		q.Submit(func() error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}, nil)
	}
	require.NoError(t, q.Do(context.Background(), func() error { return nil }))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 50)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestFIFO_NeverOverlaps(t *testing.T) {
	q := NewFIFO(16)
	defer q.Close()

	var (
		mu      sync.Mutex
		running int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Do(context.Background(), func() error {
				mu.Lock()
				running++
				if running > maxSeen {
					maxSeen = running
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				running--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestFIFO_DoReturnsOpError(t *testing.T) {
	q := NewFIFO(4)
	defer q.Close()

	boom := errors.New("boom")
	err := q.Do(context.Background(), func() error { return boom })
	assert.ErrorIs(t, err, boom)

	stats := q.Stats()
	assert.EqualValues(t, 1, stats.Completed)
	assert.EqualValues(t, 1, stats.Failed)
}

func TestFIFO_AbandonedCallerStillRuns(t *testing.T) {
	q := NewFIFO(4)
	defer q.Close()

	release := make(chan struct{})
	ran := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := q.Do(ctx, func() error {
		<-release
		close(ran)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("queued op did not run after caller gave up")
	}
}

func TestFIFO_CloseDrainsAndRejects(t *testing.T) {
	q := NewFIFO(8)

	var count int
	var mu sync.Mutex
	for i := 0; i < 5; i++ {
		q.Submit(func() error {
			mu.Lock()
			count++
			mu.Unlock()
			return nil
		}, nil)
	}
	q.Close()
	q.Close()

	assert.Equal(t, 5, count)
	assert.ErrorIs(t, q.Do(context.Background(), func() error { return nil }), types.ErrClosed)

	var reported error
	q.Submit(func() error { return nil }, func(err error) { reported = err })
	assert.ErrorIs(t, reported, types.ErrClosed)
}

func TestFIFO_SubmitDropsWhenFull(t *testing.T) {
	q := NewFIFO(1)
	defer q.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	q.Submit(func() error {
		close(started)
		<-block
		return nil
	}, nil)
	<-started

	q.Submit(func() error { return nil }, nil)

	var dropped error
	q.Submit(func() error { return nil }, func(err error) { dropped = err })
	assert.ErrorIs(t, dropped, ErrQueueFull)
	assert.EqualValues(t, 1, q.Stats().Dropped)

	close(block)
}

func TestInline(t *testing.T) {
	s := NewInline()

	boom := errors.New("boom")
	assert.NoError(t, s.Do(context.Background(), func() error { return nil }))
	assert.ErrorIs(t, s.Do(context.Background(), func() error { return boom }), boom)

	var got error
	s.Submit(func() error { return boom }, func(err error) { got = err })
	assert.ErrorIs(t, got, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Do(ctx, func() error { return nil }), context.Canceled)

	stats := s.Stats()
	assert.EqualValues(t, 3, stats.Completed)
	assert.EqualValues(t, 2, stats.Failed)

	s.Close()
	assert.ErrorIs(t, s.Do(context.Background(), func() error { return nil }), types.ErrClosed)
}
