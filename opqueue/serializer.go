package opqueue

import (
	"context"

	platformerrors "github.com/jmgilman/go/errors"
)

/*
A Serializer runs mutating tier operations one at a time, in submission order.

Persistent tiers share their backing store with concurrent callers, so two
writes that interleave could leave the index and the store disagreeing about a
key. Every set, delete, eviction, lazy-expiry deletion and cleanup sweep of a
tier goes through its Serializer instead of touching the store directly.

An op must not call back into the Serializer that is running it.
*/
type Serializer interface {
	// Do enqueues op and waits for it to finish. If ctx is done first, Do
	// returns ctx.Err() but an op that was already queued still runs.
	Do(ctx context.Context, op func() error) error

	// Submit enqueues op without waiting. Failures, including the op being
	// dropped, are reported to onErr when it is non-nil.
	Submit(op func() error, onErr func(error))

	// Stats returns a snapshot of queue counters.
	Stats() Stats

	// Close stops accepting ops and waits for queued ones to finish.
	Close()
}

// Stats describes the work a Serializer has done.
type Stats struct {
	Enqueued  uint64
	Completed uint64
	Failed    uint64
	Dropped   uint64
	Depth     int
}

// ErrQueueFull is reported to Submit callers when the queue has no room.
var ErrQueueFull = platformerrors.New(platformerrors.CodeRateLimit, "operation queue full")
