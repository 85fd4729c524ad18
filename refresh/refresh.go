// This file defines the idea of a "refresh hook".
// The hook lets the application react when the cache had to fall back on
// stale data because the loader failed.

package refresh

import (
	"context"

	"github.com/krisalay/tiered-cache/types"
)

/*
Hook is the interface for refresh behavior.
If a refresh hook is configured, it is called every time a read is answered
with stale data from a slower tier.

This gives the application a chance to:
- Schedule a retry of the failed load
- Alert that the upstream source is down
- Record which keys are being served stale

The cache itself does NOT care what the hook does.
It calls OnStale on its own goroutine and moves on.
*/
type Hook interface {
	OnStale(ctx context.Context, key string, tier types.TierName, loadErr error)
}

// Func adapts an ordinary function to Hook.
type Func func(ctx context.Context, key string, tier types.TierName, loadErr error)

func (f Func) OnStale(ctx context.Context, key string, tier types.TierName, loadErr error) {
	f(ctx, key, tier, loadErr)
}
