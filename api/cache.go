package api

import (
	"context"
	"time"

	"github.com/krisalay/tiered-cache/types"
)

/*
Cache defines the PUBLIC API of the tiered cache.
This is a contract that guarantees certain behaviors, without exposing internals.
All of the details like (tiers, promotion, eviction, expiration, persistence and
loader deduplication) are hidden behind this interface.
*/
type Cache interface {

	/*
		Get returns the value for key.

		BEHAVIOR:
		-------------------
		1. Unless the cache is disabled or a refresh is forced, read the fast,
		   medium and slow tiers in that order. A hit in a slower tier is
		   copied into every faster tier before it is returned.

		2. On a full miss, call the loader and write its result to every
		   tier with a TTL scaled for that tier.

		3. If the loader fails, serve a stale copy from the medium or slow
		   tier with TTL 0. Only when no copy exists anywhere is the loader's
		   error returned, unchanged.
	*/
	Get(ctx context.Context, key string, loader types.Loader, opts ...types.GetOption) (types.Result, error)

	/*
		Set writes value to every tier. ttl is the fast-tier TTL; slower
		tiers derive their own from it. A zero ttl uses the fast tier's default.
	*/
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes key from every tier. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Has reports whether any tier holds an unexpired value for key.
	Has(ctx context.Context, key string) bool

	// Clear empties every tier.
	Clear(ctx context.Context) error

	/*
		Close gracefully shuts the cache down.

		BEHAVIOR:
		---------
		- Waits for in-flight promotions
		- Stops the cleanup schedules
		- Persists access bookkeeping and drains the write queues
	*/
	Close(ctx context.Context) error
}
