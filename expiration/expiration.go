// Package expiration decides when tier entries stop being visible and runs
// the periodic sweep that physically removes them.
package expiration

import (
	"time"

	"github.com/krisalay/tiered-cache/types"
)

/*
Strategy owns the time bookkeeping of an entry. A tier asks it three things:
- whether an entry is logically absent at a given instant
- how a successful read changes the entry
- how a write initialises it

Expired entries stay in storage until a lazy delete or the Janitor removes
them, so IsExpired must be the only test a tier applies.
*/
type Strategy interface {
	IsExpired(ent *types.CacheEntry, now time.Time) bool

	// OnAccess runs under the tier's lock after a hit.
	OnAccess(ent *types.CacheEntry, now time.Time)

	// OnWrite runs for every Set. A ttl of zero or less selects the
	// strategy's default.
	OnWrite(ent *types.CacheEntry, now time.Time, ttl time.Duration)
}

var _ Strategy = (*Absolute)(nil)
