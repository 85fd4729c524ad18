package expiration

import (
	"time"

	"github.com/krisalay/tiered-cache/types"
)

/*
Absolute implements fixed expiry: the deadline is decided once, when the entry
is written, and reads never move it. Reads only update the access bookkeeping
that eviction ranks on.
*/
type Absolute struct {

	// DefaultTTL applies when a write does not ask for a TTL.
	DefaultTTL time.Duration
}

// IsExpired reports whether the entry's expiry is at or before now.
// An expired entry is logically absent even while it is still stored.
func (a *Absolute) IsExpired(ent *types.CacheEntry, now time.Time) bool {
	return ent.Expired(now)
}

// OnAccess records a read. The expiry is left untouched.
func (a *Absolute) OnAccess(ent *types.CacheEntry, now time.Time) {
	ent.LastAccessedAt = now
	ent.AccessCount++
}

/*
OnWrite initialises a fresh entry. A write always replaces whatever was stored
before, so access bookkeeping starts from zero.
*/
func (a *Absolute) OnWrite(ent *types.CacheEntry, now time.Time, ttl time.Duration) {
	if ttl <= 0 {
		ttl = a.DefaultTTL
	}
	ent.CreatedAt = now
	ent.LastAccessedAt = now
	ent.AccessCount = 0
	ent.ExpireAt = now.Add(ttl)
}
