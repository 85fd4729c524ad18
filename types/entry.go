package types

import "time"

// CacheEntry is one key held by a tier.
//
// SizeBytes is computed once when the entry is written and is the unit of
// account for capacity tracking. Value holds the live payload for the memory
// tier; persistent tiers carry the encoded form in Payload instead.
type CacheEntry struct {
	Key            string
	Value          any
	Payload        []byte
	CreatedAt      time.Time
	LastAccessedAt time.Time
	ExpireAt       time.Time
	AccessCount    int64
	SizeBytes      int64
}

// Expired reports whether the entry is logically absent at now.
// An entry whose expiry is at or before now counts as expired.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpireAt.After(now)
}

// Remaining returns the time left before expiry, or zero once expired.
func (e *CacheEntry) Remaining(now time.Time) time.Duration {
	d := e.ExpireAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Meta returns a copy of the bookkeeping fields without the payload.
// Tiers keep these copies in their index so that accounting never has to
// touch the backend.
func (e *CacheEntry) Meta() *CacheEntry {
	return &CacheEntry{
		Key:            e.Key,
		CreatedAt:      e.CreatedAt,
		LastAccessedAt: e.LastAccessedAt,
		ExpireAt:       e.ExpireAt,
		AccessCount:    e.AccessCount,
		SizeBytes:      e.SizeBytes,
	}
}
