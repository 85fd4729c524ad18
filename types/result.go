package types

import "time"

// Result is what a cache read returns.
type Result struct {
	Value any

	// FromCache is true when Value came from a tier rather than the loader.
	FromCache bool

	// Timestamp is when the value was written to the tier it was read from,
	// or when it was loaded.
	Timestamp time.Time

	CacheKey string

	// TTL is the time left before the value expires. It is zero when the
	// value is stale data served because the loader failed.
	TTL time.Duration

	// Tier is the tier that answered, empty for a fresh load.
	Tier TierName
}

// GetOptions tune a single cache read.
type GetOptions struct {
	// TTL requested for a freshly loaded value. Zero means the fast tier's default.
	TTL time.Duration

	// ForceRefresh skips the tier lookup and always calls the loader.
	ForceRefresh bool

	// DisableCache bypasses the cache entirely: no lookup, no write and no
	// stale fallback.
	DisableCache bool
}

// GetOption sets a field of GetOptions.
type GetOption func(*GetOptions)
