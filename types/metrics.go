package types

// This file defines how the cache reports what it is doing.

/*
Metrics is an interface that defines what the cache wants to measure.
Each method represents an event in the cache lifecycle, tagged with the tier
where it happened. The cache calls these methods whenever something happens.
*/
type Metrics interface {

	// Hit is called when a tier returns a valid entry.
	Hit(tier TierName)

	// Miss is called when a tier does NOT hold a valid entry for the key.
	Miss(tier TierName)

	// Eviction is called when a key is removed because the tier is full and needs space.
	Eviction(tier TierName)

	// Expire is called when a key is removed because it has passed its TTL,
	// either on access or by the cleanup sweep.
	Expire(tier TierName)

	// Promotion is called when a value found in a slower tier is copied into tier.
	Promotion(tier TierName)

	// StaleServe is called when the loader failed and a cached value from tier was returned instead.
	StaleServe(tier TierName)

	// Timeout is called when an operation on tier overran its guard duration.
	Timeout(tier TierName)

	// Refresh is called when the refresh hook is triggered.
	Refresh()
}

/*
NoopMetrics is a "do nothing" implementation of Metrics.

Callers that do not care about metrics still get a working cache without
nil checks scattered through the read and write paths.
*/
type NoopMetrics struct{}

func (NoopMetrics) Hit(TierName)        {}
func (NoopMetrics) Miss(TierName)       {}
func (NoopMetrics) Eviction(TierName)   {}
func (NoopMetrics) Expire(TierName)     {}
func (NoopMetrics) Promotion(TierName)  {}
func (NoopMetrics) StaleServe(TierName) {}
func (NoopMetrics) Timeout(TierName)    {}
func (NoopMetrics) Refresh()            {}
