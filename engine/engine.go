package engine

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"github.com/krisalay/tiered-cache/refresh"
	"github.com/krisalay/tiered-cache/types"
)

const (
	// scaleUpTo is the largest requested TTL that the medium tier multiplies.
	scaleUpTo = 15 * time.Minute

	// dayUpTo is the largest requested TTL that maps to one day in the medium tier.
	dayUpTo = time.Hour

	mediumFactor = 5
	day          = 24 * time.Hour
	week         = 7 * day
)

/*
CacheEngine holds the rules that sit on top of the tiers.

It does NOT store data or decide eviction order. It decides:
- How long a value lives in each tier (TTLFor)
- Which tiers a hit is copied into (PromotionTargets)
- That concurrent misses for one key share a single loader call
- How stale serves and promotions are reported
*/
type CacheEngine struct {

	// Refresh is an optional hook invoked when stale data is served because
	// the loader failed. If nil, nothing is triggered.
	Refresh refresh.Hook

	// Metrics records promotions, stale serves and refreshes.
	Metrics types.Metrics

	// Clock is the time source for result timestamps.
	Clock clock.Clock

	// sf prevents multiple goroutines from calling the loader for the same key at once.
	sf singleflight.Group
}

// NewCacheEngine creates a CacheEngine. Nil collaborators get working defaults.
func NewCacheEngine(hook refresh.Hook, metrics types.Metrics, clk clock.Clock) *CacheEngine {
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}
	if clk == nil {
		clk = clock.New()
	}
	return &CacheEngine{
		Refresh: hook,
		Metrics: metrics,
		Clock:   clk,
	}
}

/*
TTLFor maps the TTL a caller asked for onto the TTL a tier stores the value
with. Slower tiers keep data much longer so that it is still there to fall
back on when the loader fails:

	fast:   requested
	medium: 5x requested up to 15m, 24h up to 1h, 7d beyond
	slow:   always 7d
*/
func TTLFor(tier types.TierName, requested time.Duration) time.Duration {
	switch tier {
	case types.TierMedium:
		switch {
		case requested <= scaleUpTo:
			return requested * mediumFactor
		case requested <= dayUpTo:
			return day
		default:
			return week
		}
	case types.TierSlow:
		return week
	default:
		return requested
	}
}

// PromotionTargets returns the tiers faster than found, fastest first.
func PromotionTargets(found types.TierName) []types.TierName {
	var out []types.TierName
	for _, t := range types.Tiers {
		if t == found {
			return out
		}
		out = append(out, t)
	}
	return nil
}

/*
Load calls loader for key. Concurrent calls for the same key while a load is
in flight wait for that load and share its result and error.
*/
func (e *CacheEngine) Load(ctx context.Context, key string, loader types.Loader) (any, error) {
	val, err, _ := e.sf.Do(key, func() (any, error) {
		return loader.Load(ctx, key)
	})
	return val, err
}

// OnPromote records that a value was copied into tier.
func (e *CacheEngine) OnPromote(tier types.TierName) {
	e.Metrics.Promotion(tier)
}

/*
OnStale is called when the loader failed and a cached copy from tier is
served instead. The refresh hook runs on its own goroutine; it must not hold
up the read that is already returning stale data.
*/
func (e *CacheEngine) OnStale(ctx context.Context, key string, tier types.TierName, loadErr error) {
	e.Metrics.StaleServe(tier)

	if e.Refresh != nil {
		e.Metrics.Refresh()
		go e.Refresh.OnStale(context.WithoutCancel(ctx), key, tier, loadErr)
	}
}

// Now returns the engine clock's current time.
func (e *CacheEngine) Now() time.Time {
	return e.Clock.Now()
}
