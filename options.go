package cache

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jmgilman/go/fs/core"

	"github.com/krisalay/tiered-cache/refresh"
	"github.com/krisalay/tiered-cache/types"
)

type options struct {
	logger  *slog.Logger
	metrics types.Metrics
	clock   clock.Clock
	hook    refresh.Hook
	fs      core.FS
}

// Option configures a TieredCache.
type Option func(*options)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets where cache events are reported. A *metrics.Collector is
// also bound to the cache's tier stats.
func WithMetrics(m types.Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithClock sets the time source, mostly for tests.
func WithClock(clk clock.Clock) Option {
	return func(o *options) {
		if clk != nil {
			o.clock = clk
		}
	}
}

// WithRefreshHook sets the hook called when stale data is served.
func WithRefreshHook(h refresh.Hook) Option {
	return func(o *options) { o.hook = h }
}

// WithFS sets the filesystem the persistent tiers store their records in,
// overriding the storage configuration. Both tiers share fsys; unless it is
// the local disk its calls are serialized with backend.Synchronized.
func WithFS(fsys core.FS) Option {
	return func(o *options) { o.fs = fsys }
}

// WithTTL requests a TTL for a loaded value. Slower tiers scale it.
func WithTTL(ttl time.Duration) types.GetOption {
	return func(o *types.GetOptions) { o.TTL = ttl }
}

// WithForceRefresh skips the tier lookup and always calls the loader. Stale
// data is still served if the loader fails.
func WithForceRefresh() types.GetOption {
	return func(o *types.GetOptions) { o.ForceRefresh = true }
}

// WithCacheDisabled calls the loader without reading or writing any tier.
func WithCacheDisabled() types.GetOption {
	return func(o *types.GetOptions) { o.DisableCache = true }
}
