package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"
	"golang.org/x/sync/errgroup"

	"github.com/krisalay/tiered-cache/api"
	"github.com/krisalay/tiered-cache/backend"
	"github.com/krisalay/tiered-cache/config"
	"github.com/krisalay/tiered-cache/engine"
	"github.com/krisalay/tiered-cache/metrics"
	"github.com/krisalay/tiered-cache/tier"
	"github.com/krisalay/tiered-cache/types"
)

const (
	mediumDir = "medium"
	slowDir   = "slow"
)

/*
TieredCache is the main cache implementation.
This struct is the orchestrator that connects:
- the fast, medium and slow tiers
- promotion and TTL scaling (engine)
- loader deduplication
- stale fallback and the refresh hook
- metrics and logging
*/
type TieredCache struct {
	// tiers are ordered fastest first. This is the lookup order.
	tiers  []*tier.Tier
	byName map[types.TierName]*tier.Tier

	// engine contains the "rules" of the cache: TTL scaling, promotion
	// targets, loader deduplication and stale reporting.
	engine *engine.CacheEngine

	logger *slog.Logger
	clock  clock.Clock

	// pending tracks background promotions so Close can wait for them.
	// promoMu orders pending.Add against the closed flag.
	promoMu sync.RWMutex
	pending sync.WaitGroup
	closed  bool
}

var _ api.Cache = (*TieredCache)(nil)

/*
New builds a cache from cfg. A nil cfg uses config.Default().

The persistent tiers are created under cfg.Storage.Dir on the local disk, or
on an in-memory filesystem when cfg.Storage.Backend is "memory". WithFS
overrides both. Call Init before use to load what earlier runs persisted.
*/
func New(cfg *config.Config, opts ...Option) (*TieredCache, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{
		clock:   clock.New(),
		logger:  slog.New(slog.DiscardHandler),
		metrics: types.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	mediumFS, slowFS, err := storageFS(cfg.Storage, o.fs)
	if err != nil {
		return nil, err
	}

	tierOpts := tier.Options{Clock: o.clock, Logger: o.logger, Metrics: o.metrics}

	fast, err := tier.NewFast(cfg.TierConfig(types.TierFast), tierOpts)
	if err != nil {
		return nil, err
	}
	medium, err := tier.NewMedium(cfg.TierConfig(types.TierMedium), mediumFS, mediumDir, tierOpts)
	if err != nil {
		_ = fast.Close(context.Background())
		return nil, err
	}
	slow, err := tier.NewSlow(cfg.TierConfig(types.TierSlow), slowFS, slowDir, tierOpts)
	if err != nil {
		_ = fast.Close(context.Background())
		_ = medium.Close(context.Background())
		return nil, err
	}

	c := &TieredCache{
		tiers:  []*tier.Tier{fast, medium, slow},
		byName: map[types.TierName]*tier.Tier{types.TierFast: fast, types.TierMedium: medium, types.TierSlow: slow},
		engine: engine.NewCacheEngine(o.hook, o.metrics, o.clock),
		logger: o.logger,
		clock:  o.clock,
	}

	if b, ok := o.metrics.(interface{ Bind(metrics.StatsFunc) }); ok {
		b.Bind(c.TierStats)
	}
	return c, nil
}

/*
storageFS returns the filesystems of the medium and slow tiers.

A filesystem passed with WithFS is shared by both tiers behind one lock unless
it is the local disk. The "memory" backend gives each tier its own in-memory
filesystem, so the two tiers' writers never contend.
*/
func storageFS(s config.StorageConfig, override core.FS) (medium, slow core.FS, err error) {
	if override != nil {
		if override.Type() != core.FSTypeLocal {
			override = backend.Synchronized(override)
		}
		return override, override, nil
	}

	if s.Backend == config.StorageMemory {
		return billy.NewMemory(), billy.NewMemory(), nil
	}

	dir, err := filepath.Abs(s.Dir)
	if err != nil {
		return nil, nil, types.BackendError("storage", "init", err)
	}
	local := billy.NewLocal()
	if err := local.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, types.BackendError("storage", "init", err)
	}
	fsys, err := local.Chroot(dir)
	if err != nil {
		return nil, nil, types.BackendError("storage", "init", err)
	}
	return fsys, fsys, nil
}

// Init loads persisted entries into the persistent tiers and starts the
// cleanup schedules. Tiers initialise concurrently.
func (c *TieredCache) Init(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range c.tiers {
		g.Go(func() error {
			if err := t.Init(gctx); err != nil {
				return fmt.Errorf("init %s tier: %w", t.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.logger.Info("cache ready")
	return nil
}

// Close waits for background promotions and then closes every tier.
func (c *TieredCache) Close(ctx context.Context) error {
	c.promoMu.Lock()
	if c.closed {
		c.promoMu.Unlock()
		return nil
	}
	c.closed = true
	c.promoMu.Unlock()
	c.pending.Wait()

	var g errgroup.Group
	for _, t := range c.tiers {
		g.Go(func() error {
			if err := t.Close(ctx); err != nil {
				return fmt.Errorf("close %s tier: %w", t.Name(), err)
			}
			return nil
		})
	}
	err := g.Wait()

	c.logger.Info("cache closed")
	return err
}

/*
Get retrieves the value for key, loading it through loader on a miss.

Persistent tiers return their values as json.RawMessage; use the generic
Get function for typed results.
*/
func (c *TieredCache) Get(ctx context.Context, key string, loader types.Loader, opts ...types.GetOption) (types.Result, error) {
	o := c.getOptions(opts)

	if !o.DisableCache && !o.ForceRefresh {
		for _, t := range c.tiers {
			ent, ok := t.Get(ctx, key)
			if !ok {
				continue
			}
			c.logger.Debug("cache hit", "tier", string(t.Name()), "key", key)
			c.promote(ctx, key, t.Name(), ent.Value, o.TTL)

			return types.Result{
				Value:     ent.Value,
				FromCache: true,
				Timestamp: ent.CreatedAt,
				CacheKey:  key,
				TTL:       ent.Remaining(c.clock.Now()),
				Tier:      t.Name(),
			}, nil
		}
		c.logger.Debug("cache miss", "key", key)
	}

	val, err := c.engine.Load(ctx, key, loader)
	if err != nil {
		if !o.DisableCache {
			if res, ok := c.stale(ctx, key, err); ok {
				return res, nil
			}
		}
		return types.Result{CacheKey: key}, err
	}

	if !o.DisableCache && val != nil {
		c.fanOut(ctx, key, val, o.TTL)
	}

	return types.Result{
		Value:     val,
		FromCache: false,
		Timestamp: c.engine.Now(),
		CacheKey:  key,
		TTL:       o.TTL,
	}, nil
}

func (c *TieredCache) getOptions(opts []types.GetOption) types.GetOptions {
	var o types.GetOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.TTL <= 0 {
		o.TTL = c.tiers[0].Config().DefaultTTL
	}
	return o
}

/*
promote copies a value found in tier found into every faster tier. The
source tier keeps its copy. The fast tier is written before the read returns
so the very next read is served from memory; writes to the medium tier run in
the background. Failures are logged and never reach the caller.
*/
func (c *TieredCache) promote(ctx context.Context, key string, found types.TierName, value any, requested time.Duration) {
	for _, name := range engine.PromotionTargets(found) {
		target := c.byName[name]
		ttl := engine.TTLFor(name, requested)

		if name == types.TierFast {
			c.promoteTo(ctx, target, key, value, ttl, found)
			continue
		}

		c.promoMu.RLock()
		if c.closed {
			c.promoMu.RUnlock()
			continue
		}
		c.pending.Add(1)
		c.promoMu.RUnlock()

		go func() {
			defer c.pending.Done()
			c.promoteTo(context.WithoutCancel(ctx), target, key, value, ttl, found)
		}()
	}
}

func (c *TieredCache) promoteTo(ctx context.Context, target *tier.Tier, key string, value any, ttl time.Duration, from types.TierName) {
	if err := target.Set(ctx, key, value, ttl); err != nil {
		c.logger.Warn("promotion failed", "key", key, "from", string(from), "tier", string(target.Name()), "error", err)
		return
	}
	c.engine.OnPromote(target.Name())
	c.logger.Debug("promoted entry", "key", key, "from", string(from), "tier", string(target.Name()))
}

// fanOut writes a value to every tier with its scaled TTL and reports how
// many tiers failed. Failures are logged.
func (c *TieredCache) fanOut(ctx context.Context, key string, value any, requested time.Duration) []error {
	errs := make([]error, len(c.tiers))

	var g errgroup.Group
	for i, t := range c.tiers {
		g.Go(func() error {
			if err := t.Set(ctx, key, value, engine.TTLFor(t.Name(), requested)); err != nil {
				c.logger.Warn("cache write failed", "tier", string(t.Name()), "key", key, "error", err)
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// stale looks for any copy of key in the medium and slow tiers after the
// loader failed.
func (c *TieredCache) stale(ctx context.Context, key string, loadErr error) (types.Result, bool) {
	for _, name := range []types.TierName{types.TierMedium, types.TierSlow} {
		ent, ok := c.byName[name].Get(ctx, key)
		if !ok {
			continue
		}

		c.logger.Warn("loader failed, serving stale data", "tier", string(name), "key", key, "error", loadErr)
		c.engine.OnStale(ctx, key, name, loadErr)
		return types.Result{
			Value:     ent.Value,
			FromCache: true,
			Timestamp: ent.CreatedAt,
			CacheKey:  key,
			TTL:       0,
			Tier:      name,
		}, true
	}
	return types.Result{}, false
}

/*
Set writes value to every tier. ttl is the fast-tier TTL (zero for the
default); slower tiers scale it like a loaded value.

A tier that rejects the value (too large, not encodable) is skipped and
logged. Set returns an error only when no tier accepted the value.
*/
func (c *TieredCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.tiers[0].Config().DefaultTTL
	}

	errs := c.fanOut(ctx, key, value, ttl)
	for _, err := range errs {
		if err == nil {
			return nil
		}
	}
	return errors.Join(errs...)
}

// Delete removes key from every tier.
func (c *TieredCache) Delete(ctx context.Context, key string) error {
	var errs []error
	for _, t := range c.tiers {
		if err := t.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("%s tier: %w", t.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Has reports whether any tier holds an unexpired value for key.
func (c *TieredCache) Has(ctx context.Context, key string) bool {
	for _, t := range c.tiers {
		if t.Has(ctx, key) {
			return true
		}
	}
	return false
}

// Clear empties every tier and resets their counters.
func (c *TieredCache) Clear(ctx context.Context) error {
	var errs []error
	for _, t := range c.tiers {
		if err := t.Clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s tier: %w", t.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Cleanup sweeps expired entries from every tier now, instead of waiting for
// the schedule. It returns the number of entries removed.
func (c *TieredCache) Cleanup(ctx context.Context) (int, error) {
	var (
		total int
		errs  []error
	)
	for _, t := range c.tiers {
		n, err := t.Cleanup(ctx)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("%s tier: %w", t.Name(), err))
		}
	}
	return total, errors.Join(errs...)
}

// Tier returns the named tier.
func (c *TieredCache) Tier(name types.TierName) *tier.Tier {
	return c.byName[name]
}

// Engine returns the rules engine shared by the tiers.
func (c *TieredCache) Engine() *engine.CacheEngine {
	return c.engine
}
