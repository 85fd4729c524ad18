// Package tier implements one level of the cache hierarchy: a
// capacity-bounded key to entry table with lazy expiry, eviction and its own
// statistics.
package tier

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/krisalay/tiered-cache/backend"
	"github.com/krisalay/tiered-cache/codec"
	"github.com/krisalay/tiered-cache/eviction"
	"github.com/krisalay/tiered-cache/expiration"
	"github.com/krisalay/tiered-cache/opqueue"
	"github.com/krisalay/tiered-cache/types"
)

// Options carries the collaborators a tier shares with the rest of the cache.
type Options struct {
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics types.Metrics
}

// removal says why an entry left the tier; it decides which counter moves.
type removal int

const (
	removeDelete removal = iota
	removeEvict
	removeExpire
	removeDrop
)

/*
Tier is one level of the cache.

The tier owns a metadata index (key, size, timestamps, access count) and keeps
the data itself in a Backend. Capacity accounting is done on the index alone,
so deciding what to evict never touches storage.

Every mutation of the index and the backend runs through the tier's
Serializer, one at a time. Reads go straight to the index and the backend;
the only thing a read changes is the access bookkeeping of the entry it hit,
which is guarded by mu.
*/
type Tier struct {
	cfg        Config
	persistent bool

	backend backend.Backend
	queue   opqueue.Serializer
	policy  eviction.Policy
	expiry  expiration.Strategy
	janitor *expiration.Janitor

	clock   clock.Clock
	logger  *slog.Logger
	metrics types.Metrics

	mu    sync.RWMutex
	index map[string]*types.CacheEntry
	bytes int64

	// dirty holds keys whose access bookkeeping changed since it was last persisted.
	dirty map[string]struct{}

	// orphans holds keys that left the index on a read but whose stored
	// record has not been removed yet.
	orphans map[string]struct{}

	stats   counters
	errMu   sync.Mutex
	lastErr string
	lastAt  time.Time

	started atomic.Bool
	closed  atomic.Bool
}

// New builds a tier over be. Writes are serialized through q. Persistent
// backends store encoded payloads; the memory backend stores live values.
func New(cfg Config, be backend.Backend, q opqueue.Serializer, opts Options) (*Tier, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Metrics == nil {
		opts.Metrics = types.NoopMetrics{}
	}

	_, inMemory := be.(*backend.Memory)
	t := &Tier{
		cfg:        cfg,
		persistent: !inMemory,
		backend:    be,
		queue:      q,
		policy:     eviction.NewEvictionPolicy(cfg.EvictionPolicy),
		expiry:     &expiration.Absolute{DefaultTTL: cfg.DefaultTTL},
		clock:      opts.Clock,
		logger:     opts.Logger.With("tier", string(cfg.Name)),
		metrics:    opts.Metrics,
		index:      make(map[string]*types.CacheEntry),
		dirty:      make(map[string]struct{}),
		orphans:    make(map[string]struct{}),
	}
	t.janitor = expiration.NewJanitor(cfg.CleanupInterval, t.clock, t.sweep)
	return t, nil
}

// Name returns the tier's name.
func (t *Tier) Name() types.TierName { return t.cfg.Name }

// Config returns the configuration the tier runs with.
func (t *Tier) Config() Config { return t.cfg }

// Persistent reports whether the tier stores encoded payloads.
func (t *Tier) Persistent() bool { return t.persistent }

/*
Get returns a copy of the entry for key, or false when the key is absent or
expired. A hit updates the entry's access bookkeeping; its expiry never moves.

For persistent tiers Value holds the payload as json.RawMessage.
*/
func (t *Tier) Get(ctx context.Context, key string) (*types.CacheEntry, bool) {
	start := t.clock.Now()
	defer t.observeRead(start, "get", key)

	if t.closed.Load() {
		t.miss()
		return nil, false
	}

	t.mu.RLock()
	meta, ok := t.index[key]
	expired := ok && t.expiry.IsExpired(meta, start)
	t.mu.RUnlock()

	if !ok {
		t.miss()
		return nil, false
	}
	if expired {
		t.expireNow(key, start)
		t.miss()
		return nil, false
	}

	stored, err := t.backend.Read(ctx, key)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			t.recordError("get", err)
		}
		t.dropLater(key)
		t.miss()
		return nil, false
	}

	t.mu.Lock()
	meta, ok = t.index[key]
	if !ok || t.expiry.IsExpired(meta, start) {
		t.mu.Unlock()
		t.miss()
		return nil, false
	}
	t.expiry.OnAccess(meta, start)
	if t.persistent {
		t.dirty[key] = struct{}{}
	}
	out := meta.Meta()
	t.mu.Unlock()

	if t.persistent {
		out.Payload = stored.Payload
		out.Value = json.RawMessage(stored.Payload)
	} else {
		out.Value = stored.Value
	}

	t.stats.hits.Add(1)
	t.metrics.Hit(t.cfg.Name)
	return out, true
}

// Has reports whether key holds an unexpired entry. It does not count as an
// access.
func (t *Tier) Has(ctx context.Context, key string) bool {
	if t.closed.Load() {
		return false
	}
	now := t.clock.Now()

	t.mu.RLock()
	meta, ok := t.index[key]
	expired := ok && t.expiry.IsExpired(meta, now)
	t.mu.RUnlock()

	if expired {
		t.expireNow(key, now)
		return false
	}
	return ok
}

/*
Set writes value under key with the given TTL (zero or less means the tier's
default). Expired entries are purged first and then the eviction policy makes
room; if the entry cannot fit even in an empty tier the write fails with
types.ErrCapacity and any previous entry for key is removed.

A failing Set never panics. The error is also recorded in the tier's stats.
*/
func (t *Tier) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	start := t.clock.Now()
	defer t.observeWrite(start, "set", key)

	if t.closed.Load() {
		return types.ErrClosed
	}

	ent := &types.CacheEntry{Key: key}
	if t.persistent {
		payload, err := encodePayload(key, value)
		if err != nil {
			t.recordError("set", err)
			return err
		}
		ent.Payload = payload
		ent.SizeBytes = codec.Size(key, payload)
	} else {
		ent.Value = value
		ent.SizeBytes = codec.EstimateSize(key, value)
	}

	opCtx := context.WithoutCancel(ctx)
	return t.queue.Do(ctx, func() error {
		return t.write(opCtx, ent, ttl)
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (t *Tier) Delete(ctx context.Context, key string) error {
	start := t.clock.Now()
	defer t.observeWrite(start, "delete", key)

	if t.closed.Load() {
		return types.ErrClosed
	}

	opCtx := context.WithoutCancel(ctx)
	return t.queue.Do(ctx, func() error {
		return t.remove(opCtx, key, removeDelete)
	})
}

// Clear removes every entry and resets the counters.
func (t *Tier) Clear(ctx context.Context) error {
	if t.closed.Load() {
		return types.ErrClosed
	}

	opCtx := context.WithoutCancel(ctx)
	return t.queue.Do(ctx, func() error {
		if err := t.backend.Purge(opCtx); err != nil {
			t.recordError("clear", err)
			return err
		}

		t.mu.Lock()
		t.index = make(map[string]*types.CacheEntry)
		t.dirty = make(map[string]struct{})
		t.orphans = make(map[string]struct{})
		t.bytes = 0
		t.mu.Unlock()

		t.stats.reset()
		t.errMu.Lock()
		t.lastErr, t.lastAt = "", time.Time{}
		t.errMu.Unlock()

		t.logger.Info("tier cleared")
		return nil
	})
}

/*
Cleanup removes every expired entry and persists pending access bookkeeping.
It returns the number of entries removed. The background janitor calls it on
the configured interval; calling it directly is safe and sweeps never overlap.
*/
func (t *Tier) Cleanup(ctx context.Context) (int, error) {
	ran, removed, err := t.janitor.RunOnce(ctx)
	if !ran {
		return 0, nil
	}
	return removed, err
}

func (t *Tier) sweep(ctx context.Context) (int, error) {
	if t.closed.Load() {
		return 0, nil
	}

	var removed int
	opCtx := context.WithoutCancel(ctx)
	err := t.queue.Do(ctx, func() error {
		removed = t.purgeExpired(opCtx, t.clock.Now(), "")
		return errors.Join(t.removeOrphans(opCtx), t.checkpoint(opCtx))
	})
	if removed > 0 {
		t.logger.Info("cleanup removed expired entries", "removed", removed)
	}
	return removed, err
}

/*
Init rebuilds the index from the backend and starts the cleanup schedule.

Records that have already expired are removed instead of indexed. When the
rebuilt tier is over its limits (for example because the limits were lowered
between runs) the eviction policy trims it back. Init on a started tier only
makes sure the schedule is running.
*/
func (t *Tier) Init(ctx context.Context) error {
	if t.closed.Load() {
		return types.ErrClosed
	}
	if !t.started.CompareAndSwap(false, true) {
		return nil
	}

	if t.persistent {
		opCtx := context.WithoutCancel(ctx)
		err := t.queue.Do(ctx, func() error {
			return t.rebuild(opCtx)
		})
		if err != nil {
			t.started.Store(false)
			t.recordError("init", err)
			return err
		}
	}

	t.janitor.Start(context.Background())

	t.mu.RLock()
	entries, size := len(t.index), t.bytes
	t.mu.RUnlock()
	t.logger.Info("tier ready", "entries", entries, "size", size)
	return nil
}

func (t *Tier) rebuild(ctx context.Context) error {
	now := t.clock.Now()
	var stale []string

	index := make(map[string]*types.CacheEntry)
	var size int64
	err := t.backend.Scan(ctx, func(ent *types.CacheEntry) error {
		if t.expiry.IsExpired(ent, now) {
			stale = append(stale, ent.Key)
			return nil
		}
		index[ent.Key] = ent.Meta()
		size += ent.SizeBytes
		return nil
	})
	if err != nil {
		return err
	}

	for _, key := range stale {
		if err := t.backend.Remove(ctx, key); err != nil {
			t.recordError("init", err)
		}
	}

	t.mu.Lock()
	for key, meta := range t.index {
		if _, ok := index[key]; !ok {
			index[key] = meta
			size += meta.SizeBytes
		}
	}
	t.index = index
	t.bytes = size
	t.mu.Unlock()

	t.enforceLimits(ctx, "")
	return nil
}

/*
Close stops the cleanup schedule, persists pending access bookkeeping, drains
the write queue and closes the backend. Operations after Close fail with
types.ErrClosed or report a miss.
*/
func (t *Tier) Close(ctx context.Context) error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.janitor.Stop()

	var errs []error
	if t.persistent {
		opCtx := context.WithoutCancel(ctx)
		err := t.queue.Do(ctx, func() error {
			return errors.Join(t.removeOrphans(opCtx), t.checkpoint(opCtx))
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	t.queue.Close()
	if err := t.backend.Close(); err != nil {
		errs = append(errs, err)
	}

	t.logger.Info("tier closed")
	return errors.Join(errs...)
}

// write runs on the serializer.
func (t *Tier) write(ctx context.Context, ent *types.CacheEntry, ttl time.Duration) error {
	now := t.clock.Now()
	t.expiry.OnWrite(ent, now, ttl)

	limits := t.cfg.limits()

	// Expired entries are purged and candidates ranked only when the entry
	// does not fit as things stand.
	var victims []string
	ok := true
	usage, replacing := t.usageWithout(ent.Key)
	if !limits.Fits(usage, 1, ent.SizeBytes) {
		t.purgeExpired(ctx, now, ent.Key)

		t.mu.RLock()
		usage, replacing = t.usageWithoutLocked(ent.Key)
		cands := t.candidatesLocked(ent.Key)
		t.mu.RUnlock()

		victims, ok = eviction.Plan(t.policy, cands, limits, usage, 1, ent.SizeBytes)
	}
	if !ok {
		if replacing {
			_ = t.remove(ctx, ent.Key, removeDrop)
		}
		err := types.CapacityError(t.cfg.Name, ent.Key, ent.SizeBytes)
		t.recordError("set", err)
		return err
	}
	for _, key := range victims {
		if err := t.remove(ctx, key, removeEvict); err != nil {
			t.recordError("evict", err)
		}
	}

	if err := t.backend.Write(ctx, ent); err != nil {
		if replacing {
			_ = t.remove(ctx, ent.Key, removeDrop)
		}
		t.recordError("set", err)
		return err
	}

	t.mu.Lock()
	if prev, ok := t.index[ent.Key]; ok {
		t.bytes -= prev.SizeBytes
	}
	t.index[ent.Key] = ent.Meta()
	t.bytes += ent.SizeBytes
	delete(t.dirty, ent.Key)
	t.mu.Unlock()
	t.stats.writes.Add(1)

	// Safety net: the store must never be left above its limits.
	t.enforceLimits(ctx, ent.Key)
	return nil
}

// enforceLimits evicts until the tier is within its limits, never choosing keep.
func (t *Tier) enforceLimits(ctx context.Context, keep string) {
	limits := t.cfg.limits()

	t.mu.RLock()
	usage := eviction.Usage{Entries: len(t.index), Bytes: t.bytes}
	if limits.Fits(usage, 0, 0) {
		t.mu.RUnlock()
		return
	}
	cands := t.candidatesLocked(keep)
	t.mu.RUnlock()

	victims, _ := eviction.Plan(t.policy, cands, limits, usage, 0, 0)
	for _, key := range victims {
		if err := t.remove(ctx, key, removeEvict); err != nil {
			t.recordError("evict", err)
		}
	}
}

// purgeExpired removes expired entries other than skip and returns how many
// were removed. It runs on the serializer.
func (t *Tier) purgeExpired(ctx context.Context, now time.Time, skip string) int {
	t.mu.RLock()
	var expired []string
	for key, meta := range t.index {
		if key != skip && t.expiry.IsExpired(meta, now) {
			expired = append(expired, key)
		}
	}
	t.mu.RUnlock()

	for _, key := range expired {
		if err := t.remove(ctx, key, removeExpire); err != nil {
			t.recordError("cleanup", err)
		}
	}
	return len(expired)
}

// remove deletes key from the backend and the index. It runs on the
// serializer. The index entry is dropped even when the backend fails, so the
// tier never serves an entry it could not delete.
func (t *Tier) remove(ctx context.Context, key string, why removal) error {
	err := t.backend.Remove(ctx, key)

	t.mu.Lock()
	meta, ok := t.index[key]
	if ok {
		delete(t.index, key)
		delete(t.dirty, key)
		t.bytes -= meta.SizeBytes
	}
	t.mu.Unlock()

	if ok {
		switch why {
		case removeDelete:
			t.stats.deletes.Add(1)
		case removeEvict:
			t.stats.evictions.Add(1)
			t.metrics.Eviction(t.cfg.Name)
			t.logger.Debug("evicted entry", "key", key, "size", meta.SizeBytes)
		case removeExpire:
			t.stats.expirations.Add(1)
			t.metrics.Expire(t.cfg.Name)
		}
	}
	return err
}

/*
expireNow removes an entry a read found expired. The index entry and its
accounting go at once, under mu, so the read returns with the tier already
reflecting the removal. Removing the stored record is queued on the
serializer; if the queue is full the key stays in orphans and the next
cleanup sweep or Close removes the record.
*/
func (t *Tier) expireNow(key string, now time.Time) {
	t.mu.Lock()
	meta, ok := t.index[key]
	if !ok || !t.expiry.IsExpired(meta, now) {
		t.mu.Unlock()
		return
	}
	delete(t.index, key)
	delete(t.dirty, key)
	t.bytes -= meta.SizeBytes
	t.orphans[key] = struct{}{}
	t.mu.Unlock()

	t.stats.expirations.Add(1)
	t.metrics.Expire(t.cfg.Name)

	ctx := context.Background()
	t.queue.Submit(func() error {
		return t.removeOrphans(ctx)
	}, t.submitErr("expire"))
}

// removeOrphans deletes the stored records of keys that left the index on a
// read. A key written again since then owns its record and is skipped. It
// runs on the serializer.
func (t *Tier) removeOrphans(ctx context.Context) error {
	t.mu.Lock()
	if len(t.orphans) == 0 {
		t.mu.Unlock()
		return nil
	}
	keys := make([]string, 0, len(t.orphans))
	for key := range t.orphans {
		if _, live := t.index[key]; !live {
			keys = append(keys, key)
		}
	}
	t.orphans = make(map[string]struct{})
	t.mu.Unlock()

	var errs []error
	for _, key := range keys {
		if err := t.backend.Remove(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// dropLater removes an index entry whose data is no longer readable.
func (t *Tier) dropLater(key string) {
	ctx := context.Background()
	t.queue.Submit(func() error {
		if _, err := t.backend.Read(ctx, key); err == nil {
			return nil
		}
		return t.remove(ctx, key, removeDrop)
	}, t.submitErr("drop"))
}

func (t *Tier) submitErr(op string) func(error) {
	return func(err error) {
		if errors.Is(err, types.ErrClosed) {
			return
		}
		t.recordError(op, err)
	}
}

// checkpoint writes access bookkeeping gathered by reads back to the backend.
// It runs on the serializer.
func (t *Tier) checkpoint(ctx context.Context) error {
	t.mu.Lock()
	pending := make([]*types.CacheEntry, 0, len(t.dirty))
	for key := range t.dirty {
		if meta, ok := t.index[key]; ok {
			pending = append(pending, meta.Meta())
		}
	}
	t.dirty = make(map[string]struct{})
	t.mu.Unlock()

	var errs []error
	for _, meta := range pending {
		stored, err := t.backend.Read(ctx, meta.Key)
		if err != nil {
			if !errors.Is(err, types.ErrNotFound) {
				errs = append(errs, err)
			}
			continue
		}
		stored.LastAccessedAt = meta.LastAccessedAt
		stored.AccessCount = meta.AccessCount
		if err := t.backend.Write(ctx, stored); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		t.recordError("checkpoint", err)
		return err
	}
	return nil
}

// usageWithout reports the tier's usage as if key were not stored, and
// whether it is.
func (t *Tier) usageWithout(key string) (eviction.Usage, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.usageWithoutLocked(key)
}

func (t *Tier) usageWithoutLocked(key string) (eviction.Usage, bool) {
	usage := eviction.Usage{Entries: len(t.index), Bytes: t.bytes}
	old, ok := t.index[key]
	if ok {
		usage.Entries--
		usage.Bytes -= old.SizeBytes
	}
	return usage, ok
}

func (t *Tier) candidatesLocked(skip string) []eviction.Candidate {
	cands := make([]eviction.Candidate, 0, len(t.index))
	for key, meta := range t.index {
		if key == skip {
			continue
		}
		cands = append(cands, eviction.Candidate{
			Key:          key,
			LastAccessed: meta.LastAccessedAt,
			CreatedAt:    meta.CreatedAt,
			AccessCount:  meta.AccessCount,
			SizeBytes:    meta.SizeBytes,
		})
	}
	return cands
}

func (t *Tier) miss() {
	t.stats.misses.Add(1)
	t.metrics.Miss(t.cfg.Name)
}

func (t *Tier) recordError(op string, err error) {
	t.stats.errors.Add(1)

	t.errMu.Lock()
	t.lastErr = err.Error()
	t.lastAt = t.clock.Now()
	t.errMu.Unlock()

	t.logger.Warn("tier operation failed", "op", op, "error", err)
}

// encodePayload keeps payloads that are already encoded as they are.
func encodePayload(key string, value any) ([]byte, error) {
	if raw, ok := value.(json.RawMessage); ok && json.Valid(raw) {
		return raw, nil
	}
	return codec.Encode(key, value)
}
