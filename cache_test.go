package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	cache "github.com/krisalay/tiered-cache"
	"github.com/krisalay/tiered-cache/config"
	"github.com/krisalay/tiered-cache/metrics"
	"github.com/krisalay/tiered-cache/refresh"
	"github.com/krisalay/tiered-cache/types"
)

//
// ================= TEST LOADER =================
//

// TestSource stands in for the remote API behind the cache.
type TestSource struct {
	mu    sync.Mutex
	data  map[string]any
	err   error
	calls atomic.Int32
}

func NewTestSource() *TestSource {
	return &TestSource{data: make(map[string]any)}
}

func (s *TestSource) Load(ctx context.Context, key string) (any, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.data[key], nil
}

func (s *TestSource) Put(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *TestSource) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

//
// ================= HELPER: CREATE CACHE =================
//

var epoch = time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)

func newMock() *clock.Mock {
	mock := clock.NewMock()
	mock.Set(epoch)
	return mock
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.Backend = config.StorageMemory
	cfg.Fast.CleanupInterval = 0
	cfg.Medium.CleanupInterval = 0
	cfg.Slow.CleanupInterval = 0
	return cfg
}

func newTestCache(t *testing.T, mock *clock.Mock, opts ...cache.Option) *cache.TieredCache {
	t.Helper()
	opts = append([]cache.Option{cache.WithClock(mock)}, opts...)

	c, err := cache.New(testConfig(), opts...)
	require.NoError(t, err)
	require.NoError(t, c.Init(context.Background()))
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func tierHas(ctx context.Context, c *cache.TieredCache, name types.TierName, key string) bool {
	return c.Tier(name).Has(ctx, key)
}

//
// ================= READ-THROUGH =================
//

func TestGet_LoadsThenServesFromFastTier(t *testing.T) {
	ctx := context.Background()
	mock := newMock()
	c := newTestCache(t, mock)
	src := NewTestSource()
	src.Put("AAPL", "187.50")

	res, err := c.Get(ctx, "AAPL", src)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, "187.50", res.Value)
	assert.Equal(t, "AAPL", res.CacheKey)
	assert.Equal(t, 5*time.Minute, res.TTL)
	assert.Equal(t, epoch, res.Timestamp)

	for _, name := range types.Tiers {
		assert.True(t, tierHas(ctx, c, name, "AAPL"), "loaded value fans out to %s", name)
	}

	mock.Add(time.Minute)
	res, err = c.Get(ctx, "AAPL", src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, types.TierFast, res.Tier)
	assert.Equal(t, "187.50", res.Value)
	assert.Equal(t, 4*time.Minute, res.TTL)
	assert.Equal(t, epoch, res.Timestamp)
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestGet_ScalesTTLPerTier(t *testing.T) {
	ctx := context.Background()
	mock := newMock()
	c := newTestCache(t, mock)
	src := NewTestSource()
	src.Put("k", 1)

	_, err := c.Get(ctx, "k", src, cache.WithTTL(10*time.Minute))
	require.NoError(t, err)

	want := map[types.TierName]time.Duration{
		types.TierFast:   10 * time.Minute,
		types.TierMedium: 50 * time.Minute,
		types.TierSlow:   7 * 24 * time.Hour,
	}
	for name, ttl := range want {
		ent, ok := c.Tier(name).Get(ctx, "k")
		require.True(t, ok)
		assert.Equal(t, epoch.Add(ttl), ent.ExpireAt, name)
	}
}

func TestGet_NilValueIsNotCached(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newMock())
	src := NewTestSource()

	res, err := c.Get(ctx, "unknown", src)
	require.NoError(t, err)
	assert.Nil(t, res.Value)
	assert.False(t, c.Has(ctx, "unknown"))
}

//
// ================= PROMOTION =================
//

func TestGet_PromotesFromSlowTier(t *testing.T) {
	ctx := context.Background()
	mock := newMock()
	c := newTestCache(t, mock)
	src := NewTestSource()

	require.NoError(t, c.Tier(types.TierSlow).Set(ctx, "MSFT", map[string]any{"price": 410}, 0))

	res, err := c.Get(ctx, "MSFT", src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, types.TierSlow, res.Tier)
	assert.JSONEq(t, `{"price":410}`, string(res.Value.(json.RawMessage)))

	res, err = c.Get(ctx, "MSFT", src)
	require.NoError(t, err)
	assert.Equal(t, types.TierFast, res.Tier, "next read is served from memory")
	assert.Zero(t, src.calls.Load())

	assert.Eventually(t, func() bool {
		return tierHas(ctx, c, types.TierMedium, "MSFT")
	}, time.Second, time.Millisecond)
	assert.True(t, tierHas(ctx, c, types.TierSlow, "MSFT"), "promotion copies up and keeps the source")
}

func TestGet_PromotesFromMediumIntoFastOnly(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newMock())
	src := NewTestSource()

	require.NoError(t, c.Tier(types.TierMedium).Set(ctx, "k", "v", time.Hour))

	res, err := c.Get(ctx, "k", src, cache.WithTTL(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, types.TierMedium, res.Tier)

	ent, ok := c.Tier(types.TierFast).Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, epoch.Add(2*time.Minute), ent.ExpireAt)
	assert.True(t, tierHas(ctx, c, types.TierMedium, "k"))
	assert.False(t, tierHas(ctx, c, types.TierSlow, "k"))
}

//
// ================= STALE FALLBACK =================
//

// A plain Get answers from any tier holding an unexpired entry before calling
// the loader, so the stale path is only reached when the caller forces a
// refresh over a persistent tier that still holds the key.
func TestGet_ServesStaleDataWhenLoaderFails(t *testing.T) {
	ctx := context.Background()
	mock := newMock()

	hooked := make(chan types.TierName, 1)
	hook := refresh.Func(func(ctx context.Context, key string, tier types.TierName, loadErr error) {
		hooked <- tier
	})
	c := newTestCache(t, mock, cache.WithRefreshHook(hook))

	src := NewTestSource()
	src.Put("GOOG", "172.10")
	_, err := c.Get(ctx, "GOOG", src, cache.WithTTL(time.Minute))
	require.NoError(t, err)

	mock.Add(2 * time.Minute)
	src.Fail(errors.New("upstream rate limited"))

	res, err := c.Get(ctx, "GOOG", src, cache.WithForceRefresh())
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Zero(t, res.TTL, "stale data carries no TTL")
	assert.Equal(t, types.TierMedium, res.Tier)
	assert.JSONEq(t, `"172.10"`, string(res.Value.(json.RawMessage)))

	select {
	case tier := <-hooked:
		assert.Equal(t, types.TierMedium, tier)
	case <-time.After(time.Second):
		t.Fatal("refresh hook not called")
	}
}

func TestGet_FallsBackToSlowTier(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newMock())
	require.NoError(t, c.Tier(types.TierSlow).Set(ctx, "k", "old", 0))

	src := NewTestSource()
	src.Fail(errors.New("down"))

	res, err := c.Get(ctx, "k", src, cache.WithForceRefresh())
	require.NoError(t, err)
	assert.Equal(t, types.TierSlow, res.Tier)
	assert.Zero(t, res.TTL)
}

func TestGet_LoaderErrorPropagatesUnchanged(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newMock())

	boom := errors.New("quote service unavailable")
	src := NewTestSource()
	src.Fail(boom)

	res, err := c.Get(ctx, "nothing-cached", src)
	assert.Same(t, boom, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, "nothing-cached", res.CacheKey)
}

//
// ================= OPTIONS =================
//

func TestGet_CacheDisabled(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newMock())
	src := NewTestSource()
	src.Put("k", "v")

	for i := 0; i < 3; i++ {
		res, err := c.Get(ctx, "k", src, cache.WithCacheDisabled())
		require.NoError(t, err)
		assert.False(t, res.FromCache)
	}
	assert.EqualValues(t, 3, src.calls.Load())
	assert.False(t, c.Has(ctx, "k"))

	src.Fail(errors.New("down"))
	require.NoError(t, c.Set(ctx, "k", "cached", 0))
	_, err := c.Get(ctx, "k", src, cache.WithCacheDisabled())
	assert.Error(t, err, "a disabled read never falls back on cached data")
}

func TestGet_ForceRefreshReplacesValue(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newMock())
	src := NewTestSource()
	src.Put("k", "v1")

	_, err := c.Get(ctx, "k", src)
	require.NoError(t, err)

	src.Put("k", "v2")
	res, err := c.Get(ctx, "k", src, cache.WithForceRefresh())
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, "v2", res.Value)

	res, err = c.Get(ctx, "k", src)
	require.NoError(t, err)
	assert.Equal(t, "v2", res.Value)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestGet_ConcurrentMissesShareOneLoad(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newMock())

	var calls atomic.Int32
	release := make(chan struct{})
	loader := types.LoaderFunc(func(ctx context.Context, key string) (any, error) {
		calls.Add(1)
		<-release
		return "v", nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(ctx, "hot", loader)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestConcurrentMixedOperationsOnMemoryStorage(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newMock())
	src := NewTestSource()

	const keys = 60
	for i := 0; i < keys; i++ {
		src.Put(fmt.Sprintf("sym-%02d", i), i)
	}

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 300; i++ {
				key := fmt.Sprintf("sym-%02d", (i*7+w)%keys)
				switch i % 3 {
				case 0:
					if err := c.Set(ctx, key, i, time.Minute); err != nil {
						return err
					}
				case 1:
					if _, err := c.Get(ctx, key, src); err != nil {
						return err
					}
				default:
					if err := c.Delete(ctx, key); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, name := range types.Tiers {
		s := c.Tier(name).Stats()
		assert.Zero(t, s.ErrorCount, name)
		assert.LessOrEqual(t, s.CurrentEntries, keys, name)
	}

	for i := 0; i < keys; i++ {
		key := fmt.Sprintf("sym-%02d", i)
		require.NoError(t, c.Set(ctx, key, "final", time.Minute))

		res, err := c.Get(ctx, key, src)
		require.NoError(t, err)
		assert.True(t, res.FromCache, key)
		assert.Equal(t, types.TierFast, res.Tier, key)
		assert.Equal(t, "final", res.Value, key)
	}
}

//
// ================= SET / DELETE / HAS / CLEAR =================
//

func TestSetDeleteHas(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newMock())

	require.NoError(t, c.Set(ctx, "k", []int{1, 2, 3}, time.Minute))
	for _, name := range types.Tiers {
		assert.True(t, tierHas(ctx, c, name, "k"))
	}
	assert.True(t, c.Has(ctx, "k"))

	require.NoError(t, c.Delete(ctx, "k"))
	require.NoError(t, c.Delete(ctx, "k"), "delete is idempotent")
	assert.False(t, c.Has(ctx, "k"))
}

func TestSet_PartialTierFailureStillSucceeds(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newMock())

	// Functions cannot be persisted but the fast tier holds live values.
	require.NoError(t, c.Set(ctx, "fn", func() {}, time.Minute))
	assert.True(t, tierHas(ctx, c, types.TierFast, "fn"))
	assert.False(t, tierHas(ctx, c, types.TierMedium, "fn"))

	s := c.Tier(types.TierMedium).Stats()
	assert.EqualValues(t, 1, s.ErrorCount)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newMock())

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, k, k, time.Minute))
	}
	require.NoError(t, c.Clear(ctx))

	assert.Zero(t, c.Stats().TotalEntries)
	assert.False(t, c.Has(ctx, "a"))
}

//
// ================= TYPED ACCESS =================
//

type quote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func TestTypedGet_DecodesPersistedValues(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newMock())

	load := func(ctx context.Context) (quote, error) {
		return quote{Symbol: "NVDA", Price: 121.4}, nil
	}

	first, err := cache.Get(ctx, c, "NVDA", load)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	require.NoError(t, c.Tier(types.TierFast).Clear(ctx))

	second, err := cache.Get(ctx, c, "NVDA", func(ctx context.Context) (quote, error) {
		return quote{}, errors.New("should not load")
	})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, types.TierMedium, second.Tier)
	assert.Equal(t, quote{Symbol: "NVDA", Price: 121.4}, second.Value)
}

func TestTypedGet_ReloadsUndecodableValue(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newMock())
	require.NoError(t, c.Set(ctx, "NVDA", "not a quote", time.Minute))

	res, err := cache.Get(ctx, c, "NVDA", func(ctx context.Context) (quote, error) {
		return quote{Symbol: "NVDA", Price: 120}, nil
	})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, 120.0, res.Value.Price)
}

//
// ================= STATS / METRICS =================
//

func TestStats_Aggregate(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newMock())
	src := NewTestSource()
	src.Put("k", "v")

	_, _ = c.Get(ctx, "k", src) // fast, medium, slow miss
	_, _ = c.Get(ctx, "k", src) // fast hit

	s := c.Stats()
	require.Len(t, s.Tiers, 3)
	assert.EqualValues(t, 1, s.Hits)
	assert.EqualValues(t, 3, s.Misses)
	assert.InDelta(t, 0.25, s.HitRate, 1e-9)
	assert.Equal(t, 3, s.TotalEntries)

	var size int64
	for _, ts := range s.Tiers {
		size += ts.TotalSizeBytes
	}
	assert.Equal(t, size, s.TotalSizeBytes)
}

func TestMetrics_BoundToTierStats(t *testing.T) {
	ctx := context.Background()
	col := metrics.New("tc")
	c := newTestCache(t, newMock(), cache.WithMetrics(col))

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(col))
	families, err := reg.Gather()
	require.NoError(t, err)

	var entries float64
	for _, mf := range families {
		if mf.GetName() != "tc_entries" {
			continue
		}
		for _, m := range mf.GetMetric() {
			entries += m.GetGauge().GetValue()
		}
	}
	assert.Equal(t, 3.0, entries)
}

//
// ================= LIFECYCLE =================
//

func TestPersistentTiersSurviveRestart(t *testing.T) {
	ctx := context.Background()
	mock := newMock()
	var fsys core.FS = billy.NewMemory()

	first, err := cache.New(testConfig(), cache.WithClock(mock), cache.WithFS(fsys))
	require.NoError(t, err)
	require.NoError(t, first.Init(ctx))
	require.NoError(t, first.Set(ctx, "k", "persisted", time.Minute))
	require.NoError(t, first.Close(ctx))
	require.NoError(t, first.Close(ctx))

	second, err := cache.New(testConfig(), cache.WithClock(mock), cache.WithFS(fsys))
	require.NoError(t, err)
	require.NoError(t, second.Init(ctx))
	defer second.Close(ctx)

	src := NewTestSource()
	src.Fail(errors.New("offline"))

	res, err := second.Get(ctx, "k", src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, types.TierMedium, res.Tier)
	assert.Zero(t, src.calls.Load())
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Fast.EvictionPolicy = "random"
	_, err := cache.New(cfg)
	assert.Error(t, err)
}
