package cache_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	cache "github.com/krisalay/tiered-cache"
	"github.com/krisalay/tiered-cache/tier"
	"github.com/krisalay/tiered-cache/types"
)

func newBenchmarkCache(b *testing.B) *cache.TieredCache {
	b.Helper()

	cfg := testConfig()
	cfg.Fast.MaxEntries = 100000
	cfg.Fast.MaxSizeBytes = 512 * tier.MiB
	cfg.Medium.MaxEntries = 100000
	cfg.Medium.MaxSizeBytes = 512 * tier.MiB
	cfg.Slow.MaxSizeBytes = 512 * tier.MiB

	c, err := cache.New(cfg)
	if err != nil {
		b.Fatal(err)
	}
	if err := c.Init(context.Background()); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

var benchLoader = types.LoaderFunc(func(ctx context.Context, key string) (any, error) {
	return key, nil
})

//
// ================= SINGLE THREAD BENCH =================
//

func BenchmarkCacheGetHit(b *testing.B) {
	ctx := context.Background()
	c := newBenchmarkCache(b)

	_ = c.Set(ctx, "key", "value", time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Get(ctx, "key", benchLoader)
	}
}

func BenchmarkCacheGetMiss(b *testing.B) {
	ctx := context.Background()
	c := newBenchmarkCache(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("miss-%d", i)
		_, _ = c.Get(ctx, key, benchLoader, cache.WithCacheDisabled())
	}
}

func BenchmarkCacheGetPromoted(b *testing.B) {
	ctx := context.Background()
	c := newBenchmarkCache(b)
	slow := c.Tier(types.TierSlow)
	fast := c.Tier(types.TierFast)

	_ = slow.Set(ctx, "key", "value", 0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		_ = fast.Delete(ctx, "key")
		b.StartTimer()
		_, _ = c.Get(ctx, "key", benchLoader)
	}
}

//
// ================= PARALLEL BENCH =================
//

func BenchmarkCacheParallelGet(b *testing.B) {
	ctx := context.Background()
	c := newBenchmarkCache(b)

	for i := 0; i < 1000; i++ {
		_ = c.Set(ctx, fmt.Sprintf("key-%d", i), i, time.Hour)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = c.Get(ctx, "key-42", benchLoader)
		}
	})
}

//
// ================= WRITE BENCH =================
//

func BenchmarkCacheSet(b *testing.B) {
	ctx := context.Background()
	c := newBenchmarkCache(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Set(ctx, fmt.Sprintf("key-%d", i%50000), i, time.Hour)
	}
}

//
// ================= HIGH CONCURRENCY TEST =================
//

func BenchmarkCacheHighConcurrency(b *testing.B) {
	ctx := context.Background()
	c := newBenchmarkCache(b)
	fast := c.Tier(types.TierFast)

	keys := make([]string, 10000)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
		_ = fast.Set(ctx, keys[i], i, time.Hour)
	}

	b.ResetTimer()

	wg := sync.WaitGroup{}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < b.N/100; j++ {
				_, _ = c.Get(ctx, keys[j%len(keys)], benchLoader)
			}
		}()
	}
	wg.Wait()
}
