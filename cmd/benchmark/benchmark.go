package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	cache "github.com/krisalay/tiered-cache"
	"github.com/krisalay/tiered-cache/config"
	"github.com/krisalay/tiered-cache/tier"
	"github.com/krisalay/tiered-cache/types"
)

// ================= SOURCE =================

type Source struct {
	mu    sync.Mutex
	calls int
}

func (s *Source) Load(ctx context.Context, key string) (any, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return key, nil
}

// ================= BENCHMARK =================

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// ---------------- Cache Config ----------------
	const (
		fastEntries = 200000
		preloadKeys = 100000
		goroutines  = 200
		opsPerG     = 5000
	)

	cfg := config.Default()
	cfg.Storage.Backend = config.StorageMemory
	cfg.Fast.MaxEntries = fastEntries
	cfg.Fast.MaxSizeBytes = 1024 * tier.MiB
	cfg.Fast.DefaultTTL = config.Duration(time.Hour)

	fmt.Println("\n================ CACHE LOAD BENCHMARK =================")
	fmt.Println("CONFIG")
	fmt.Println("---------------------------------")
	fmt.Println("Fast Entries :", fastEntries)
	fmt.Println("Preload Keys :", preloadKeys)
	fmt.Println("Goroutines   :", goroutines)
	fmt.Println("Ops/Goroutine:", opsPerG)
	fmt.Println("---------------------------------")

	c, err := cache.New(cfg)
	if err != nil {
		return err
	}
	if err := c.Init(ctx); err != nil {
		return err
	}

	source := &Source{}
	fast := c.Tier(types.TierFast)

	// ---------------- Preload Cache ----------------
	fmt.Println("Preloading fast tier...")
	for i := 0; i < preloadKeys; i++ {
		if err := fast.Set(ctx, fmt.Sprintf("key-%d", i), i, 0); err != nil {
			return err
		}
	}
	fmt.Println("Preload complete.")

	// ---------------- Warmup ----------------
	fmt.Println("Warming up cache...")
	for i := 0; i < 10000; i++ {
		_, _ = c.Get(ctx, fmt.Sprintf("key-%d", i%preloadKeys), source)
	}
	fmt.Println("Warmup complete.")

	// ---------------- Load Test ----------------
	fmt.Println("Running concurrency benchmark...")

	start := time.Now()

	wg := sync.WaitGroup{}
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerG; j++ {
				_, _ = c.Get(ctx, fmt.Sprintf("key-%d", j%preloadKeys), source)
			}
		}()
	}

	wg.Wait()

	duration := time.Since(start)
	totalOps := goroutines * opsPerG
	s := c.Stats()

	fmt.Println("\n================ RESULTS =================")
	fmt.Printf("Total Operations : %d\n", totalOps)
	fmt.Printf("Total Time       : %v\n", duration)
	fmt.Printf("Throughput       : %.2f ops/sec\n", float64(totalOps)/duration.Seconds())
	fmt.Printf("Hit Rate         : %.4f\n", s.HitRate)
	fmt.Printf("Source Calls     : %d\n", source.calls)
	fmt.Println("=========================================")

	return c.Close(ctx)
}
