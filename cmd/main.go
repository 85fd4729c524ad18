package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cache "github.com/krisalay/tiered-cache"
	"github.com/krisalay/tiered-cache/config"
	"github.com/krisalay/tiered-cache/keys"
	"github.com/krisalay/tiered-cache/metrics"
	"github.com/krisalay/tiered-cache/refresh"
	"github.com/krisalay/tiered-cache/types"
)

// ================= QUOTE SOURCE =================

// QuoteSource plays the remote API behind the cache.
type QuoteSource struct {
	mu    sync.RWMutex
	data  map[string]any
	down  bool
	calls int
}

func NewQuoteSource() *QuoteSource {
	return &QuoteSource{data: make(map[string]any)}
}

func (s *QuoteSource) Load(ctx context.Context, key string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.down {
		fmt.Println("SOURCE → load failed:", key)
		return nil, errors.New("quote service unavailable")
	}
	fmt.Println("SOURCE → load:", key)
	return s.data[key], nil
}

func (s *QuoteSource) Put(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *QuoteSource) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// ================= MAIN =================

func main() {
	configPath := flag.String("config", "", "path to a TOML or YAML config file")
	envFile := flag.String("env", ".env", "dotenv file with TIERCACHE_ overrides")
	flag.Parse()

	if err := run(*configPath, *envFile); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string) error {
	ctx := context.Background()

	fmt.Println("\n==================== SYSTEM BOOT ====================")

	// ---------------- System Config ----------------
	cfg := config.Default()
	cfg.Storage.Backend = config.StorageMemory
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(envFile); err != nil {
		return err
	}

	fmt.Println("STORAGE         :", cfg.Storage.Backend)
	for _, name := range types.Tiers {
		tc := cfg.TierConfig(name)
		fmt.Printf("%-6s TIER     : %d entries, %d bytes, ttl %v, %s\n",
			name, tc.MaxEntries, tc.MaxSizeBytes, tc.DefaultTTL, tc.EvictionPolicy)
	}

	// ---------------- Quote Source ----------------
	source := NewQuoteSource()
	aapl := keys.MustDerive("quote", map[string]any{"symbol": "AAPL"})
	msft := keys.MustDerive("quote", map[string]any{"symbol": "MSFT"})
	source.Put(aapl, map[string]any{"symbol": "AAPL", "price": 187.5})
	source.Put(msft, map[string]any{"symbol": "MSFT", "price": 410.2})

	// ---------------- Metrics ----------------
	collector := metrics.New("tiercache")
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	// ---------------- Cache ----------------
	hook := refresh.Func(func(ctx context.Context, key string, tier types.TierName, loadErr error) {
		fmt.Printf("HOOK   → stale %s served from %s (%v)\n", key, tier, loadErr)
	})

	c, err := cache.New(cfg,
		cache.WithLogger(cfg.Logger(os.Stderr)),
		cache.WithMetrics(collector),
		cache.WithRefreshHook(hook),
	)
	if err != nil {
		return err
	}
	if err := c.Init(ctx); err != nil {
		return err
	}

	// ====================================================
	fmt.Println("\n==================== 1) CACHE MISS ====================")
	res, err := c.Get(ctx, aapl, source)
	if err != nil {
		return err
	}
	printResult(res)

	// ====================================================
	fmt.Println("\n==================== 2) CACHE HIT ====================")
	res, _ = c.Get(ctx, aapl, source)
	printResult(res)

	// ====================================================
	fmt.Println("\n==================== 3) PROMOTION ====================")
	_ = c.Tier(types.TierFast).Delete(ctx, aapl)
	fmt.Println("CACHE  → dropped", aapl, "from the fast tier")
	res, _ = c.Get(ctx, aapl, source)
	printResult(res)
	res, _ = c.Get(ctx, aapl, source)
	printResult(res)

	// ====================================================
	fmt.Println("\n==================== 4) STALE FALLBACK ====================")
	source.SetDown(true)
	res, err = c.Get(ctx, aapl, source, cache.WithForceRefresh())
	if err != nil {
		fmt.Println("CACHE  → error:", err)
	} else {
		printResult(res)
	}
	source.SetDown(false)

	// ====================================================
	fmt.Println("\n==================== 5) SINGLEFLIGHT ====================")
	wg := sync.WaitGroup{}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r, _ := c.Get(ctx, msft, source)
			fmt.Printf("GOROUTINE-%d → GET %s from cache=%v\n", id, msft, r.FromCache)
		}(i)
	}
	wg.Wait()

	// ====================================================
	fmt.Println("\n==================== 6) EVICTION ====================")
	limit := cfg.Fast.MaxEntries
	for i := 0; i < limit+50; i++ {
		_ = c.Tier(types.TierFast).Set(ctx, fmt.Sprintf("k%d", i), i, time.Minute)
	}
	fast := c.Tier(types.TierFast).Stats()
	fmt.Printf("CACHE  → fast tier holds %d/%d entries after %d evictions\n",
		fast.CurrentEntries, fast.MaxEntries, fast.Evictions)

	// ====================================================
	fmt.Println("\n==================== 7) DELETE ====================")
	_ = c.Delete(ctx, msft)
	fmt.Println("CACHE  → DELETE", msft, "present =", c.Has(ctx, msft))

	// ====================================================
	fmt.Println("\n==================== STATS ====================")
	s := c.Stats()
	for _, ts := range s.Tiers {
		fmt.Printf("%-6s : hits=%d misses=%d entries=%d bytes=%d evictions=%d\n",
			ts.Tier, ts.Hits, ts.Misses, ts.CurrentEntries, ts.TotalSizeBytes, ts.Evictions)
	}
	fmt.Printf("TOTAL  : hit rate %.2f, %d entries, %d bytes, %d source calls\n",
		s.HitRate, s.TotalEntries, s.TotalSizeBytes, source.calls)

	families, err := registry.Gather()
	if err != nil {
		return err
	}
	fmt.Println("METRICS:", len(families), "families exported")

	// ====================================================
	fmt.Println("\n==================== SHUTDOWN ====================")
	if err := c.Close(ctx); err != nil {
		return err
	}
	fmt.Println("SYSTEM → cache closed cleanly")
	return nil
}

func printResult(res types.Result) {
	tier := "source"
	if res.FromCache {
		tier = string(res.Tier)
	}
	fmt.Printf("CACHE  → GET %s from %s (ttl %v) = %s\n", res.CacheKey, tier, res.TTL, format(res.Value))
}

func format(v any) string {
	if raw, ok := v.(json.RawMessage); ok {
		return string(raw)
	}
	return fmt.Sprint(v)
}
