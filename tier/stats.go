package tier

import (
	"sync/atomic"
	"time"

	"github.com/krisalay/tiered-cache/opqueue"
	"github.com/krisalay/tiered-cache/types"
)

type counters struct {
	hits        atomic.Uint64
	misses      atomic.Uint64
	writes      atomic.Uint64
	deletes     atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64
	timeouts    atomic.Uint64
	errors      atomic.Uint64

	reads      atomic.Uint64
	readNanos  atomic.Int64
	writeOps   atomic.Uint64
	writeNanos atomic.Int64
}

func (c *counters) reset() {
	for _, v := range []*atomic.Uint64{
		&c.hits, &c.misses, &c.writes, &c.deletes, &c.evictions,
		&c.expirations, &c.timeouts, &c.errors, &c.reads, &c.writeOps,
	} {
		v.Store(0)
	}
	c.readNanos.Store(0)
	c.writeNanos.Store(0)
}

// Stats returns a snapshot of the tier's counters and occupancy.
func (t *Tier) Stats() types.TierStats {
	t.mu.RLock()
	entries, size := len(t.index), t.bytes
	t.mu.RUnlock()

	hits, misses := t.stats.hits.Load(), t.stats.misses.Load()
	s := types.TierStats{
		Tier:               t.cfg.Name,
		Hits:               hits,
		Misses:             misses,
		HitRate:            ratio(hits, hits+misses),
		CurrentEntries:     entries,
		MaxEntries:         t.cfg.MaxEntries,
		TotalSizeBytes:     size,
		MaxSizeBytes:       t.cfg.MaxSizeBytes,
		WriteCount:         t.stats.writes.Load(),
		DeleteCount:        t.stats.deletes.Load(),
		Evictions:          t.stats.evictions.Load(),
		Expirations:        t.stats.expirations.Load(),
		TimeoutCount:       t.stats.timeouts.Load(),
		AverageQueryTimeMs: averageMs(t.stats.readNanos.Load(), t.stats.reads.Load()),
		AverageWriteTimeMs: averageMs(t.stats.writeNanos.Load(), t.stats.writeOps.Load()),
		ErrorCount:         t.stats.errors.Load(),
	}

	t.errMu.Lock()
	s.LastError, s.LastErrorAt = t.lastErr, t.lastAt
	t.errMu.Unlock()
	return s
}

func (t *Tier) observeRead(start time.Time, op, key string) {
	d := t.clock.Since(start)
	t.stats.reads.Add(1)
	t.stats.readNanos.Add(int64(d))
	t.guard(d, op, key)
}

func (t *Tier) observeWrite(start time.Time, op, key string) {
	d := t.clock.Since(start)
	t.stats.writeOps.Add(1)
	t.stats.writeNanos.Add(int64(d))
	t.guard(d, op, key)
}

// guard counts operations that ran past OpTimeout. The operation has already
// completed; its result is not affected.
func (t *Tier) guard(d time.Duration, op, key string) {
	if t.cfg.OpTimeout <= 0 || d <= t.cfg.OpTimeout {
		return
	}
	t.stats.timeouts.Add(1)
	t.metrics.Timeout(t.cfg.Name)
	t.logger.Warn("operation exceeded timeout", "op", op, "key", key,
		"duration_ms", d.Milliseconds(), "timeout_ms", t.cfg.OpTimeout.Milliseconds())
}

func ratio(n, d uint64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func averageMs(nanos int64, ops uint64) float64 {
	if ops == 0 {
		return 0
	}
	return float64(nanos) / float64(ops) / float64(time.Millisecond)
}

// QueueStats returns the counters of the tier's write queue.
func (t *Tier) QueueStats() opqueue.Stats {
	return t.queue.Stats()
}
