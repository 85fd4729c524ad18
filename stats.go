package cache

import "github.com/krisalay/tiered-cache/types"

// Stats aggregates the tiers' counters.
type Stats struct {
	Tiers          []types.TierStats
	Hits           uint64
	Misses         uint64
	HitRate        float64
	TotalEntries   int
	TotalSizeBytes int64
}

// TierStats returns each tier's stats, fastest first.
func (c *TieredCache) TierStats() []types.TierStats {
	out := make([]types.TierStats, 0, len(c.tiers))
	for _, t := range c.tiers {
		out = append(out, t.Stats())
	}
	return out
}

// Stats returns the per-tier stats together with the totals across tiers.
// HitRate is the share of tier lookups that hit, over every tier.
func (c *TieredCache) Stats() Stats {
	s := Stats{Tiers: c.TierStats()}
	for _, ts := range s.Tiers {
		s.Hits += ts.Hits
		s.Misses += ts.Misses
		s.TotalEntries += ts.CurrentEntries
		s.TotalSizeBytes += ts.TotalSizeBytes
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
