package types

import "time"

// TierName identifies one level of the hierarchy.
type TierName string

const (
	// TierFast is the volatile in-process tier.
	TierFast TierName = "fast"

	// TierMedium is the persistent tier, one small record per key.
	TierMedium TierName = "medium"

	// TierSlow is the durable tier with the largest capacity and longest TTLs.
	TierSlow TierName = "slow"
)

// Tiers lists every tier from fastest to slowest. This is the lookup order.
var Tiers = []TierName{TierFast, TierMedium, TierSlow}

// TierStats is a point-in-time view of one tier's counters.
//
// Counters are cumulative until Clear resets them.
type TierStats struct {
	Tier               TierName
	Hits               uint64
	Misses             uint64
	HitRate            float64
	CurrentEntries     int
	MaxEntries         int
	TotalSizeBytes     int64
	MaxSizeBytes       int64
	WriteCount         uint64
	DeleteCount        uint64
	Evictions          uint64
	Expirations        uint64
	TimeoutCount       uint64
	AverageQueryTimeMs float64
	AverageWriteTimeMs float64
	ErrorCount         uint64
	LastError          string
	LastErrorAt        time.Time
}
