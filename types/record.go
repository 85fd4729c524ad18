package types

import (
	"encoding/json"
	"time"
)

// Record is the persisted shape of an entry in the medium and slow tiers.
// Timestamps are stored as Unix milliseconds.
type Record struct {
	Key          string          `json:"key"`
	Value        json.RawMessage `json:"value"`
	Expiry       int64           `json:"expiry"`
	LastAccessed int64           `json:"lastAccessed"`
	CreatedAt    int64           `json:"createdAt"`
	SizeBytes    int64           `json:"sizeBytes"`
	AccessCount  int64           `json:"accessCount"`
}

// RecordFromEntry converts an entry into its persisted form.
// The entry must carry an encoded Payload.
func RecordFromEntry(ent *CacheEntry) *Record {
	return &Record{
		Key:          ent.Key,
		Value:        json.RawMessage(ent.Payload),
		Expiry:       ent.ExpireAt.UnixMilli(),
		LastAccessed: ent.LastAccessedAt.UnixMilli(),
		CreatedAt:    ent.CreatedAt.UnixMilli(),
		SizeBytes:    ent.SizeBytes,
		AccessCount:  ent.AccessCount,
	}
}

// Entry converts a persisted record back into a cache entry.
func (r *Record) Entry() *CacheEntry {
	return &CacheEntry{
		Key:            r.Key,
		Payload:        []byte(r.Value),
		ExpireAt:       time.UnixMilli(r.Expiry),
		LastAccessedAt: time.UnixMilli(r.LastAccessed),
		CreatedAt:      time.UnixMilli(r.CreatedAt),
		SizeBytes:      r.SizeBytes,
		AccessCount:    r.AccessCount,
	}
}
