package backend

import (
	"context"
	"sync"

	"github.com/krisalay/tiered-cache/types"
)

/*
Memory is a map of entries guarded by a read-write mutex.

Reads take the read lock, so concurrent readers never wait on each other.
Writes and removals take the write lock and touch only the one key, so their
cost does not grow with the number of stored entries.
*/
type Memory struct {
	mu   sync.RWMutex
	data map[string]*types.CacheEntry
}

// NewMemory returns an empty memory backend.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]*types.CacheEntry)}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Read(ctx context.Context, key string) (*types.CacheEntry, error) {
	m.mu.RLock()
	ent, ok := m.data[key]
	m.mu.RUnlock()

	if !ok {
		return nil, types.ErrNotFound
	}
	return ent, nil
}

// Write stores a copy of ent, so later changes by the caller are not visible
// to readers of this backend.
func (m *Memory) Write(ctx context.Context, ent *types.CacheEntry) error {
	cp := *ent

	m.mu.Lock()
	m.data[cp.Key] = &cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Scan visits a snapshot of the stored entries; fn may call back into m.
func (m *Memory) Scan(ctx context.Context, fn func(*types.CacheEntry) error) error {
	m.mu.RLock()
	snapshot := make([]*types.CacheEntry, 0, len(m.data))
	for _, ent := range m.data {
		snapshot = append(snapshot, ent)
	}
	m.mu.RUnlock()

	for _, ent := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ent); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Purge(ctx context.Context) error {
	m.mu.Lock()
	m.data = make(map[string]*types.CacheEntry)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *Memory) Close() error { return nil }
