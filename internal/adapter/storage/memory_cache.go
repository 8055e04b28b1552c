package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/nft-market/internal/clock"
)

type memoryEntry struct {
	done    bool
	expires time.Time
}

// MemoryCache is an in-process IdempotencyCache for single-node deployments
// and tests.
type MemoryCache struct {
	mu      sync.Mutex
	clock   clock.Clock
	ttl     time.Duration
	entries map[string]memoryEntry
}

func NewMemoryCache(clk clock.Clock, ttl time.Duration) *MemoryCache {
	if clk == nil {
		clk = clock.Real()
	}
	if ttl <= 0 {
		ttl = idempotencyKeyTTL
	}
	return &MemoryCache{clock: clk, ttl: ttl, entries: make(map[string]memoryEntry)}
}

func (m *MemoryCache) SetIdempotency(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		return false, nil
	}
	m.entries[key] = memoryEntry{expires: now.Add(m.ttl)}
	return true, nil
}

func (m *MemoryCache) CompleteIdempotency(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{done: true, expires: m.clock.Now().Add(m.ttl)}
	return nil
}

func (m *MemoryCache) ReleaseIdempotency(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok && !e.done {
		delete(m.entries, key)
	}
	return nil
}

// Sweep drops expired keys and returns how many were removed.
func (m *MemoryCache) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	removed := 0
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}
