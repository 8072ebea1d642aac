// Package freshness implements the cache that gates re-ingestion. Entries
// carry their write timestamp so callers can ask "is this recent enough"
// with a threshold of their own choosing, separate from the entry's TTL.
package freshness

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	storedAt  time.Time
	expiresAt time.Time
	payload   []byte
}

// InMemoryCache is a map-backed freshness cache for tests and single-node
// development runs.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	// now is swappable in tests.
	now func() time.Time
}

func NewInMemory() *InMemoryCache {
	return &InMemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *InMemoryCache) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := c.now()
	buf := make([]byte, len(value))
	copy(buf, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{
		storedAt:  now,
		expiresAt: now.Add(ttl),
		payload:   buf,
	}
	return nil
}

func (c *InMemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	buf := make([]byte, len(entry.payload))
	copy(buf, entry.payload)
	return buf, true
}

// IsFresh compares the entry's write timestamp against maxAge. The threshold
// is the caller's, not the TTL the entry was stored with.
func (c *InMemoryCache) IsFresh(_ context.Context, key string, maxAge time.Duration) bool {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	now := c.now()
	if now.After(entry.expiresAt) {
		return false
	}
	return now.Sub(entry.storedAt) <= maxAge
}

func (c *InMemoryCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}
