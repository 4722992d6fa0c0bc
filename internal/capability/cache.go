package capability

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Hiepler/EuConform/internal/models"
)

const (
	// DefaultSuccessTTL keeps healthy detections for a day.
	DefaultSuccessTTL = 24 * time.Hour
	// DefaultErrorTTL keeps failed detections only briefly so a transient
	// fault can be re-probed soon after it clears.
	DefaultErrorTTL = 5 * time.Minute

	keyPrefix = "capability:"
)

// BlobStore is the injected key→JSON persistence boundary for the cache.
// Implementations: the SQLite-backed store and an in-memory map for tests.
type BlobStore interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Remove(key string) error
	Keys(prefix string) ([]string, error)
}

// MemoryStore is a map-backed BlobStore, used as the default when no
// persistence is wired and throughout the tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Cache stores detection results keyed by model id, with TTLs differentiated
// by outcome. Entries are written whole and superseded whole; an expired
// entry is indistinguishable from a miss. Safe for concurrent use from
// multiple in-flight detection tasks.
type Cache struct {
	store      BlobStore
	successTTL time.Duration
	errorTTL   time.Duration

	mu  sync.Mutex
	now func() time.Time
}

func NewCache(store BlobStore, successTTL, errorTTL time.Duration) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	if successTTL <= 0 {
		successTTL = DefaultSuccessTTL
	}
	if errorTTL <= 0 {
		errorTTL = DefaultErrorTTL
	}
	return &Cache{
		store:      store,
		successTTL: successTTL,
		errorTTL:   errorTTL,
		now:        time.Now,
	}
}

// Get returns the cached entry for a model, or ok=false on miss and on
// expiry. Expired entries are removed on read.
func (c *Cache) Get(modelID string) (models.CapabilityCacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, found, err := c.store.Get(keyPrefix + modelID)
	if err != nil {
		slog.Warn("Capability cache read failed", "model", modelID, "error", err)
		return models.CapabilityCacheEntry{}, false
	}
	if !found {
		return models.CapabilityCacheEntry{}, false
	}

	var entry models.CapabilityCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		slog.Warn("Dropping corrupt capability cache entry", "model", modelID, "error", err)
		c.store.Remove(keyPrefix + modelID)
		return models.CapabilityCacheEntry{}, false
	}

	if entry.Expired(c.now()) {
		c.store.Remove(keyPrefix + modelID)
		return models.CapabilityCacheEntry{}, false
	}
	return entry, true
}

// Put writes a fresh entry for the capability, last writer wins. The TTL is
// chosen from the detection outcome unless a positive override is given.
func (c *Cache) Put(cap models.ModelCapability, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.successTTL
		if cap.Status == models.StatusError || cap.Status == models.StatusUnavailable {
			ttl = c.errorTTL
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry := models.CapabilityCacheEntry{
		Capability: cap,
		CachedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return c.store.Set(keyPrefix+cap.ModelID, data)
}

// InvalidateAll drops every cached capability.
func (c *Cache) InvalidateAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.store.Keys(keyPrefix)
	if err != nil {
		return fmt.Errorf("failed to enumerate cache keys: %w", err)
	}
	for _, k := range keys {
		if err := c.store.Remove(k); err != nil {
			return fmt.Errorf("failed to remove %s: %w", k, err)
		}
	}
	return nil
}
