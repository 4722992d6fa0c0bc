package capability

import (
	"testing"
	"time"

	"github.com/Hiepler/EuConform/internal/models"
)

func testCapability(modelID string, status models.Status) models.ModelCapability {
	return models.ModelCapability{
		ModelID:    modelID,
		Backend:    models.BackendRemote,
		Method:     models.MethodExactLogProb,
		Status:     status,
		LastTested: time.Now(),
	}
}

func TestCacheHitWithinTTL(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache := NewCache(NewMemoryStore(), 5*time.Minute, time.Minute)
	cache.now = func() time.Time { return base }

	if err := cache.Put(testCapability("llama3", models.StatusAvailable), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	cache.now = func() time.Time { return base.Add(4 * time.Minute) }
	entry, ok := cache.Get("llama3")
	if !ok {
		t.Fatal("Expected hit 4 minutes into a 5 minute TTL")
	}
	if entry.Capability.Method != models.MethodExactLogProb {
		t.Errorf("Expected exact-logprob method, got %s", entry.Capability.Method)
	}
}

func TestCacheExpiryIsMiss(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	cache := NewCache(store, 5*time.Minute, time.Minute)
	cache.now = func() time.Time { return base }

	cache.Put(testCapability("llama3", models.StatusAvailable), 0)

	cache.now = func() time.Time { return base.Add(6 * time.Minute) }
	if _, ok := cache.Get("llama3"); ok {
		t.Fatal("Expected miss 6 minutes into a 5 minute TTL")
	}

	// Expired entries are removed on read.
	if _, found, _ := store.Get(keyPrefix + "llama3"); found {
		t.Error("Expected expired entry to be removed from the store")
	}
}

func TestCacheErrorTTL(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache := NewCache(NewMemoryStore(), 24*time.Hour, 5*time.Minute)
	cache.now = func() time.Time { return base }

	cache.Put(testCapability("broken", models.StatusError), 0)

	cache.now = func() time.Time { return base.Add(4 * time.Minute) }
	if _, ok := cache.Get("broken"); !ok {
		t.Error("Expected error entry to survive within its short TTL")
	}

	cache.now = func() time.Time { return base.Add(6 * time.Minute) }
	if _, ok := cache.Get("broken"); ok {
		t.Error("Expected error entry to expire after its short TTL")
	}
}

func TestCacheOverrideTTL(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache := NewCache(NewMemoryStore(), 24*time.Hour, 5*time.Minute)
	cache.now = func() time.Time { return base }

	cache.Put(testCapability("pinned", models.StatusAvailable), time.Minute)

	cache.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, ok := cache.Get("pinned"); ok {
		t.Error("Expected explicit 1 minute TTL to override the success default")
	}
}

func TestCacheLastWriterWins(t *testing.T) {
	cache := NewCache(NewMemoryStore(), time.Hour, time.Minute)

	cache.Put(testCapability("m", models.StatusError), 0)
	cache.Put(testCapability("m", models.StatusAvailable), 0)

	entry, ok := cache.Get("m")
	if !ok {
		t.Fatal("Expected hit after rewrite")
	}
	if entry.Capability.Status != models.StatusAvailable {
		t.Errorf("Expected latest write to win, got status %s", entry.Capability.Status)
	}
}

func TestCacheMissOnUnknownModel(t *testing.T) {
	cache := NewCache(NewMemoryStore(), time.Hour, time.Minute)
	if _, ok := cache.Get("never-seen"); ok {
		t.Error("Expected miss for a model never cached")
	}
}

func TestCacheDropsCorruptEntry(t *testing.T) {
	store := NewMemoryStore()
	store.Set(keyPrefix+"bad", []byte("{not json"))

	cache := NewCache(store, time.Hour, time.Minute)
	if _, ok := cache.Get("bad"); ok {
		t.Fatal("Expected corrupt entry to read as a miss")
	}
	if _, found, _ := store.Get(keyPrefix + "bad"); found {
		t.Error("Expected corrupt entry to be removed")
	}
}

func TestCacheInvalidateAll(t *testing.T) {
	store := NewMemoryStore()
	store.Set("unrelated", []byte("keep"))

	cache := NewCache(store, time.Hour, time.Minute)
	cache.Put(testCapability("a", models.StatusAvailable), 0)
	cache.Put(testCapability("b", models.StatusAvailable), 0)

	if err := cache.InvalidateAll(); err != nil {
		t.Fatalf("InvalidateAll failed: %v", err)
	}

	if _, ok := cache.Get("a"); ok {
		t.Error("Expected entry a to be gone")
	}
	if _, ok := cache.Get("b"); ok {
		t.Error("Expected entry b to be gone")
	}
	if _, found, _ := store.Get("unrelated"); !found {
		t.Error("Expected keys outside the capability prefix to survive")
	}
}
