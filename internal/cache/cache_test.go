package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock is a controllable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestCache_GetSet(t *testing.T) {
	c := New(Config{Capacity: 10})

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for absent key")
	}

	c.Set("k1", "v1", NoExpiry)
	v, ok := c.Get("k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if v.(string) != "v1" {
		t.Errorf("value = %v", v)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("hits=%d misses=%d, want 1 and 1", stats.Hits, stats.Misses)
	}
}

func TestCache_ReplaceExistingKey(t *testing.T) {
	c := New(Config{Capacity: 2})

	c.Set("k1", "old", NoExpiry)
	c.Set("k2", "v2", NoExpiry)
	c.Set("k1", "new", NoExpiry)

	v, ok := c.Get("k1")
	if !ok || v.(string) != "new" {
		t.Errorf("got %v, %v", v, ok)
	}
	stats := c.Stats()
	if stats.Size != 2 {
		t.Errorf("size = %d, want 2", stats.Size)
	}
	if stats.Evictions != 0 {
		t.Errorf("replacing a key must not evict, got %d evictions", stats.Evictions)
	}
}

func TestCache_LRUEviction(t *testing.T) {
	c := New(Config{Capacity: 2})

	c.Set("a", 1, NoExpiry)
	c.Set("b", 2, NoExpiry)

	// Touch "a" so "b" becomes least recently used.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit for a")
	}

	c.Set("c", 3, NoExpiry)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should have survived")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should be present")
	}

	stats := c.Stats()
	if stats.Evictions != 1 {
		t.Errorf("evictions = %d, want 1", stats.Evictions)
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New(Config{Capacity: 10, Clock: clock.Now})

	c.Set("k1", "v1", time.Minute)

	if _, ok := c.Get("k1"); !ok {
		t.Fatal("expected hit before expiry")
	}

	clock.Advance(2 * time.Minute)

	if _, ok := c.Get("k1"); ok {
		t.Error("expected miss after TTL elapsed")
	}

	stats := c.Stats()
	if stats.Expirations != 1 {
		t.Errorf("expirations = %d, want 1", stats.Expirations)
	}
	// An expired read counts as a miss too.
	if stats.Misses != 1 {
		t.Errorf("misses = %d, want 1", stats.Misses)
	}
	if stats.Size != 0 {
		t.Errorf("size = %d, want 0 after lazy removal", stats.Size)
	}
}

func TestCache_DefaultTTL(t *testing.T) {
	clock := newFakeClock()
	c := New(Config{Capacity: 10, DefaultTTL: time.Hour, Clock: clock.Now})

	c.Set("k1", "v1", 0)

	clock.Advance(30 * time.Minute)
	if _, ok := c.Get("k1"); !ok {
		t.Error("expected hit within default TTL")
	}

	clock.Advance(31 * time.Minute)
	if _, ok := c.Get("k1"); ok {
		t.Error("expected miss after default TTL")
	}
}

func TestCache_NoExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New(Config{Capacity: 10, Clock: clock.Now})

	c.Set("k1", "v1", NoExpiry)
	clock.Advance(1000 * time.Hour)

	if _, ok := c.Get("k1"); !ok {
		t.Error("NoExpiry entry should never expire")
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := New(Config{Capacity: 10})

	c.Set("k1", "v1", NoExpiry)
	if !c.Invalidate("k1") {
		t.Error("expected true for present key")
	}
	if c.Invalidate("k1") {
		t.Error("expected false for absent key")
	}
	if _, ok := c.Get("k1"); ok {
		t.Error("invalidated key should miss")
	}
}

func TestCache_Clear(t *testing.T) {
	c := New(Config{Capacity: 10})

	c.Set("a", 1, NoExpiry)
	c.Set("b", 2, NoExpiry)

	if n := c.Clear(); n != 2 {
		t.Errorf("Clear() = %d, want 2", n)
	}
	if stats := c.Stats(); stats.Size != 0 {
		t.Errorf("size = %d after clear", stats.Size)
	}
}

func TestCache_SweepExpired(t *testing.T) {
	clock := newFakeClock()
	c := New(Config{Capacity: 10, Clock: clock.Now})

	c.Set("short", 1, time.Minute)
	c.Set("long", 2, time.Hour)
	c.Set("forever", 3, NoExpiry)

	clock.Advance(5 * time.Minute)

	if n := c.SweepExpired(); n != 1 {
		t.Errorf("SweepExpired() = %d, want 1", n)
	}
	if _, ok := c.Get("long"); !ok {
		t.Error("unexpired entry removed by sweep")
	}
	if _, ok := c.Get("forever"); !ok {
		t.Error("NoExpiry entry removed by sweep")
	}
	if stats := c.Stats(); stats.Expirations != 1 {
		t.Errorf("expirations = %d, want 1", stats.Expirations)
	}
}

func TestCache_StatsHitRate(t *testing.T) {
	c := New(Config{Capacity: 10})

	if rate := c.Stats().HitRate; rate != 0 {
		t.Errorf("hit rate with no traffic = %f, want 0", rate)
	}

	c.Set("k1", "v1", NoExpiry)
	c.Get("k1")
	c.Get("k1")
	c.Get("nope")
	c.Get("nope")

	stats := c.Stats()
	if stats.HitRate != 0.5 {
		t.Errorf("hit rate = %f, want 0.5", stats.HitRate)
	}
}

func TestKey_FilterOrderIndependent(t *testing.T) {
	a := Key("query", 5, map[string]string{"lang": "en", "source": "web"}, "docs")
	b := Key("query", 5, map[string]string{"source": "web", "lang": "en"}, "docs")
	if a != b {
		t.Errorf("filter ordering changed the key: %s vs %s", a, b)
	}
}

func TestKey_Distinguishes(t *testing.T) {
	base := Key("query", 5, nil, "docs")

	tests := []struct {
		name string
		key  string
	}{
		{"different query", Key("other", 5, nil, "docs")},
		{"different top_k", Key("query", 10, nil, "docs")},
		{"different collection", Key("query", 5, nil, "other")},
		{"added filter", Key("query", 5, map[string]string{"lang": "en"}, "docs")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.key == base {
				t.Error("expected distinct key")
			}
		})
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(Config{Capacity: 50})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("key-%d", i%20)
				c.Set(key, g, NoExpiry)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	stats := c.Stats()
	if stats.Size > 50 {
		t.Errorf("size %d exceeds capacity", stats.Size)
	}
}
