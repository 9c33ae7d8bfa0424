package cache

import "testing"

func TestPutUpdatesExistingEntryWithoutGrowingSize(t *testing.T) {
	cache := NewLRUCache[string, string](2)

	cache.Put("alpha", "x")
	cache.Put("beta", "value")
	cache.Put("alpha", "y")

	if cache.Len() != 2 {
		t.Fatalf("unexpected cache length: got %d, want 2", cache.Len())
	}
	if value, hit := cache.Get("alpha"); !hit || value != "y" {
		t.Fatalf("expected updated alpha, hit=%v value=%q", hit, value)
	}
	if value, hit := cache.Get("beta"); !hit || value != "value" {
		t.Fatalf("expected beta to remain in cache, hit=%v value=%q", hit, value)
	}
}

type customKey struct {
	name string
}

func TestEvictionWithNonStringKey(t *testing.T) {
	cache := NewLRUCache[customKey, []byte](2)

	first := customKey{name: "first"}
	second := customKey{name: "second"}
	third := customKey{name: "third"}

	cache.Put(first, []byte("a"))
	cache.Put(second, []byte("b"))
	if _, hit := cache.Get(first); !hit {
		t.Fatalf("expected first to be cached")
	}
	cache.Put(third, []byte("c"))

	if cache.Contains(second) {
		t.Fatalf("expected least recently used key to be evicted")
	}
	if !cache.Contains(first) || !cache.Contains(third) {
		t.Fatalf("expected recently used keys to survive eviction")
	}
}

func TestPurge(t *testing.T) {
	cache := NewLRUCache[int, int](0)
	cache.Put(1, 1)
	cache.Put(2, 2)
	if cache.Len() != 1 {
		t.Fatalf("expected size floor of one, got %d", cache.Len())
	}
	cache.Purge()
	if cache.Len() != 0 || cache.Contains(2) {
		t.Fatalf("expected empty cache after purge")
	}
}
