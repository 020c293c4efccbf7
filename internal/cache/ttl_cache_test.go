package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache[string, int]()
	c.now = func() time.Time { return now }

	c.Set("a", 1, 3*time.Second)
	c.Set("b", 2, 0)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected hit for a, got %v %v", v, ok)
	}

	now = now.Add(4 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected a to expire")
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Fatalf("expected b to persist, got %v %v", v, ok)
	}
}

func TestTTLCachePurge(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache[string, int]()
	c.now = func() time.Time { return now }

	c.Set("a", 1, time.Second)
	c.Set("b", 2, time.Minute)
	now = now.Add(2 * time.Second)

	if n := c.Purge(); n != 1 {
		t.Fatalf("expected 1 purged, got %d", n)
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatalf("expected b to survive purge")
	}
}

func TestNilAndNoopCache(t *testing.T) {
	var c *TTLCache[string, int]
	c.Set("a", 1, time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("nil cache should miss")
	}

	var n NoopCache[string, int]
	n.Set("a", 1, time.Second)
	if _, ok := n.Get("a"); ok {
		t.Fatalf("noop cache should miss")
	}
}

func TestTTLCacheSetSweepsUnreadKeys(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache[string, int]()
	c.now = func() time.Time { return now }
	c.lastPurge = now

	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("10.0.0.%d", i), i, time.Second)
	}
	if c.Len() != 100 {
		t.Fatalf("expected 100 entries, got %d", c.Len())
	}

	now = now.Add(30 * time.Second)
	c.Set("fresh", 1, time.Hour)
	if c.Len() != 101 {
		t.Fatalf("sweep ran before the interval, len %d", c.Len())
	}

	now = now.Add(PurgeInterval)
	c.Set("later", 2, time.Hour)
	if c.Len() != 2 {
		t.Fatalf("expired keys were not swept, len %d", c.Len())
	}
}
