package cache

import (
	"sync"
	"testing"
)

func TestLRU_PutGet(t *testing.T) {
	c := NewLRU[string, int](4)

	c.Put("a", 1)
	got, ok := c.Get("a")
	if !ok || got != 1 {
		t.Fatalf("Expected hit with value 1, got ok=%v value=%d", ok, got)
	}

	stats := c.Stats()
	if stats.Hits != 1 {
		t.Errorf("Expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 0 {
		t.Errorf("Expected 0 misses, got %d", stats.Misses)
	}
}

func TestLRU_MissCounts(t *testing.T) {
	c := NewLRU[string, int](4)

	if _, ok := c.Get("absent"); ok {
		t.Fatal("Expected miss")
	}

	stats := c.Stats()
	if stats.Misses != 1 {
		t.Errorf("Expected 1 miss, got %d", stats.Misses)
	}
	if stats.HitRate != 0 {
		t.Errorf("Expected hit rate 0, got %f", stats.HitRate)
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[string, int](2)

	// Inserting 3 distinct keys evicts exactly the first-inserted,
	// unaccessed key.
	c.Put("first", 1)
	c.Put("second", 2)
	c.Put("third", 3)

	if _, ok := c.Peek("first"); ok {
		t.Error("Expected first to be evicted")
	}
	if _, ok := c.Peek("second"); !ok {
		t.Error("Expected second to survive")
	}
	if _, ok := c.Peek("third"); !ok {
		t.Error("Expected third to survive")
	}
	if c.Len() != 2 {
		t.Errorf("Expected size 2, got %d", c.Len())
	}
}

func TestLRU_GetRefreshesRecency(t *testing.T) {
	c := NewLRU[string, int](2)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // a becomes most recent
	c.Put("c", 3)

	if _, ok := c.Peek("a"); !ok {
		t.Error("Expected accessed key to survive eviction")
	}
	if _, ok := c.Peek("b"); ok {
		t.Error("Expected unaccessed key to be evicted")
	}
}

func TestLRU_RemoveAndClear(t *testing.T) {
	c := NewLRU[string, int](4)
	c.Put("a", 1)
	c.Put("b", 2)

	if !c.Remove("a") {
		t.Error("Expected Remove to report presence")
	}
	if c.Remove("a") {
		t.Error("Expected Remove on absent key to report false")
	}

	c.Get("b")
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Expected empty cache, got %d", c.Len())
	}
	if c.Stats().Hits != 1 {
		t.Error("Expected counters to survive Clear")
	}
}

func TestLRU_HitRate(t *testing.T) {
	c := NewLRU[string, int](4)
	c.Put("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("absent")
	c.Get("absent")

	stats := c.Stats()
	if stats.HitRate != 0.5 {
		t.Errorf("Expected hit rate 0.5, got %f", stats.HitRate)
	}
}

func TestLRU_BoundClamped(t *testing.T) {
	c := NewLRU[string, int](0)
	c.Put("a", 1)
	c.Put("b", 2)
	if c.Len() != 1 {
		t.Errorf("Expected clamped bound of 1, got size %d", c.Len())
	}
}

func TestLRU_ConcurrentAccess(t *testing.T) {
	c := NewLRU[int, int](64)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Put(base*1000+i, i)
				c.Get(base*1000 + i)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 64 {
		t.Errorf("Expected bound respected, got %d", c.Len())
	}
}
