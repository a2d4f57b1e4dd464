// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestCacheBasicOperations(t *testing.T) {
	c := New[string](time.Minute)

	c.Set("key1", "value1")
	value, exists := c.Get("key1")
	if !exists {
		t.Error("Expected key1 to exist")
	}
	if value != "value1" {
		t.Errorf("Expected value1, got %v", value)
	}

	if _, exists = c.Get("key2"); exists {
		t.Error("Expected key2 to not exist")
	}
}

func TestCacheExpiration(t *testing.T) {
	clock := newFakeClock()
	c := New[string](time.Hour).WithClock(clock.Now)

	c.Set("key1", "value1")
	clock.Advance(59 * time.Minute)
	if _, ok := c.Get("key1"); !ok {
		t.Fatal("Expected key1 to exist before TTL")
	}

	clock.Advance(2 * time.Minute)
	if _, ok := c.Get("key1"); ok {
		t.Error("Expected key1 to be expired")
	}
	if c.Len() != 0 {
		t.Errorf("Expected expired entry removed on read, got %d entries", c.Len())
	}

	stats := c.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Evictions != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestCacheOverwriteRestartsTTL(t *testing.T) {
	clock := newFakeClock()
	c := New[int](10 * time.Minute).WithClock(clock.Now)

	c.Set("dev", 1)
	clock.Advance(8 * time.Minute)
	c.Set("dev", 2)
	clock.Advance(8 * time.Minute)

	v, ok := c.Get("dev")
	if !ok {
		t.Fatal("Expected overwritten entry to still be live")
	}
	if v != 2 {
		t.Errorf("Expected latest value 2, got %d", v)
	}
}

func TestCacheSweep(t *testing.T) {
	clock := newFakeClock()
	c := New[int](time.Minute).WithClock(clock.Now)

	c.Set("a", 1)
	c.Set("b", 2)
	clock.Advance(30 * time.Second)
	c.Set("c", 3)
	clock.Advance(45 * time.Second)

	if removed := c.Sweep(); removed != 2 {
		t.Errorf("Expected 2 entries swept, got %d", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 entry left, got %d", c.Len())
	}
	if c.GetStats().LastCleanup.IsZero() {
		t.Error("Expected LastCleanup to be set")
	}
}

func TestCacheHitRate(t *testing.T) {
	c := New[int](time.Minute)
	if c.HitRate() != 0 {
		t.Error("Expected 0 hit rate on empty cache")
	}

	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	if rate := c.HitRate(); rate != 75 {
		t.Errorf("Expected 75%% hit rate, got %.2f", rate)
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New[int](time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("dev-%d", n%5)
			for j := 0; j < 100; j++ {
				c.Set(key, j)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() != 5 {
		t.Errorf("Expected 5 keys, got %d", c.Len())
	}
}
