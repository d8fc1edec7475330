package cache

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T, size int, clock *manualClock) *TTLCache {
	t.Helper()

	var c *TTLCache
	var err error
	if clock == nil {
		c, err = NewTTLCache(size, nil)
	} else {
		c, err = NewTTLCache(size, clock)
	}
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c
}

func TestTTLCache_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	clock := &manualClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	c := newTestCache(t, 8, clock)

	c.Set("top:1", []byte("report"), time.Minute)

	clock.Advance(59 * time.Second)
	got, ok := c.Get("top:1")
	if !ok || !bytes.Equal(got, []byte("report")) {
		t.Fatalf("expected cached report before ttl, got %q ok=%v", got, ok)
	}

	clock.Advance(time.Second)
	if _, ok := c.Get("top:1"); ok {
		t.Fatalf("expected entry to expire at ttl")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry to be removed, len=%d", c.Len())
	}
}

func TestTTLCache_ReturnsCopies(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, 8, nil)

	value := []byte("abc")
	c.Set("k", value, time.Minute)
	value[0] = 'x'

	got, ok := c.Get("k")
	if !ok || string(got) != "abc" {
		t.Fatalf("expected stored copy, got %q ok=%v", got, ok)
	}

	got[1] = 'y'
	if again, _ := c.Get("k"); string(again) != "abc" {
		t.Fatalf("expected returned copy, got %q", again)
	}
}

func TestTTLCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, 2, nil)

	c.Set("a", []byte("1"), time.Minute)
	c.Set("b", []byte("2"), time.Minute)
	_, _ = c.Get("a")
	c.Set("c", []byte("3"), time.Minute)

	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected least recently used entry to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected recently used entry to survive")
	}
}

func TestTTLCache_DeleteAndPurge(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, 4, nil)

	c.Set("a", []byte("1"), time.Minute)
	c.Set("b", []byte("2"), time.Minute)
	c.Set("skip", []byte("3"), 0)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected deleted entry to be gone")
	}
	if _, ok := c.Get("skip"); ok {
		t.Fatalf("expected zero ttl to store nothing")
	}

	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after purge, len=%d", c.Len())
	}
}

func TestNewTTLCache_RejectsInvalidSize(t *testing.T) {
	t.Parallel()

	if _, err := NewTTLCache(0, nil); err == nil {
		t.Fatalf("expected error for zero size")
	}
}
