// Package cache provides the short-lived result cache used by report queries.
package cache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"tasktime/internal/timeutil"
)

type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
	Purge()
}

type item struct {
	value     []byte
	expiresAt time.Time
}

// TTLCache is a size-bounded LRU whose entries expire according to an injected clock.
type TTLCache struct {
	entries *lru.Cache[string, item]
	clock   timeutil.Clock
}

func NewTTLCache(size int, clock timeutil.Clock) (*TTLCache, error) {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	entries, err := lru.New[string, item](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &TTLCache{entries: entries, clock: clock}, nil
}

func (c *TTLCache) Get(key string) ([]byte, bool) {
	cached, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(cached.expiresAt) {
		c.entries.Remove(key)
		return nil, false
	}
	return append([]byte(nil), cached.value...), true
}

// Set stores a copy of value. A non-positive ttl stores nothing.
func (c *TTLCache) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.entries.Add(key, item{
		value:     append([]byte(nil), value...),
		expiresAt: c.clock.Now().Add(ttl),
	})
}

func (c *TTLCache) Delete(key string) {
	c.entries.Remove(key)
}

func (c *TTLCache) Purge() {
	c.entries.Purge()
}

func (c *TTLCache) Len() int {
	return c.entries.Len()
}
