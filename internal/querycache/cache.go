// Package querycache keeps the results of listing queries for a short time
// and lets writers mark them stale by key prefix.
package querycache

import (
	"context"
	"strings"
	"sync"
	"time"
)

const keySep = "\x1f"

type entry struct {
	key     []string
	value   any
	expires time.Time
}

// Cache maps query keys to loaded values. Keys are string tuples;
// invalidating ["opportunities"] drops ["opportunities", "coding"] too.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
	// epoch counts Invalidate calls; a load that straddles one is not stored
	epoch uint64

	subMu       sync.RWMutex
	nextSub     int
	subscribers map[int]func(key []string)
}

func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:         ttl,
		now:         time.Now,
		entries:     make(map[string]entry),
		subscribers: make(map[int]func([]string)),
	}
}

// Fetch returns the cached value for key or calls load and caches its
// result. Load errors are returned and not cached.
func Fetch[V any](ctx context.Context, c *Cache, key []string, load func(context.Context) (V, error)) (V, error) {
	id := joinKey(key)

	c.mu.Lock()
	epoch := c.epoch
	if e, ok := c.entries[id]; ok && c.now().Before(e.expires) {
		c.mu.Unlock()
		if v, ok := e.value.(V); ok {
			return v, nil
		}
	} else {
		c.mu.Unlock()
	}

	v, err := load(ctx)
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	if c.epoch == epoch {
		c.entries[id] = entry{key: append([]string(nil), key...), value: v, expires: c.now().Add(c.ttl)}
	}
	c.mu.Unlock()
	return v, nil
}

// Invalidate drops every entry whose key starts with key and notifies
// subscribers.
func (c *Cache) Invalidate(key ...string) {
	c.mu.Lock()
	c.epoch++
	for id, e := range c.entries {
		if hasPrefix(e.key, key) {
			delete(c.entries, id)
		}
	}
	c.mu.Unlock()

	c.subMu.RLock()
	subs := make([]func([]string), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.subMu.RUnlock()

	for _, fn := range subs {
		fn(append([]string(nil), key...))
	}
}

// OnInvalidate registers fn for every Invalidate call and returns a func
// that removes it.
func (c *Cache) OnInvalidate(fn func(key []string)) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subscribers, id)
		c.subMu.Unlock()
	}
}

// Len reports how many entries are held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func joinKey(key []string) string {
	return strings.Join(key, keySep)
}

func hasPrefix(key, prefix []string) bool {
	if len(prefix) > len(key) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}
