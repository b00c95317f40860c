package cache

import (
	"container/list"
	"sync"
	"time"
)

// EvictReason tells an evict callback why an entry left the cache.
type EvictReason string

const (
	EvictCapacity EvictReason = "capacity"
	EvictExpired  EvictReason = "expired"
	EvictRemoved  EvictReason = "removed"
	EvictCleared  EvictReason = "cleared"
)

type lruEntry[K comparable, V any] struct {
	key        K
	value      V
	lastUsedAt time.Time
}

// LRU is a thread-safe cache bounded by entry count.
// Front of the recency list is the most recently used entry.
type LRU[K comparable, V any] struct {
	capacity int
	items    map[K]*list.Element
	recency  *list.List
	mu       sync.Mutex
	now      func() time.Time
	onEvict  func(key K, value V, reason EvictReason)
}

// Option configures an LRU.
type Option[K comparable, V any] func(*LRU[K, V])

// WithClock overrides the time source used for lastUsedAt.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *LRU[K, V]) {
		if now != nil {
			c.now = now
		}
	}
}

// WithEvictCallback registers fn to run for every entry leaving the cache.
// fn runs with the cache lock held and must not call back into the cache.
func WithEvictCallback[K comparable, V any](fn func(key K, value V, reason EvictReason)) Option[K, V] {
	return func(c *LRU[K, V]) { c.onEvict = fn }
}

// NewLRU creates a cache holding at most capacity entries.
// It panics if capacity is not positive.
func NewLRU[K comparable, V any](capacity int, opts ...Option[K, V]) *LRU[K, V] {
	if capacity <= 0 {
		panic("cache: LRU capacity must be positive")
	}
	c := &LRU[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element, capacity),
		recency:  list.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key and refreshes its lastUsedAt.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*lruEntry[K, V])
		entry.lastUsedAt = c.now()
		c.recency.MoveToFront(elem)
		return entry.value, true
	}

	var zero V
	return zero, false
}

// Peek returns the value for key without touching it.
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		return elem.Value.(*lruEntry[K, V]).value, true
	}

	var zero V
	return zero, false
}

// Put inserts or replaces the value for key, marking it as just used.
// When the insert exceeds capacity the least recently used entry is evicted.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*lruEntry[K, V])
		entry.value = value
		entry.lastUsedAt = now
		c.recency.MoveToFront(elem)
		return
	}

	// Evict before inserting so the cache never holds more than capacity.
	for c.recency.Len() >= c.capacity {
		c.removeElement(c.recency.Back(), EvictCapacity)
	}

	elem := c.recency.PushFront(&lruEntry[K, V]{key: key, value: value, lastUsedAt: now})
	c.items[key] = elem
}

// Remove deletes key and reports whether it was present.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem, EvictRemoved)
		return true
	}
	return false
}

// RemoveFunc deletes every entry for which match returns true and returns the
// number of removed entries.
func (c *LRU[K, V]) RemoveFunc(match func(key K, value V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for elem := c.recency.Back(); elem != nil; {
		prev := elem.Prev()
		entry := elem.Value.(*lruEntry[K, V])
		if match(entry.key, entry.value) {
			c.removeElement(elem, EvictRemoved)
			removed++
		}
		elem = prev
	}
	return removed
}

// RemoveIdle deletes every entry whose lastUsedAt is older than maxIdle and
// returns the number of removed entries.
func (c *LRU[K, V]) RemoveIdle(maxIdle time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-maxIdle)
	removed := 0
	for elem := c.recency.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*lruEntry[K, V]).lastUsedAt.Before(cutoff) {
			c.removeElement(elem, EvictExpired)
			removed++
		}
		elem = prev
	}
	return removed
}

// LastUsed returns when key was last read or written.
func (c *LRU[K, V]) LastUsed(key K) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		return elem.Value.(*lruEntry[K, V]).lastUsedAt, true
	}
	return time.Time{}, false
}

// Keys returns keys ordered from most to least recently used.
func (c *LRU[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, c.recency.Len())
	for elem := c.recency.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*lruEntry[K, V]).key)
	}
	return keys
}

func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

func (c *LRU[K, V]) Cap() int { return c.capacity }

// Clear removes all entries.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.onEvict != nil {
		for _, elem := range c.items {
			entry := elem.Value.(*lruEntry[K, V])
			c.onEvict(entry.key, entry.value, EvictCleared)
		}
	}

	c.items = make(map[K]*list.Element, c.capacity)
	c.recency.Init()
}

// Must be called with lock held.
func (c *LRU[K, V]) removeElement(elem *list.Element, reason EvictReason) {
	c.recency.Remove(elem)
	entry := elem.Value.(*lruEntry[K, V])
	delete(c.items, entry.key)

	if c.onEvict != nil {
		c.onEvict(entry.key, entry.value, reason)
	}
}
