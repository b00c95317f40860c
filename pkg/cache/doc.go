// Package cache provides a generic, concurrency-safe LRU cache that tracks
// when each entry was last used, plus a Janitor that expires idle entries on a
// fixed interval.
//
// Capacity eviction and idle expiry are independent. The LRU evicts the least
// recently used entry only when an insert would exceed capacity; the Janitor
// removes every entry idle for longer than a TTL whenever it ticks, even if
// the cache never fills up.
//
//	c := cache.NewLRU[string, *Client](100,
//		cache.WithEvictCallback(func(k string, v *Client, r cache.EvictReason) {
//			log.Debug("client evicted", "key", k, "reason", r)
//		}),
//	)
//	j := cache.NewJanitor(15*time.Minute, func() { c.RemoveIdle(time.Hour) })
//	defer j.Stop()
package cache
