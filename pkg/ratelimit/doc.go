// Package ratelimit implements per-key fixed-window rate limiting.
//
// Each key (typically a tenant id) gets a counter that starts on the first
// request and lives for one window. Requests beyond the limit inside the
// window are rejected with the time remaining until the window ends. An
// elapsed window is replaced lazily by the next request.
//
// Two stores are provided: MemoryStore for a single process, with a periodic
// sweep of elapsed windows, and RedisStore for quotas shared across processes.
//
//	store := ratelimit.NewMemoryStore()
//	defer store.Close()
//	limiter, err := ratelimit.NewFixedWindow(store, 100, time.Minute)
//	res, err := limiter.Allow(ctx, tenantID, 0)
//	if !res.Allowed {
//		ratelimit.SetHeaders(w, res)
//		// respond 429
//	}
package ratelimit
