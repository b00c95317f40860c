package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"
)

// FixedWindow allows up to a limit of requests per key in consecutive,
// non-overlapping windows. Counting is delegated to the Store, which
// increments atomically, so concurrent requests never under-count.
type FixedWindow struct {
	store  Store
	limit  int
	window time.Duration
	now    func() time.Time
}

// Option configures a FixedWindow.
type Option func(*FixedWindow)

// WithClock overrides the limiter clock.
func WithClock(now func() time.Time) Option {
	return func(l *FixedWindow) {
		if now != nil {
			l.now = now
		}
	}
}

// NewFixedWindow creates a limiter allowing limit requests per window.
func NewFixedWindow(store Store, limit int, window time.Duration, opts ...Option) (*FixedWindow, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if window <= 0 {
		return nil, ErrInvalidWindow
	}

	l := &FixedWindow{store: store, limit: limit, window: window, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Allow records one request for key. A positive limit overrides the default
// limit for this key; the window length is shared.
func (l *FixedWindow) Allow(ctx context.Context, key string, limit int) (*Result, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}
	if limit <= 0 {
		limit = l.limit
	}

	now := l.now()
	count, resetAt, err := l.store.Increment(ctx, key, l.window, now)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}

	res := &Result{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: max(limit-int(count), 0),
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = min(max(resetAt.Sub(now), 0), l.window)
	}
	return res, nil
}

// Reset clears the counter for key.
func (l *FixedWindow) Reset(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	return l.store.Delete(ctx, key)
}

// Window returns the configured window length.
func (l *FixedWindow) Window() time.Duration { return l.window }

// Limit returns the default limit.
func (l *FixedWindow) Limit() int { return l.limit }

// PerWindow converts a per-minute rate into a limit for window, rounding up.
// A non-positive rate yields 0, which Allow reads as "use the default".
func PerWindow(perMinute int, window time.Duration) int {
	if perMinute <= 0 || window <= 0 {
		return 0
	}
	n := math.Ceil(float64(perMinute) * window.Minutes())
	if n >= math.MaxInt32 {
		return math.MaxInt32
	}
	return max(int(n), 1)
}
