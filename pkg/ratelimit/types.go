package ratelimit

import (
	"context"
	"time"
)

// Result describes one rate limit decision.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the current window ends and the counter starts over.
	ResetAt time.Time
	// RetryAfter is zero for allowed requests; otherwise the time left in the
	// window, never longer than the window itself.
	RetryAfter time.Duration
}

// Store keeps fixed-window counters.
type Store interface {
	// Increment atomically adds one to the counter for key and returns the new
	// count and the end of the window. A missing or expired counter starts a
	// new window beginning at now.
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (count int64, resetAt time.Time, err error)

	// Delete drops the counter for key.
	Delete(ctx context.Context, key string) error
}
