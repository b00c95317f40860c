package cache_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/ghlmux/pkg/cache"
)

func TestJanitor(t *testing.T) {
	t.Parallel()

	t.Run("sweeps until stopped", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		j := cache.NewJanitor(5*time.Millisecond, func() { calls.Add(1) })

		assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)

		j.Stop()
		after := calls.Load()
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, after, calls.Load())
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		t.Parallel()
		j := cache.NewJanitor(time.Hour, func() {})
		j.Stop()
		assert.NotPanics(t, j.Stop)
	})

	t.Run("invalid arguments panic", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { cache.NewJanitor(0, func() {}) })
		assert.Panics(t, func() { cache.NewJanitor(time.Second, nil) })
	})

	t.Run("expires idle entries without reaching capacity", func(t *testing.T) {
		t.Parallel()

		c := cache.NewLRU[string, int](100)
		c.Put("idle", 1)

		j := cache.NewJanitor(5*time.Millisecond, func() { c.RemoveIdle(10 * time.Millisecond) })
		defer j.Stop()

		assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 2*time.Millisecond)
	})
}
