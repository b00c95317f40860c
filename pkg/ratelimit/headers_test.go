package ratelimit_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/ghlmux/pkg/ratelimit"
)

func TestSetHeaders(t *testing.T) {
	t.Parallel()
	reset := time.Unix(1735732800, 0)

	t.Run("allowed", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		ratelimit.SetHeaders(rec, &ratelimit.Result{Allowed: true, Limit: 10, Remaining: 7, ResetAt: reset})

		assert.Equal(t, "10", rec.Header().Get(ratelimit.HeaderLimit))
		assert.Equal(t, "7", rec.Header().Get(ratelimit.HeaderRemaining))
		assert.Equal(t, "1735732800", rec.Header().Get(ratelimit.HeaderReset))
		assert.Empty(t, rec.Header().Get(ratelimit.HeaderRetryAfter))
	})

	t.Run("rejected rounds retry-after up", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		ratelimit.SetHeaders(rec, &ratelimit.Result{Limit: 10, ResetAt: reset, RetryAfter: 1500 * time.Millisecond})

		assert.Equal(t, "2", rec.Header().Get(ratelimit.HeaderRetryAfter))
	})

	t.Run("retry-after is at least one second", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 1, ratelimit.RetryAfterSeconds(&ratelimit.Result{RetryAfter: 10 * time.Millisecond}))
	})
}
