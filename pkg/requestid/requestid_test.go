package requestid_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/ghlmux/pkg/requestid"
)

func TestGenerator(t *testing.T) {
	t.Parallel()

	t.Run("combines timestamp and counter", func(t *testing.T) {
		t.Parallel()
		at := time.UnixMilli(1735689600000)
		g := requestid.NewGenerator(func() time.Time { return at })

		assert.Equal(t, "req_1735689600000_1", g.Next())
		assert.Equal(t, "req_1735689600000_2", g.Next())
	})

	t.Run("ids are distinct under concurrency", func(t *testing.T) {
		t.Parallel()
		g := requestid.NewGenerator(nil)

		var (
			mu   sync.Mutex
			seen = make(map[string]struct{})
			wg   sync.WaitGroup
		)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 100 {
					id := g.Next()
					mu.Lock()
					seen[id] = struct{}{}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Len(t, seen, 1000)
	})

	t.Run("generated ids are valid", func(t *testing.T) {
		t.Parallel()
		id := requestid.New()
		assert.True(t, strings.HasPrefix(id, "req_"))
		assert.True(t, requestid.Valid(id))
	})
}

func TestValid(t *testing.T) {
	t.Parallel()

	assert.True(t, requestid.Valid("abc-123_XYZ"))
	assert.False(t, requestid.Valid(""))
	assert.False(t, requestid.Valid("has space"))
	assert.False(t, requestid.Valid("inject\nheader"))
	assert.False(t, requestid.Valid(strings.Repeat("a", 129)))
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("generates id when missing", func(t *testing.T) {
		t.Parallel()
		var got string
		h := requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = requestid.FromContext(r.Context())
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.NotEmpty(t, got)
		assert.Equal(t, got, rec.Header().Get(requestid.Header))
	})

	t.Run("keeps valid inbound id", func(t *testing.T) {
		t.Parallel()
		h := requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "upstream-id-1", requestid.FromContext(r.Context()))
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestid.Header, "upstream-id-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "upstream-id-1", rec.Header().Get(requestid.Header))
	})

	t.Run("replaces invalid inbound id", func(t *testing.T) {
		t.Parallel()
		h := requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestid.Header, "<script>")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.NotEqual(t, "<script>", rec.Header().Get(requestid.Header))
		assert.True(t, requestid.Valid(rec.Header().Get(requestid.Header)))
	})
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()
	extract := requestid.LoggerExtractor()

	_, ok := extract(context.Background())
	assert.False(t, ok)

	attr, ok := extract(requestid.WithContext(context.Background(), "req_1_1"))
	require.True(t, ok)
	assert.Equal(t, "request_id", attr.Key)
	assert.Equal(t, "req_1_1", attr.Value.String())
}
