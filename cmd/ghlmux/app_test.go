package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/ghlmux/pkg/config"
	"github.com/dmitrymomot/ghlmux/svc/tools"
)

func fakeGHL(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /locations/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"location": map[string]any{"id": r.PathValue("id"), "name": "HQ"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T, vars map[string]string) *app {
	t.Helper()
	base := map[string]string{
		"LOG_LEVEL":      "error",
		"ENCRYPTION_KEY": "test-encryption-key",
		"ADMIN_API_KEY":  "admin-token",
	}
	for k, v := range vars {
		base[k] = v
	}
	cfg, err := loadConfig(config.WithEnvironment(base))
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func get(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestApp_Router(t *testing.T) {
	t.Parallel()
	up := fakeGHL(t)
	a := newTestApp(t, map[string]string{
		"GHL_API_KEY":     "default-key",
		"GHL_LOCATION_ID": "LD",
		"GHL_BASE_URL":    up.URL,
		"TENANT_REQUIRED": "true",
	})
	h := a.router()

	t.Run("probes", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, get(t, h, "/healthz", "").Code)
		assert.Equal(t, http.StatusOK, get(t, h, "/readyz", "").Code)
	})

	t.Run("admin requires a token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, get(t, h, "/admin/tenants", "").Code)
		assert.Equal(t, http.StatusForbidden, get(t, h, "/admin/tenants", "wrong").Code)
	})

	t.Run("admin lists the default tenant without its credential", func(t *testing.T) {
		rec := get(t, h, "/admin/tenants", "admin-token")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"tenantId":"default"`)
		assert.NotContains(t, rec.Body.String(), "default-key")
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("default tenant cannot be deleted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/admin/tenants/default", nil)
		req.Header.Set("Authorization", "Bearer admin-token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("metrics", func(t *testing.T) {
		rec := get(t, h, "/metrics", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body, err := io.ReadAll(rec.Body)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(body), "ghlmux_admin_operations_total"), "admin metrics exported")
	})
}

func TestApp_MCPRequiresTenant(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, map[string]string{
		"TENANT_REQUIRED":         "true",
		"TENANT_FALLBACK_ENABLED": "false",
	})
	h := a.router()

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "tenant_required")
}

func TestApp_MCPRejectionsAreInstrumented(t *testing.T) {
	t.Parallel()
	up := fakeGHL(t)
	a := newTestApp(t, map[string]string{
		"GHL_API_KEY":             "default-key",
		"GHL_LOCATION_ID":         "LD",
		"GHL_BASE_URL":            up.URL,
		"RATE_LIMIT_MAX_REQUESTS": "1",
	})
	h := a.router()

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/mcp?tenant=default", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, http.StatusTooManyRequests, codes[1])
	require.Equal(t, http.StatusTooManyRequests, codes[2])

	body := get(t, h, "/metrics", "").Body.String()
	assert.Contains(t, body, `ghlmux_tenant_rate_limited_total{tenant="default"} 2`)
	assert.Contains(t, body, `ghlmux_http_requests_total{code="429",handler="mcp"} 2`)
}

func TestApp_MCPToolCallOverHTTP(t *testing.T) {
	t.Parallel()
	up := fakeGHL(t)
	a := newTestApp(t, map[string]string{
		"GHL_API_KEY":     "default-key",
		"GHL_LOCATION_ID": "LD",
		"GHL_BASE_URL":    up.URL,
	})
	srv := httptest.NewServer(a.router())
	t.Cleanup(srv.Close)

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(context.Background(), &mcpsdk.StreamableClientTransport{Endpoint: srv.URL + "/mcp?tenant=default"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{Name: tools.ToolGetLocation, Arguments: map[string]any{}})
	require.NoError(t, err)
	require.False(t, res.IsError, "%v", res.Content)

	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"id":"LD"`)
	assert.Equal(t, 1, a.factory.Len())
}

func TestApp_TenantForCLI(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, map[string]string{
		"GHL_API_KEY":     "default-key",
		"GHL_LOCATION_ID": "LD",
	})

	rc, err := a.tenantForCLI(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "default", rc.TenantID())
	assert.Equal(t, "default-key", rc.Tenant().APIKey)
}

func TestApp_UnknownStore(t *testing.T) {
	t.Parallel()
	cfg, err := loadConfig(config.WithEnvironment(map[string]string{
		"LOG_LEVEL":    "error",
		"TENANT_STORE": "etcd",
	}))
	require.NoError(t, err)

	_, err = newApp(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownStore)
}

func TestApp_ProductionNeedsEncryptionKey(t *testing.T) {
	t.Parallel()
	cfg, err := loadConfig(config.WithEnvironment(map[string]string{
		"LOG_LEVEL": "error",
		"APP_ENV":   "production",
	}))
	require.NoError(t, err)

	_, err = newApp(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrMissingEncryptionKey)
}
