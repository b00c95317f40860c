package tenant_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/ghlmux/pkg/tenant"
	"github.com/dmitrymomot/ghlmux/pkg/tenant/storetest"
)

func seededStore(ids ...string) *tenant.MemoryStore {
	ts := make([]*tenant.Tenant, 0, len(ids))
	for _, id := range ids {
		ts = append(ts, storetest.Sample(id))
	}
	return tenant.NewMemoryStore(tenant.WithSeed(ts...))
}

func TestResolver_SourcesAgree(t *testing.T) {
	t.Parallel()

	r := tenant.NewResolver(seededStore("acme"), tenant.WithFallback(false))

	byHeader := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	byHeader.Header.Set("X-TENANT-ID", "acme")
	byQuery := httptest.NewRequest(http.MethodGet, "/mcp?tenant=acme", nil)
	byPath := httptest.NewRequest(http.MethodGet, "/tenant/acme/mcp", nil)

	want := map[*http.Request]tenant.Source{
		byHeader: tenant.SourceHeader,
		byQuery:  tenant.SourceQuery,
		byPath:   tenant.SourcePath,
	}
	for req, source := range want {
		id, ok, err := r.ResolveRequest(req)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "acme", id.TenantID)
		assert.Equal(t, source, id.Source)
	}
}

func TestResolver_Order(t *testing.T) {
	t.Parallel()

	r := tenant.NewResolver(seededStore("acme", "globex", "initech", tenant.DefaultID))

	tests := []struct {
		name       string
		target     string
		header     string
		wantID     string
		wantSource tenant.Source
	}{
		{"header wins", "/tenant/initech/x?tenant=globex", "acme", "acme", tenant.SourceHeader},
		{"query before path", "/tenant/initech/x?tenant=globex", "", "globex", tenant.SourceQuery},
		{"path", "/tenant/initech/x", "", "initech", tenant.SourcePath},
		{"unknown header falls through", "/x?tenant=globex", "nobody", "globex", tenant.SourceQuery},
		{"unknown everywhere falls back", "/tenant/nobody/x?tenant=nobody", "nobody", tenant.DefaultID, tenant.SourceDefault},
		{"malformed header ignored", "/x", "bad id", tenant.DefaultID, tenant.SourceDefault},
		{"path without trailing segment", "/tenant/initech", "", tenant.DefaultID, tenant.SourceDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(tenant.DefaultHeader, tt.header)
			}

			id, ok, err := r.ResolveRequest(req)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.wantID, id.TenantID)
			assert.Equal(t, tt.wantSource, id.Source)
		})
	}
}

func TestResolver_None(t *testing.T) {
	t.Parallel()

	t.Run("fallback disabled", func(t *testing.T) {
		t.Parallel()
		r := tenant.NewResolver(seededStore("acme", tenant.DefaultID), tenant.WithFallback(false))

		req := httptest.NewRequest(http.MethodGet, "/x?tenant=nobody", nil)
		_, ok, err := r.ResolveRequest(req)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("fallback enabled but no default record", func(t *testing.T) {
		t.Parallel()
		r := tenant.NewResolver(seededStore("acme"), tenant.WithFallback(true))

		_, ok, err := r.ResolveRequest(httptest.NewRequest(http.MethodGet, "/x", nil))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestResolver_CustomNames(t *testing.T) {
	t.Parallel()

	r := tenant.NewResolver(seededStore("acme"),
		tenant.WithHeader("X-Account"),
		tenant.WithQueryParam("account"),
		tenant.WithFallback(false),
	)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("x-account", "acme")
	id, ok, err := r.ResolveRequest(req)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tenant.SourceHeader, id.Source)

	id, ok, err = r.ResolveRequest(httptest.NewRequest(http.MethodGet, "/x?account=acme", nil))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tenant.SourceQuery, id.Source)
}

func TestResolver_CLI(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := tenant.NewResolver(seededStore("acme", "globex", tenant.DefaultID))

	id, ok, err := r.ResolveCLI(ctx, "acme", "globex")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tenant.Identifier{TenantID: "acme", Source: tenant.SourceFlag}, id)

	id, _, _ = r.ResolveCLI(ctx, "", "globex")
	assert.Equal(t, tenant.Identifier{TenantID: "globex", Source: tenant.SourceEnv}, id)

	id, _, _ = r.ResolveCLI(ctx, "nobody", "")
	assert.Equal(t, tenant.Identifier{TenantID: tenant.DefaultID, Source: tenant.SourceDefault}, id)
}

func TestResolver_Metadata(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := tenant.NewResolver(seededStore("acme", tenant.DefaultID))

	id, ok, err := r.ResolveMetadata(ctx, map[string]any{"tenantId": "acme"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tenant.SourceMetadata, id.Source)

	id, ok, err = r.ResolveMetadata(ctx, map[string]any{"tenantId": 42})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tenant.SourceDefault, id.Source)

	id, _, _ = r.ResolveMetadata(ctx, nil)
	assert.Equal(t, tenant.DefaultID, id.TenantID)
}

type brokenStore struct{ tenant.Store }

func (brokenStore) Exists(context.Context, string) (bool, error) { return false, errors.New("db down") }

func TestResolver_StoreError(t *testing.T) {
	t.Parallel()
	r := tenant.NewResolver(brokenStore{})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(tenant.DefaultHeader, "acme")
	_, ok, err := r.ResolveRequest(req)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestValidateTenant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inactive := storetest.Sample("inactive")
	inactive.Active = false
	noKey := storetest.Sample("nokey")
	noKey.APIKey = ""
	noLoc := storetest.Sample("noloc")
	noLoc.LocationID = ""

	r := tenant.NewResolver(tenant.NewMemoryStore(tenant.WithSeed(storetest.Sample("acme"), inactive, noKey, noLoc)))

	assert.NoError(t, r.ValidateTenant(ctx, "acme"))
	assert.ErrorIs(t, r.ValidateTenant(ctx, "missing"), tenant.ErrNotFound)
	assert.ErrorIs(t, r.ValidateTenant(ctx, "inactive"), tenant.ErrInactive)
	assert.ErrorIs(t, r.ValidateTenant(ctx, "nokey"), tenant.ErrIncomplete)
	assert.ErrorIs(t, r.ValidateTenant(ctx, "noloc"), tenant.ErrIncomplete)
}

func TestValidate_InactiveNeverValid(t *testing.T) {
	t.Parallel()

	for _, mutate := range []func(*tenant.Tenant){
		func(*tenant.Tenant) {},
		func(tt *tenant.Tenant) { tt.APIKey = "" },
		func(tt *tenant.Tenant) { tt.Settings = nil },
		func(tt *tenant.Tenant) { tt.RateLimits = tenant.RateLimits{} },
	} {
		tt := storetest.Sample("x")
		tt.Active = false
		mutate(tt)
		assert.Error(t, tenant.Validate(tt))
	}
	assert.ErrorIs(t, tenant.Validate(nil), tenant.ErrNotFound)
}

func TestValidID(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"acme", "ACME_1", "a-b", "default"} {
		assert.True(t, tenant.ValidID(id), id)
	}
	for _, id := range []string{"", "a b", "a/b", "ä", "a.b"} {
		assert.False(t, tenant.ValidID(id), id)
	}
}
