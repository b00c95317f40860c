package tools_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/ghlmux/pkg/ghl"
	"github.com/dmitrymomot/ghlmux/pkg/tenant"
	"github.com/dmitrymomot/ghlmux/svc/tools"
)

// upstream answers for any location, echoing the location id it was asked
// for so tests can tell tenants apart.
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("GET /locations/{id}", func(w http.ResponseWriter, r *http.Request) {
		write(w, map[string]any{"location": map[string]any{"id": r.PathValue("id"), "name": "Location " + r.PathValue("id")}})
	})
	mux.HandleFunc("GET /contacts/", func(w http.ResponseWriter, r *http.Request) {
		write(w, map[string]any{"contacts": []map[string]any{
			{"id": "c1", "locationId": r.URL.Query().Get("locationId"), "firstName": r.URL.Query().Get("query")},
		}})
	})
	mux.HandleFunc("GET /contacts/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			write(w, map[string]any{"message": "Contact not found"})
			return
		}
		write(w, map[string]any{"contact": map[string]any{"id": r.PathValue("id")}})
	})
	mux.HandleFunc("GET /calendars/", func(w http.ResponseWriter, _ *http.Request) {
		write(w, map[string]any{"calendars": []map[string]any{{"id": "cal1", "name": "Demo", "isActive": true}}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type callLog struct {
	mu    sync.Mutex
	calls map[string]int
	errs  int
}

func (l *callLog) ToolCall(tool string, _ time.Duration, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.calls == nil {
		l.calls = map[string]int{}
	}
	l.calls[tool]++
	if err != nil {
		l.errs++
	}
}

type env struct {
	svc     *tools.Service
	factory *ghl.Factory
	log     *callLog
	store   *tenant.MemoryStore
}

func newEnv(t *testing.T, fallback bool) *env {
	t.Helper()
	up := upstream(t)
	mk := func(id, loc string, active bool) *tenant.Tenant {
		return &tenant.Tenant{ID: id, Name: id, APIKey: "key-" + id, LocationID: loc, BaseURL: up.URL, Active: active}
	}
	store := tenant.NewMemoryStore(tenant.WithSeed(
		mk(tenant.DefaultID, "LD", true),
		mk("acme", "L1", true),
		mk("globex", "L2", true),
		mk("dormant", "L3", false),
	))
	f := ghl.NewFactory(ghl.WithSweepInterval(0))
	t.Cleanup(f.Destroy)

	log := &callLog{}
	svc := tools.New(f,
		tenant.NewResolver(store, tenant.WithFallback(fallback)),
		tenant.ProviderFunc(store.Get),
		tools.WithRecorder(log),
	)
	return &env{svc: svc, factory: f, log: log, store: store}
}

func connect(t *testing.T, srv *mcpsdk.Server) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientT, serverT := mcpsdk.NewInMemoryTransports()

	ss, err := srv.Connect(ctx, serverT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func callTool(t *testing.T, cs *mcpsdk.ClientSession, name string, args map[string]any, meta mcpsdk.Meta) *mcpsdk.CallToolResult {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{Name: name, Arguments: args, Meta: meta})
	require.NoError(t, err)
	return res
}

func structured[T any](t *testing.T, res *mcpsdk.CallToolResult) T {
	t.Helper()
	require.False(t, res.IsError, "unexpected tool error: %v", res.Content)
	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func errorText(t *testing.T, res *mcpsdk.CallToolResult) string {
	t.Helper()
	require.True(t, res.IsError)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestTools_ListsAllTools(t *testing.T) {
	t.Parallel()
	e := newEnv(t, true)
	cs := connect(t, e.svc.Server(nil))

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		tools.ToolGetLocation, tools.ToolSearchContacts, tools.ToolGetContact, tools.ToolListCalendars,
	}, names)
}

func TestTools_TenantFromMetadata(t *testing.T) {
	t.Parallel()
	e := newEnv(t, true)
	cs := connect(t, e.svc.Server(nil))

	acme := structured[ghl.Location](t, callTool(t, cs, tools.ToolGetLocation, nil, mcpsdk.Meta{"tenantId": "acme"}))
	assert.Equal(t, "L1", acme.ID)

	globex := structured[ghl.Location](t, callTool(t, cs, tools.ToolGetLocation, nil, mcpsdk.Meta{"tenantId": "globex"}))
	assert.Equal(t, "L2", globex.ID)

	// no metadata falls back to the default tenant
	def := structured[ghl.Location](t, callTool(t, cs, tools.ToolGetLocation, nil, nil))
	assert.Equal(t, "LD", def.ID)

	// unknown ids fall through to the default as well
	unknown := structured[ghl.Location](t, callTool(t, cs, tools.ToolGetLocation, nil, mcpsdk.Meta{"tenantId": "nobody"}))
	assert.Equal(t, "LD", unknown.ID)

	assert.Equal(t, 3, e.factory.Len())
}

func TestTools_NoTenantWithoutFallback(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)
	cs := connect(t, e.svc.Server(nil))

	text := errorText(t, callTool(t, cs, tools.ToolGetLocation, nil, nil))
	assert.Contains(t, text, tenant.ErrTenantRequired.Error())
	assert.Equal(t, 1, e.log.errs)
}

func TestTools_InactiveTenantRejected(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)
	cs := connect(t, e.svc.Server(nil))

	text := errorText(t, callTool(t, cs, tools.ToolListCalendars, nil, mcpsdk.Meta{"tenantId": "dormant"}))
	assert.Contains(t, text, tenant.ErrInactive.Error())
	assert.Zero(t, e.factory.Len())
}

func TestTools_BoundServerIgnoresMetadata(t *testing.T) {
	t.Parallel()
	e := newEnv(t, true)

	acme, err := e.store.Get(context.Background(), "acme")
	require.NoError(t, err)
	rc := tenant.NewRequestContext(acme, "req_1_1", tenant.RequestMetadata{Channel: tenant.ChannelStdio})
	cs := connect(t, e.svc.Server(rc))

	loc := structured[ghl.Location](t, callTool(t, cs, tools.ToolGetLocation, nil, mcpsdk.Meta{"tenantId": "globex"}))
	assert.Equal(t, "L1", loc.ID)
}

func TestTools_Operations(t *testing.T) {
	t.Parallel()
	e := newEnv(t, true)
	cs := connect(t, e.svc.Server(nil))
	meta := mcpsdk.Meta{"tenantId": "acme"}

	type contacts struct {
		Contacts []ghl.Contact `json:"contacts"`
		Count    int           `json:"count"`
	}
	found := structured[contacts](t, callTool(t, cs, tools.ToolSearchContacts, map[string]any{"query": "ada", "limit": 5}, meta))
	require.Equal(t, 1, found.Count)
	assert.Equal(t, "ada", found.Contacts[0].FirstName)
	assert.Equal(t, "L1", found.Contacts[0].LocationID)

	contact := structured[ghl.Contact](t, callTool(t, cs, tools.ToolGetContact, map[string]any{"contactId": "c42"}, meta))
	assert.Equal(t, "c42", contact.ID)

	type calendars struct {
		Calendars []ghl.Calendar `json:"calendars"`
	}
	cals := structured[calendars](t, callTool(t, cs, tools.ToolListCalendars, nil, meta))
	require.Len(t, cals.Calendars, 1)
	assert.True(t, cals.Calendars[0].IsActive)

	text := errorText(t, callTool(t, cs, tools.ToolGetContact, map[string]any{"contactId": "missing"}, meta))
	assert.Contains(t, text, "Contact not found")

	text = errorText(t, callTool(t, cs, tools.ToolGetContact, map[string]any{"contactId": " "}, meta))
	assert.Contains(t, text, tools.ErrMissingArgument.Error())

	e.log.mu.Lock()
	defer e.log.mu.Unlock()
	assert.Equal(t, 3, e.log.calls[tools.ToolGetContact])
	assert.Equal(t, 2, e.log.errs)
}

func TestTools_HTTPHandlerUsesRequestTenant(t *testing.T) {
	t.Parallel()
	e := newEnv(t, true)

	acme, err := e.store.Get(context.Background(), "acme")
	require.NoError(t, err)
	bind := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := tenant.NewRequestContext(acme, "req_1_1", tenant.RequestMetadata{Channel: tenant.ChannelHTTP})
			next.ServeHTTP(w, r.WithContext(tenant.WithRequestContext(r.Context(), rc)))
		})
	}
	srv := httptest.NewServer(bind(e.svc.HTTPHandler()))
	t.Cleanup(srv.Close)

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(context.Background(), &mcpsdk.StreamableClientTransport{Endpoint: srv.URL}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	loc := structured[ghl.Location](t, callTool(t, cs, tools.ToolGetLocation, nil, mcpsdk.Meta{"tenantId": "globex"}))
	assert.Equal(t, "L1", loc.ID)
}

func TestTools_UpstreamFailureIsNotLeaked(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)
	_, err := e.store.Create(context.Background(), &tenant.Tenant{
		ID: "offline", Name: "Offline", APIKey: "key-offline", LocationID: "L9",
		BaseURL: "http://127.0.0.1:1", Active: true,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	svc := tools.New(e.factory,
		tenant.NewResolver(e.store),
		tenant.ProviderFunc(e.store.Get),
		tools.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
	)
	cs := connect(t, svc.Server(nil))

	text := errorText(t, callTool(t, cs, tools.ToolGetLocation, nil, mcpsdk.Meta{"tenantId": "offline"}))
	assert.Equal(t, tools.ErrUpstreamFailed.Error(), text)
	assert.NotContains(t, text, "127.0.0.1")
	assert.Contains(t, buf.String(), "127.0.0.1:1", "the cause is logged")
}

func TestTools_HTTPHandlerSharedAcrossTenants(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)
	h := e.svc.HTTPHandler()

	serve := func(id string) string {
		rec, err := e.store.Get(context.Background(), id)
		require.NoError(t, err)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := tenant.NewRequestContext(rec, "req_1_1", tenant.RequestMetadata{Channel: tenant.ChannelHTTP})
			h.ServeHTTP(w, r.WithContext(tenant.WithRequestContext(r.Context(), rc)))
		}))
		t.Cleanup(srv.Close)
		return srv.URL
	}

	for id, want := range map[string]string{"acme": "L1", "globex": "L2"} {
		client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "v0"}, nil)
		cs, err := client.Connect(context.Background(), &mcpsdk.StreamableClientTransport{Endpoint: serve(id)}, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = cs.Close() })

		loc := structured[ghl.Location](t, callTool(t, cs, tools.ToolGetLocation, nil, nil))
		assert.Equal(t, want, loc.ID, "tenant %s", id)
	}

	// without a bound tenant and with fallback disabled nothing resolves
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(context.Background(), &mcpsdk.StreamableClientTransport{Endpoint: srv.URL}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	assert.Contains(t, errorText(t, callTool(t, cs, tools.ToolGetLocation, nil, nil)), tenant.ErrTenantRequired.Error())
}
