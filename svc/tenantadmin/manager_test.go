package tenantadmin_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/ghlmux/pkg/secrets"
	"github.com/dmitrymomot/ghlmux/pkg/tenant"
	"github.com/dmitrymomot/ghlmux/pkg/validator"
	"github.com/dmitrymomot/ghlmux/svc/tenantadmin"
)

var errUpstreamDown = errors.New("upstream rejected credential")

type fixture struct {
	store   *countingStore
	cipher  *secrets.Cipher
	tests   atomic.Int64
	cleared *clearLog
	ops     *opLog
	mgr     *tenantadmin.Manager
}

// countingStore records how many calls reached the store.
type countingStore struct {
	tenant.Store
	calls atomic.Int64
}

func (s *countingStore) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	s.calls.Add(1)
	return s.Store.Get(ctx, id)
}

func (s *countingStore) Exists(ctx context.Context, id string) (bool, error) {
	s.calls.Add(1)
	return s.Store.Exists(ctx, id)
}

func (s *countingStore) Create(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	s.calls.Add(1)
	return s.Store.Create(ctx, t)
}

type clearLog struct {
	mu  sync.Mutex
	ids []string
}

func (c *clearLog) ClearTenantCache(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, id)
	return 1
}

func (c *clearLog) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (o *opLog) AdminOp(op string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.ops = append(o.ops, op+":"+result)
}

func newFixture(t *testing.T, seed ...*tenant.Tenant) *fixture {
	t.Helper()
	secret, err := secrets.GenerateSecret()
	require.NoError(t, err)
	c, err := secrets.New(secret)
	require.NoError(t, err)

	f := &fixture{
		store:   &countingStore{Store: tenant.NewMemoryStore(tenant.WithSeed(seed...))},
		cipher:  c,
		cleared: &clearLog{},
		ops:     &opLog{},
	}
	tester := tenantadmin.TesterFunc(func(_ context.Context, tn *tenant.Tenant) error {
		f.tests.Add(1)
		if tn.APIKey != "good-key" {
			return errUpstreamDown
		}
		return nil
	})
	f.mgr = tenantadmin.NewManager(f.store, c,
		tenantadmin.WithTester(tester),
		tenantadmin.WithInvalidator(f.cleared),
		tenantadmin.WithRecorder(f.ops),
		tenantadmin.WithClock(func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }),
	)
	return f
}

func validRequest() tenantadmin.CreateRequest {
	return tenantadmin.CreateRequest{
		ID:         "acme",
		Name:       "Acme",
		APIKey:     "good-key",
		LocationID: "L1",
	}
}

func TestCreateTenant(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.mgr.CreateTenant(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, "acme", created.ID)
	assert.Equal(t, "good-key", created.APIKey)
	assert.True(t, created.Active)
	assert.EqualValues(t, 1, f.tests.Load())

	raw, err := f.store.Get(ctx, "acme")
	require.NoError(t, err)
	assert.NotEqual(t, "good-key", raw.APIKey)
	assert.True(t, secrets.IsEncrypted(raw.APIKey))

	plain, err := f.cipher.Decrypt(raw.APIKey)
	require.NoError(t, err)
	assert.Equal(t, "good-key", plain)

	assert.Equal(t, []string{"create:ok"}, f.ops.ops)
}

func TestCreateTenant_GeneratedID(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req := validRequest()
	req.ID = ""
	created, err := f.mgr.CreateTenant(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, tenant.ValidID(created.ID))
	assert.Regexp(t, `^tenant_1740830400000_[0-9a-f]{8}$`, created.ID)
}

func TestCreateTenant_InvalidIDNeverReachesStore(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req := validRequest()
	req.ID = "has space"
	_, err := f.mgr.CreateTenant(context.Background(), req)

	require.ErrorIs(t, err, tenant.ErrInvalidInput)
	require.ErrorIs(t, err, validator.ErrValidationFailed)
	assert.True(t, validator.ExtractValidationErrors(err).Has("tenantId"))
	assert.Zero(t, f.store.calls.Load())
	assert.Zero(t, f.tests.Load())
}

func TestCreateTenant_MissingFields(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.mgr.CreateTenant(context.Background(), tenantadmin.CreateRequest{Name: "  "})
	require.ErrorIs(t, err, tenant.ErrInvalidInput)

	ve := validator.ExtractValidationErrors(err)
	for _, field := range []string{"name", "apiKey", "locationId"} {
		assert.True(t, ve.Has(field), field)
	}
}

func TestCreateTenant_Collision(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &tenant.Tenant{ID: "acme", Name: "Existing", APIKey: "k", LocationID: "L", Active: true})

	_, err := f.mgr.CreateTenant(context.Background(), validRequest())
	assert.ErrorIs(t, err, tenant.ErrAlreadyExists)
	assert.Zero(t, f.tests.Load())
}

func TestCreateTenant_FailedTestIsNotPersisted(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	req := validRequest()
	req.APIKey = "bad-key"
	_, err := f.mgr.CreateTenant(ctx, req)
	require.ErrorIs(t, err, tenant.ErrInvalidConfiguration)
	assert.ErrorIs(t, err, errUpstreamDown)

	ok, err := f.store.Exists(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"create:error"}, f.ops.ops)
}

func TestCreateTenant_NormalizesName(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req := validRequest()
	req.Name = "  Cafe\u0301 "
	created, err := f.mgr.CreateTenant(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Caf\u00e9", created.Name)
}

func TestGetTenant(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &tenant.Tenant{ID: "legacy", Name: "Legacy", APIKey: "plain-key", LocationID: "L", Active: true})
	ctx := context.Background()

	_, err := f.mgr.CreateTenant(ctx, validRequest())
	require.NoError(t, err)

	got, err := f.mgr.GetTenant(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "good-key", got.APIKey)

	// records saved before encryption was enabled keep working
	legacy, err := f.mgr.GetTenant(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, "plain-key", legacy.APIKey)

	_, err = f.mgr.GetTenant(ctx, "missing")
	assert.ErrorIs(t, err, tenant.ErrNotFound)
}

func TestGetAllTenants_StripsCredentials(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []string{"b", "a"} {
		req := validRequest()
		req.ID = id
		_, err := f.mgr.CreateTenant(ctx, req)
		require.NoError(t, err)
	}

	all, err := f.mgr.GetAllTenants(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, tn := range all {
		assert.Empty(t, tn.APIKey, tn.ID)
		assert.Equal(t, "L1", tn.LocationID)
	}
}

func TestUpdateTenant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("non connection change skips the upstream test", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.mgr.CreateTenant(ctx, validRequest())
		require.NoError(t, err)

		updated, err := f.mgr.UpdateTenant(ctx, "acme", tenant.Update{Name: tenant.Ptr("Acme Inc")})
		require.NoError(t, err)
		assert.Equal(t, "Acme Inc", updated.Name)
		assert.Equal(t, "good-key", updated.APIKey)
		assert.EqualValues(t, 1, f.tests.Load())
		assert.Equal(t, []string{"acme"}, f.cleared.list())
	})

	t.Run("credential change is tested and encrypted", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, &tenant.Tenant{ID: "acme", Name: "Acme", APIKey: "old", LocationID: "L1", Active: true})

		updated, err := f.mgr.UpdateTenant(ctx, "acme", tenant.Update{APIKey: tenant.Ptr("good-key")})
		require.NoError(t, err)
		assert.Equal(t, "good-key", updated.APIKey)
		assert.EqualValues(t, 1, f.tests.Load())

		raw, err := f.store.Get(ctx, "acme")
		require.NoError(t, err)
		assert.True(t, secrets.IsEncrypted(raw.APIKey))
		assert.Equal(t, []string{"acme"}, f.cleared.list())
	})

	t.Run("failed test leaves the record untouched", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.mgr.CreateTenant(ctx, validRequest())
		require.NoError(t, err)

		_, err = f.mgr.UpdateTenant(ctx, "acme", tenant.Update{
			APIKey:     tenant.Ptr("bad-key"),
			LocationID: tenant.Ptr("L2"),
		})
		require.ErrorIs(t, err, tenant.ErrInvalidConfiguration)

		got, err := f.mgr.GetTenant(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "good-key", got.APIKey)
		assert.Equal(t, "L1", got.LocationID)
		assert.Empty(t, f.cleared.list())
	})

	t.Run("location change is tested with the stored credential", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.mgr.CreateTenant(ctx, validRequest())
		require.NoError(t, err)

		updated, err := f.mgr.UpdateTenant(ctx, "acme", tenant.Update{LocationID: tenant.Ptr("L2")})
		require.NoError(t, err)
		assert.Equal(t, "L2", updated.LocationID)
		assert.EqualValues(t, 2, f.tests.Load())
	})

	t.Run("unknown tenant", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.mgr.UpdateTenant(ctx, "ghost", tenant.Update{Name: tenant.Ptr("x")})
		assert.ErrorIs(t, err, tenant.ErrNotFound)
	})

	t.Run("empty credential is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.mgr.UpdateTenant(ctx, "acme", tenant.Update{APIKey: tenant.Ptr("")})
		assert.ErrorIs(t, err, tenant.ErrInvalidInput)
	})
}

func TestUpdateTenant_SealsPlaintextDefault(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "tenants.json")
	primary, err := tenant.NewFileStore(path)
	require.NoError(t, err)
	store := tenant.NewFallbackStore(primary, tenant.NewEnvStore(tenant.EnvConfig{
		APIKey:     "super-secret-key",
		LocationID: "L1",
	}))

	secret, err := secrets.GenerateSecret()
	require.NoError(t, err)
	c, err := secrets.New(secret)
	require.NoError(t, err)

	var tested atomic.Int64
	mgr := tenantadmin.NewManager(store, c, tenantadmin.WithTester(tenantadmin.TesterFunc(
		func(context.Context, *tenant.Tenant) error {
			tested.Add(1)
			return nil
		})))

	updated, err := mgr.SetTenantActive(ctx, tenant.DefaultID, false)
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, "super-secret-key", updated.APIKey)
	assert.Zero(t, tested.Load(), "sealing the stored credential is not a connection change")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "super-secret-key")

	stored, err := primary.Get(ctx, tenant.DefaultID)
	require.NoError(t, err)
	assert.True(t, secrets.IsEncrypted(stored.APIKey))

	got, err := mgr.GetTenant(ctx, tenant.DefaultID)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-key", got.APIKey)
	assert.False(t, got.Active)
}

func TestSetTenantActive(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.CreateTenant(ctx, validRequest())
	require.NoError(t, err)

	off, err := f.mgr.SetTenantActive(ctx, "acme", false)
	require.NoError(t, err)
	assert.False(t, off.Active)
	assert.ErrorIs(t, tenant.Validate(off), tenant.ErrInactive)

	on, err := f.mgr.SetTenantActive(ctx, "acme", true)
	require.NoError(t, err)
	assert.NoError(t, tenant.Validate(on))
}

func TestDeleteTenant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("default is protected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, &tenant.Tenant{ID: tenant.DefaultID, Name: "Default", APIKey: "k", LocationID: "L", Active: true})
		assert.ErrorIs(t, f.mgr.DeleteTenant(ctx, tenant.DefaultID), tenant.ErrForbidden)

		ok, err := f.store.Exists(ctx, tenant.DefaultID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("default is protected even when absent", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		assert.ErrorIs(t, f.mgr.DeleteTenant(ctx, tenant.DefaultID), tenant.ErrForbidden)
		assert.Zero(t, f.store.calls.Load())
	})

	t.Run("removes and invalidates", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.mgr.CreateTenant(ctx, validRequest())
		require.NoError(t, err)

		require.NoError(t, f.mgr.DeleteTenant(ctx, "acme"))
		assert.Equal(t, []string{"acme"}, f.cleared.list())

		_, err = f.mgr.GetTenant(ctx, "acme")
		assert.ErrorIs(t, err, tenant.ErrNotFound)
	})

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		assert.ErrorIs(t, f.mgr.DeleteTenant(ctx, "ghost"), tenant.ErrNotFound)
	})
}

func TestTestTenant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, &tenant.Tenant{ID: "stale", Name: "Stale", APIKey: "revoked", LocationID: "L", Active: true})

	_, err := f.mgr.CreateTenant(ctx, validRequest())
	require.NoError(t, err)

	assert.NoError(t, f.mgr.TestTenant(ctx, "acme"))
	assert.ErrorIs(t, f.mgr.TestTenant(ctx, "stale"), tenant.ErrInvalidConfiguration)
	assert.ErrorIs(t, f.mgr.TestTenant(ctx, "ghost"), tenant.ErrNotFound)
}

func TestGenerateID(t *testing.T) {
	t.Parallel()
	now := time.UnixMilli(1700000000000)

	a, b := tenantadmin.GenerateID(now), tenantadmin.GenerateID(now)
	assert.NotEqual(t, a, b)
	assert.True(t, tenant.ValidID(a))
}
