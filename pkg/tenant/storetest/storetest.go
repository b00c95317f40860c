// Package storetest is a conformance suite for tenant.Store implementations.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/ghlmux/pkg/tenant"
)

// Sample returns a complete, active tenant with the given id.
func Sample(id string) *tenant.Tenant {
	return &tenant.Tenant{
		ID:         id,
		Name:       "Tenant " + id,
		APIKey:     "key-" + id,
		LocationID: "loc-" + id,
		Settings:   map[string]any{"calendars": true},
		RateLimits: tenant.RateLimits{RequestsPerMinute: 60, Daily: map[string]int{"sms": 100}},
		Metadata:   map[string]any{"plan": "pro"},
		Active:     true,
	}
}

// Run exercises the Store contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) tenant.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)

		created, err := s.Create(ctx, Sample("acme"))
		require.NoError(t, err)
		assert.Equal(t, "acme", created.ID)
		assert.False(t, created.CreatedAt.IsZero())
		assert.Equal(t, created.CreatedAt, created.UpdatedAt)

		got, err := s.Get(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "Tenant acme", got.Name)
		assert.Equal(t, "key-acme", got.APIKey)
		assert.Equal(t, "loc-acme", got.LocationID)
		assert.True(t, got.Active)
		assert.Equal(t, 60, got.RateLimits.RequestsPerMinute)
		assert.Equal(t, 100, got.RateLimits.Daily["sms"])
		assert.Equal(t, true, got.Settings["calendars"])
		assert.Equal(t, "pro", got.Metadata["plan"])
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, tenant.ErrNotFound)
	})

	t.Run("create duplicate", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, Sample("acme"))
		require.NoError(t, err)

		_, err = s.Create(ctx, Sample("acme"))
		assert.ErrorIs(t, err, tenant.ErrAlreadyExists)
	})

	t.Run("create invalid id", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, Sample("bad id"))
		assert.ErrorIs(t, err, tenant.ErrInvalidIdentifier)
	})

	t.Run("get all sorted", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []string{"zeta", "acme", "mid"} {
			_, err := s.Create(ctx, Sample(id))
			require.NoError(t, err)
		}

		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		ids := make([]string, 0, len(all))
		for _, tt := range all {
			ids = append(ids, tt.ID)
		}
		assert.Equal(t, []string{"acme", "mid", "zeta"}, ids)
	})

	t.Run("update partial", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, Sample("acme"))
		require.NoError(t, err)

		updated, err := s.Update(ctx, "acme", tenant.Update{
			Name:   tenant.Ptr("Acme Inc"),
			Active: tenant.Ptr(false),
		})
		require.NoError(t, err)
		assert.Equal(t, "Acme Inc", updated.Name)
		assert.False(t, updated.Active)
		assert.Equal(t, "key-acme", updated.APIKey)
		assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))
		assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

		got, err := s.Get(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "Acme Inc", got.Name)
		assert.False(t, got.Active)
	})

	t.Run("update missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Update(ctx, "missing", tenant.Update{Name: tenant.Ptr("x")})
		assert.ErrorIs(t, err, tenant.ErrNotFound)
	})

	t.Run("delete and exists", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, Sample("acme"))
		require.NoError(t, err)

		ok, err := s.Exists(ctx, "acme")
		require.NoError(t, err)
		assert.True(t, ok)

		deleted, err := s.Delete(ctx, "acme")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = s.Delete(ctx, "acme")
		require.NoError(t, err)
		assert.False(t, deleted)

		ok, err = s.Exists(ctx, "acme")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, Sample("acme"))
		require.NoError(t, err)

		got, err := s.Get(ctx, "acme")
		require.NoError(t, err)
		got.Name = "mutated"
		got.Settings["calendars"] = false

		again, err := s.Get(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "Tenant acme", again.Name)
		assert.Equal(t, true, again.Settings["calendars"])
	})
}
