package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FallbackStore layers a writable primary store over a read-only fallback.
//
// Reads consult the primary first. Updating a record that lives only in the
// fallback copies it into the primary and applies the update there, so a
// legacy env-configured tenant becomes durably editable after its first
// admin change. From then on the primary copy shadows the fallback one.
type FallbackStore struct {
	primary  Store
	fallback Store
}

var _ Store = (*FallbackStore)(nil)

func NewFallbackStore(primary, fallback Store) *FallbackStore {
	if primary == nil || fallback == nil {
		panic("tenant: FallbackStore requires primary and fallback stores")
	}
	return &FallbackStore{primary: primary, fallback: fallback}
}

func (s *FallbackStore) Get(ctx context.Context, id string) (*Tenant, error) {
	t, err := s.primary.Get(ctx, id)
	if err == nil || !IsNotFound(err) {
		return t, err
	}
	return s.fallback.Get(ctx, id)
}

// GetAll merges both stores; a primary record shadows a fallback record with
// the same id.
func (s *FallbackStore) GetAll(ctx context.Context) ([]*Tenant, error) {
	primary, err := s.primary.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	fallback, err := s.fallback.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(primary))
	out := make([]*Tenant, 0, len(primary)+len(fallback))
	for _, t := range primary {
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	for _, t := range fallback {
		if _, ok := seen[t.ID]; !ok {
			out = append(out, t)
		}
	}
	SortByID(out)
	return out, nil
}

func (s *FallbackStore) Create(ctx context.Context, t *Tenant) (*Tenant, error) {
	if t == nil {
		return nil, ErrInvalidIdentifier
	}
	exists, err := s.fallback.Exists(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyExists
	}
	return s.primary.Create(ctx, t)
}

func (s *FallbackStore) Update(ctx context.Context, id string, u Update) (*Tenant, error) {
	t, err := s.primary.Update(ctx, id, u)
	if err == nil || !IsNotFound(err) {
		return t, err
	}

	legacy, err := s.fallback.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// The promoted record is written once, already carrying u, so the
	// primary never holds the bare fallback copy. The primary stamps the
	// timestamps on create.
	u.Apply(legacy, time.Time{})
	legacy.CreatedAt = time.Time{}
	promoted, err := s.primary.Create(ctx, legacy)
	switch {
	case err == nil:
		return promoted, nil
	case errors.Is(err, ErrAlreadyExists):
		// promoted concurrently
		return s.primary.Update(ctx, id, u)
	default:
		return nil, fmt.Errorf("promote tenant %q: %w", id, err)
	}
}

// Delete removes the record from the primary store. A record that exists only
// in the read-only fallback cannot be deleted and yields ErrUnsupported.
// Deleting a promoted record exposes the fallback copy again.
func (s *FallbackStore) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := s.primary.Delete(ctx, id)
	if err != nil || deleted {
		return deleted, err
	}
	exists, err := s.fallback.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	if exists {
		return false, ErrUnsupported
	}
	return false, nil
}

func (s *FallbackStore) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := s.primary.Exists(ctx, id)
	if err != nil || ok {
		return ok, err
	}
	return s.fallback.Exists(ctx, id)
}
