package tenant

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
)

// Store is the durable map from tenant id to tenant record.
//
// Get returns ErrNotFound when no record exists. Create returns
// ErrAlreadyExists on an id collision. Update returns ErrNotFound for an
// unknown id. Read-only implementations return ErrUnsupported from every
// mutation. Returned records are copies owned by the caller.
type Store interface {
	Get(ctx context.Context, id string) (*Tenant, error)
	GetAll(ctx context.Context) ([]*Tenant, error)
	Create(ctx context.Context, t *Tenant) (*Tenant, error)
	Update(ctx context.Context, id string, u Update) (*Tenant, error)
	Delete(ctx context.Context, id string) (bool, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// StoreOption configures the in-process stores.
type StoreOption func(*storeConfig)

type storeConfig struct {
	now             func() time.Time
	seed            []*Tenant
	defaultSettings map[string]any
}

func newStoreConfig(opts []StoreOption) *storeConfig {
	cfg := &storeConfig{now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithStoreClock overrides the time source used for CreatedAt/UpdatedAt.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(c *storeConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSeed preloads records. Seeded records keep their timestamps if set.
func WithSeed(tenants ...*Tenant) StoreOption {
	return func(c *storeConfig) {
		c.seed = append(c.seed, tenants...)
	}
}

// WithDefaultSettings fills settings missing from a record when it is loaded.
func WithDefaultSettings(settings map[string]any) StoreOption {
	return func(c *storeConfig) {
		c.defaultSettings = settings
	}
}

// records is an unlocked id->tenant map shared by the in-process stores.
type records map[string]*Tenant

func (r records) get(id string) (*Tenant, error) {
	t, ok := r[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (r records) all() []*Tenant {
	out := make([]*Tenant, 0, len(r))
	for _, t := range r {
		out = append(out, t.Clone())
	}
	SortByID(out)
	return out
}

func (r records) create(t *Tenant, now time.Time) (*Tenant, error) {
	if t == nil || !ValidID(t.ID) {
		return nil, ErrInvalidIdentifier
	}
	if _, ok := r[t.ID]; ok {
		return nil, ErrAlreadyExists
	}
	rec := t.Clone()
	stampCreated(rec, now)
	r[rec.ID] = rec
	return rec.Clone(), nil
}

func (r records) update(id string, u Update, now time.Time) (*Tenant, error) {
	rec, ok := r[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := rec.Clone()
	u.Apply(next, now)
	r[id] = next
	return next.Clone(), nil
}

func (r records) delete(id string) bool {
	if _, ok := r[id]; !ok {
		return false
	}
	delete(r, id)
	return true
}

func (r records) clone() records {
	c := make(records, len(r))
	for id, t := range r {
		c[id] = t
	}
	return c
}

// stampCreated sets timestamps on a record about to be persisted for the
// first time, keeping any timestamps the caller already provided.
func stampCreated(t *Tenant, now time.Time) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
}

// PrepareCreate validates t and stamps its timestamps. Database-backed
// stores call it before inserting.
func PrepareCreate(t *Tenant, now time.Time) (*Tenant, error) {
	if t == nil || !ValidID(t.ID) {
		return nil, ErrInvalidIdentifier
	}
	rec := t.Clone()
	stampCreated(rec, now)
	return rec, nil
}

// SortByID orders tenants by id, in place.
func SortByID(ts []*Tenant) {
	slices.SortFunc(ts, func(a, b *Tenant) int { return strings.Compare(a.ID, b.ID) })
}

// IsNotFound reports whether err means the record is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
