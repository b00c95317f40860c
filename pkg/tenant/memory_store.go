package tenant

import (
	"context"
	"sync"
)

// MemoryStore keeps tenants in a map. Intended for development, tests and as
// the writable layer over an env-derived fallback.
type MemoryStore struct {
	mu   sync.RWMutex
	recs records
	cfg  *storeConfig
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store, optionally seeded via WithSeed.
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	cfg := newStoreConfig(opts)
	s := &MemoryStore{recs: make(records), cfg: cfg}
	now := cfg.now()
	for _, t := range cfg.seed {
		if t == nil {
			continue
		}
		rec := t.Clone()
		applyDefaultSettings(rec, cfg.defaultSettings)
		stampCreated(rec, now)
		s.recs[rec.ID] = rec
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recs.get(id)
}

func (s *MemoryStore) GetAll(_ context.Context) ([]*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recs.all(), nil
}

func (s *MemoryStore) Create(_ context.Context, t *Tenant) (*Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recs.create(t, s.cfg.now())
}

func (s *MemoryStore) Update(_ context.Context, id string, u Update) (*Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recs.update(id, u, s.cfg.now())
}

func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recs.delete(id), nil
}

func (s *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.recs[id]
	return ok, nil
}

func applyDefaultSettings(t *Tenant, defaults map[string]any) {
	if len(defaults) == 0 {
		return
	}
	if t.Settings == nil {
		t.Settings = make(map[string]any, len(defaults))
	}
	for k, v := range defaults {
		if _, ok := t.Settings[k]; !ok {
			t.Settings[k] = v
		}
	}
}
