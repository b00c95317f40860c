package tenant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvConfig is the reserved single-tenant credential pair. When APIKey is set
// it becomes the "default" tenant regardless of multi-tenant mode.
type EnvConfig struct {
	APIKey     string `env:"GHL_API_KEY"`
	LocationID string `env:"GHL_LOCATION_ID"`
	BaseURL    string `env:"GHL_BASE_URL"`
	APIVersion string `env:"GHL_API_VERSION"`
	Name       string `env:"GHL_TENANT_NAME" envDefault:"Default"`
}

// EnvStore is a read-only store exposing at most one record, "default",
// built from EnvConfig. Every mutation fails with ErrUnsupported.
type EnvStore struct {
	rec *Tenant
}

var _ Store = (*EnvStore)(nil)

// NewEnvStore builds the store. An empty APIKey yields an empty store.
func NewEnvStore(cfg EnvConfig) *EnvStore {
	if cfg.APIKey == "" {
		return &EnvStore{}
	}
	now := time.Now()
	return &EnvStore{rec: &Tenant{
		ID:         DefaultID,
		Name:       cfg.Name,
		APIKey:     cfg.APIKey,
		LocationID: cfg.LocationID,
		BaseURL:    cfg.BaseURL,
		APIVersion: cfg.APIVersion,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}}
}

func (s *EnvStore) Get(_ context.Context, id string) (*Tenant, error) {
	if s.rec == nil || id != s.rec.ID {
		return nil, ErrNotFound
	}
	return s.rec.Clone(), nil
}

func (s *EnvStore) GetAll(_ context.Context) ([]*Tenant, error) {
	if s.rec == nil {
		return []*Tenant{}, nil
	}
	return []*Tenant{s.rec.Clone()}, nil
}

func (s *EnvStore) Create(context.Context, *Tenant) (*Tenant, error) {
	return nil, ErrUnsupported
}

func (s *EnvStore) Update(context.Context, string, Update) (*Tenant, error) {
	return nil, ErrUnsupported
}

func (s *EnvStore) Delete(context.Context, string) (bool, error) {
	return false, ErrUnsupported
}

func (s *EnvStore) Exists(_ context.Context, id string) (bool, error) {
	return s.rec != nil && id == s.rec.ID, nil
}

// ErrInvalidEnvGroup is returned by LoadNumberedEnv for an incomplete group.
var ErrInvalidEnvGroup = errors.New("invalid TENANT_<n> environment group")

// LoadNumberedEnv reads TENANT_<n>_ID, _NAME, _API_KEY and _LOCATION_ID
// groups starting at n=1 and stopping at the first missing _ID. lookup is
// usually os.LookupEnv.
func LoadNumberedEnv(lookup func(string) (string, bool)) ([]*Tenant, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var out []*Tenant
	for n := 1; ; n++ {
		prefix := "TENANT_" + strconv.Itoa(n) + "_"
		id, ok := lookup(prefix + "ID")
		if !ok || id == "" {
			return out, nil
		}
		if !ValidID(id) {
			return nil, errors.Join(ErrInvalidEnvGroup, fmt.Errorf("%sID: %w", prefix, ErrInvalidIdentifier))
		}

		t := &Tenant{ID: id, Active: true}
		t.Name, _ = lookup(prefix + "NAME")
		t.APIKey, _ = lookup(prefix + "API_KEY")
		t.LocationID, _ = lookup(prefix + "LOCATION_ID")
		if t.Name == "" {
			t.Name = id
		}
		if t.APIKey == "" {
			return nil, errors.Join(ErrInvalidEnvGroup, fmt.Errorf("%sAPI_KEY is required", prefix))
		}
		out = append(out, t)
	}
}
