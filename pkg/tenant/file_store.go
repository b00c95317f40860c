package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrUnknownFileFormat is returned for tenant files without a .json, .yaml or
// .yml extension.
var ErrUnknownFileFormat = errors.New("unknown tenant file format")

// FileDocument is the on-disk tenant list.
type FileDocument struct {
	Tenants         []*FileRecord  `json:"tenants" yaml:"tenants"`
	DefaultSettings map[string]any `json:"defaultSettings,omitempty" yaml:"defaultSettings,omitempty"`
}

// FileRecord is one entry of the tenant list file. isActive is optional and
// defaults to true.
type FileRecord struct {
	ID         string         `json:"tenantId" yaml:"tenantId"`
	Name       string         `json:"name" yaml:"name"`
	APIKey     string         `json:"apiKey" yaml:"apiKey"`
	LocationID string         `json:"locationId" yaml:"locationId"`
	BaseURL    string         `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	APIVersion string         `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`
	Active     *bool          `json:"isActive,omitempty" yaml:"isActive,omitempty"`
	Settings   map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
	RateLimits *RateLimits    `json:"rateLimits,omitempty" yaml:"rateLimits,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt  *time.Time     `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt  *time.Time     `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

func (r *FileRecord) Tenant() *Tenant {
	t := &Tenant{
		ID:         r.ID,
		Name:       r.Name,
		APIKey:     r.APIKey,
		LocationID: r.LocationID,
		BaseURL:    r.BaseURL,
		APIVersion: r.APIVersion,
		Active:     r.Active == nil || *r.Active,
		Settings:   r.Settings,
		Metadata:   r.Metadata,
	}
	if r.RateLimits != nil {
		t.RateLimits = *r.RateLimits
	}
	if r.CreatedAt != nil {
		t.CreatedAt = *r.CreatedAt
	}
	if r.UpdatedAt != nil {
		t.UpdatedAt = *r.UpdatedAt
	}
	return t
}

func toFileRecord(t *Tenant) *FileRecord {
	r := &FileRecord{
		ID:         t.ID,
		Name:       t.Name,
		APIKey:     t.APIKey,
		LocationID: t.LocationID,
		BaseURL:    t.BaseURL,
		APIVersion: t.APIVersion,
		Active:     Ptr(t.Active),
		Settings:   t.Settings,
		Metadata:   t.Metadata,
		CreatedAt:  Ptr(t.CreatedAt),
		UpdatedAt:  Ptr(t.UpdatedAt),
	}
	if t.RateLimits.RequestsPerMinute != 0 || len(t.RateLimits.Daily) > 0 {
		r.RateLimits = Ptr(t.RateLimits)
	}
	return r
}

// FileStore keeps the tenant list in a JSON or YAML file and rewrites the
// whole file after every mutation. A missing file is treated as empty and is
// created on the first write.
type FileStore struct {
	path     string
	format   string
	mu       sync.RWMutex
	recs     records
	defaults map[string]any
	cfg      *storeConfig
}

var _ Store = (*FileStore)(nil)

// NewFileStore loads path. The format follows the file extension.
func NewFileStore(path string, opts ...StoreOption) (*FileStore, error) {
	format, err := fileFormat(path)
	if err != nil {
		return nil, err
	}

	cfg := newStoreConfig(opts)
	s := &FileStore{path: path, format: format, recs: make(records), cfg: cfg}

	doc, err := ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		doc = &FileDocument{}
	case err != nil:
		return nil, err
	}

	s.defaults = doc.DefaultSettings
	if cfg.defaultSettings != nil {
		s.defaults = cfg.defaultSettings
	}

	now := cfg.now()
	for _, r := range doc.Tenants {
		if r == nil {
			continue
		}
		t := r.Tenant()
		if !ValidID(t.ID) {
			return nil, fmt.Errorf("tenant file %s: %w: %q", path, ErrInvalidIdentifier, t.ID)
		}
		if _, dup := s.recs[t.ID]; dup {
			return nil, fmt.Errorf("tenant file %s: %w: %q", path, ErrAlreadyExists, t.ID)
		}
		applyDefaultSettings(t, s.defaults)
		stampCreated(t, now)
		s.recs[t.ID] = t
	}
	return s, nil
}

// ReadFile decodes a tenant list file without building a store.
func ReadFile(path string) (*FileDocument, error) {
	format, err := fileFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc := &FileDocument{}
	if format == "json" {
		err = json.Unmarshal(data, doc)
	} else {
		err = yaml.Unmarshal(data, doc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode tenant file %s: %w", path, err)
	}
	return doc, nil
}

func fileFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json", nil
	case ".yaml", ".yml":
		return "yaml", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFileFormat, path)
	}
}

func (s *FileStore) Get(_ context.Context, id string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recs.get(id)
}

func (s *FileStore) GetAll(_ context.Context) ([]*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recs.all(), nil
}

func (s *FileStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.recs[id]
	return ok, nil
}

func (s *FileStore) Create(_ context.Context, t *Tenant) (*Tenant, error) {
	var out *Tenant
	err := s.mutate(func(next records) error {
		var err error
		out, err = next.create(t, s.cfg.now())
		return err
	})
	return out, err
}

func (s *FileStore) Update(_ context.Context, id string, u Update) (*Tenant, error) {
	var out *Tenant
	err := s.mutate(func(next records) error {
		var err error
		out, err = next.update(id, u, s.cfg.now())
		return err
	})
	return out, err
}

func (s *FileStore) Delete(_ context.Context, id string) (bool, error) {
	var deleted bool
	err := s.mutate(func(next records) error {
		deleted = next.delete(id)
		if !deleted {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return false, nil
	}
	return deleted, err
}

var errNoChange = errors.New("no change")

// mutate applies fn to a copy of the records, writes the copy to disk and
// only then makes it visible to readers.
func (s *FileStore) mutate(fn func(next records) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.recs.clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := s.write(next); err != nil {
		return err
	}
	s.recs = next
	return nil
}

func (s *FileStore) write(recs records) error {
	doc := FileDocument{DefaultSettings: s.defaults}
	for _, t := range recs.all() {
		doc.Tenants = append(doc.Tenants, toFileRecord(t))
	}

	var (
		data []byte
		err  error
	)
	if s.format == "json" {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = yaml.Marshal(doc)
	}
	if err != nil {
		return fmt.Errorf("encode tenant file: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".tenants-*")
	if err != nil {
		return fmt.Errorf("write tenant file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write tenant file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("write tenant file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write tenant file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write tenant file: %w", err)
	}
	return nil
}
