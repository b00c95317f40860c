package tenantadmin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/dmitrymomot/ghlmux/pkg/logger"
	"github.com/dmitrymomot/ghlmux/pkg/secrets"
	"github.com/dmitrymomot/ghlmux/pkg/tenant"
	"github.com/dmitrymomot/ghlmux/pkg/validator"
)

const maxNameLength = 200

// Cipher protects credentials at rest. *secrets.Cipher implements it.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Reveal(value string) string
}

// Tester proves that a tenant's credential and location work against the
// upstream API.
type Tester interface {
	Test(ctx context.Context, t *tenant.Tenant) error
}

// TesterFunc adapts a function to Tester.
type TesterFunc func(ctx context.Context, t *tenant.Tenant) error

func (f TesterFunc) Test(ctx context.Context, t *tenant.Tenant) error { return f(ctx, t) }

// CacheInvalidator drops cached upstream clients. *ghl.Factory implements it.
type CacheInvalidator interface {
	ClearTenantCache(tenantID string) int
}

// Recorder receives one event per administrative operation.
type Recorder interface {
	AdminOp(op string, err error)
}

// CreateRequest is the input of CreateTenant. An empty ID asks for a
// generated one; a nil Active means active.
type CreateRequest struct {
	ID         string            `json:"tenantId,omitempty"`
	Name       string            `json:"name"`
	APIKey     string            `json:"apiKey"`
	LocationID string            `json:"locationId"`
	BaseURL    string            `json:"baseUrl,omitempty"`
	APIVersion string            `json:"apiVersion,omitempty"`
	Active     *bool             `json:"isActive,omitempty"`
	Settings   map[string]any    `json:"settings,omitempty"`
	RateLimits tenant.RateLimits `json:"rateLimits"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
}

// Manager runs the administrative lifecycle of tenant records on top of a
// Store. Credentials are encrypted before they reach the store, and every
// change that can alter upstream access is tested live before it is saved.
type Manager struct {
	store       tenant.Store
	cipher      Cipher
	tester      Tester
	invalidator CacheInvalidator
	recorder    Recorder
	log         *slog.Logger
	now         func() time.Time
	newID       func(now time.Time) string
}

// Option configures a Manager.
type Option func(*Manager)

// WithTester replaces the default live upstream check.
func WithTester(t Tester) Option {
	return func(m *Manager) {
		if t != nil {
			m.tester = t
		}
	}
}

// WithInvalidator connects the client cache that must forget a tenant after
// its connection settings change or it is deleted.
func WithInvalidator(inv CacheInvalidator) Option {
	return func(m *Manager) { m.invalidator = inv }
}

func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator replaces the generator used when CreateRequest.ID is empty.
func WithIDGenerator(fn func(now time.Time) string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// NewManager creates a Manager. Without WithTester, configurations are
// checked with an authenticated GoHighLevel call.
func NewManager(store tenant.Store, cipher Cipher, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		cipher: cipher,
		tester: NewUpstreamTester(),
		log:    slog.New(slog.DiscardHandler),
		now:    time.Now,
		newID:  GenerateID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GenerateID builds "tenant_<unix ms>_<8 hex chars>". Uniqueness is
// probabilistic; the store still rejects collisions.
func GenerateID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("tenant_%d_%s", now.UnixMilli(), suffix)
}

// CreateTenant validates req, tests it upstream, then persists it with an
// encrypted credential. The returned record carries the plaintext credential
// and is meant for the immediate caller only.
func (m *Manager) CreateTenant(ctx context.Context, req CreateRequest) (_ *tenant.Tenant, err error) {
	defer func() { m.record("create", err) }()

	req.Name = normalizeName(req.Name)
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = m.newID(m.now())
	}
	exists, err := m.store.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, tenant.ErrAlreadyExists
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	t := &tenant.Tenant{
		ID:         id,
		Name:       req.Name,
		APIKey:     req.APIKey,
		LocationID: req.LocationID,
		BaseURL:    req.BaseURL,
		APIVersion: req.APIVersion,
		Settings:   req.Settings,
		RateLimits: req.RateLimits,
		Metadata:   req.Metadata,
		Active:     active,
	}
	if err := m.test(ctx, t); err != nil {
		return nil, err
	}

	stored := t.Clone()
	if stored.APIKey, err = m.cipher.Encrypt(t.APIKey); err != nil {
		return nil, errors.Join(ErrEncryptCredential, err)
	}
	created, err := m.store.Create(ctx, stored)
	if err != nil {
		return nil, err
	}

	m.log.InfoContext(ctx, "tenant created", logger.TenantID(id))
	return m.reveal(created), nil
}

// GetTenant returns the record with its credential decrypted, or
// tenant.ErrNotFound.
func (m *Manager) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	t, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.reveal(t), nil
}

// GetAllTenants lists every record without its credential. Stored
// credentials are never decrypted on this path.
func (m *Manager) GetAllTenants(ctx context.Context) ([]*tenant.Tenant, error) {
	all, err := m.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*tenant.Tenant, 0, len(all))
	for _, t := range all {
		out = append(out, t.Redacted())
	}
	return out, nil
}

// UpdateTenant applies u. When u touches the credential, location or
// endpoint, the resulting configuration is tested upstream first. On
// success the tenant's cached clients are dropped.
func (m *Manager) UpdateTenant(ctx context.Context, id string, u tenant.Update) (_ *tenant.Tenant, err error) {
	defer func() { m.record("update", err) }()

	if u.Name != nil {
		u.Name = tenant.Ptr(normalizeName(*u.Name))
	}
	if err := validateUpdate(u); err != nil {
		return nil, err
	}

	current, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	connChanged := u.AffectsConnection()
	if connChanged {
		candidate := m.reveal(current)
		u.Apply(candidate, m.now())
		if err := m.test(ctx, candidate); err != nil {
			return nil, err
		}
	}

	// A credential still held in plaintext (env-derived default tenant,
	// legacy file entries) is sealed on the first write that touches the
	// record.
	credential := u.APIKey
	if credential == nil && current.APIKey != "" && !secrets.IsEncrypted(current.APIKey) {
		credential = &current.APIKey
	}
	if credential != nil {
		enc, err := m.cipher.Encrypt(*credential)
		if err != nil {
			return nil, errors.Join(ErrEncryptCredential, err)
		}
		u.APIKey = &enc
	}

	updated, err := m.store.Update(ctx, id, u)
	if err != nil {
		return nil, err
	}
	m.invalidate(id)

	m.log.InfoContext(ctx, "tenant updated",
		logger.TenantID(id), slog.Bool("connection_changed", connChanged))
	return m.reveal(updated), nil
}

// DeleteTenant removes a tenant. The reserved default tenant cannot be
// deleted.
func (m *Manager) DeleteTenant(ctx context.Context, id string) (err error) {
	defer func() { m.record("delete", err) }()

	if id == tenant.DefaultID {
		return tenant.ErrForbidden
	}
	m.invalidate(id)
	ok, err := m.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return tenant.ErrNotFound
	}
	m.log.InfoContext(ctx, "tenant deleted", logger.TenantID(id))
	return nil
}

// SetTenantActive enables or disables a tenant.
func (m *Manager) SetTenantActive(ctx context.Context, id string, active bool) (*tenant.Tenant, error) {
	return m.UpdateTenant(ctx, id, tenant.Update{Active: &active})
}

// TestTenant runs the upstream check against the stored configuration.
func (m *Manager) TestTenant(ctx context.Context, id string) (err error) {
	defer func() { m.record("test", err) }()

	t, err := m.GetTenant(ctx, id)
	if err != nil {
		return err
	}
	return m.test(ctx, t)
}

func (m *Manager) test(ctx context.Context, t *tenant.Tenant) error {
	if t.APIKey == "" || t.LocationID == "" {
		return errors.Join(tenant.ErrInvalidConfiguration, tenant.ErrIncomplete)
	}
	if err := m.tester.Test(ctx, t); err != nil {
		m.log.WarnContext(ctx, "tenant configuration test failed",
			logger.TenantID(t.ID), logger.Error(err))
		if errors.Is(err, tenant.ErrInvalidConfiguration) {
			return err
		}
		return errors.Join(tenant.ErrInvalidConfiguration, err)
	}
	return nil
}

func (m *Manager) reveal(t *tenant.Tenant) *tenant.Tenant {
	out := t.Clone()
	out.APIKey = m.cipher.Reveal(t.APIKey)
	return out
}

func (m *Manager) invalidate(id string) {
	if m.invalidator != nil {
		m.invalidator.ClearTenantCache(id)
	}
}

func (m *Manager) record(op string, err error) {
	if m.recorder != nil {
		m.recorder.AdminOp(op, err)
	}
}

// normalizeName trims and NFC-normalizes a display name so visually equal
// names compare equal.
func normalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func validateCreate(req CreateRequest) error {
	rules := []validator.Rule{
		{
			Check: func() bool { return req.ID == "" || tenant.ValidID(req.ID) },
			Error: validator.ValidationError{Field: "tenantId", Message: "may contain only letters, digits, '-' and '_' (max 64)"},
		},
		validator.RequiredString("name", req.Name),
		validator.MaxLenString("name", req.Name, maxNameLength),
		validator.RequiredString("apiKey", req.APIKey),
		validator.RequiredString("locationId", req.LocationID),
		validator.HTTPURL("baseUrl", req.BaseURL),
		validator.NonNegative("rateLimits.requestsPerMinute", req.RateLimits.RequestsPerMinute),
	}
	return wrapInvalid(validator.Apply(rules...))
}

func validateUpdate(u tenant.Update) error {
	var rules []validator.Rule
	if u.Name != nil {
		rules = append(rules,
			validator.RequiredString("name", *u.Name),
			validator.MaxLenString("name", *u.Name, maxNameLength))
	}
	if u.APIKey != nil {
		rules = append(rules, validator.RequiredString("apiKey", *u.APIKey))
	}
	if u.LocationID != nil {
		rules = append(rules, validator.RequiredString("locationId", *u.LocationID))
	}
	if u.BaseURL != nil {
		rules = append(rules, validator.HTTPURL("baseUrl", *u.BaseURL))
	}
	if u.RateLimits != nil {
		rules = append(rules, validator.NonNegative("rateLimits.requestsPerMinute", u.RateLimits.RequestsPerMinute))
	}
	return wrapInvalid(validator.Apply(rules...))
}

func wrapInvalid(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(tenant.ErrInvalidInput, err)
}
