package tenant

import (
	"maps"
	"regexp"
	"time"
)

const (
	// DefaultID names the reserved single-tenant record. It cannot be deleted.
	DefaultID = "default"

	DefaultBaseURL    = "https://services.leadconnectorhq.com"
	DefaultAPIVersion = "2021-07-28"

	maxIDLength = 64
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidID reports whether id is a well-formed tenant identifier.
func ValidID(id string) bool {
	return id != "" && len(id) <= maxIDLength && idPattern.MatchString(id)
}

// RateLimits holds per-tenant quotas. Zero values mean "use the server default".
// RequestsPerMinute is scaled to the limiter window, so a one hour window
// allows 60 times as many requests.
type RateLimits struct {
	RequestsPerMinute int            `json:"requestsPerMinute,omitempty" yaml:"requestsPerMinute,omitempty" bson:"requests_per_minute,omitempty"`
	Daily             map[string]int `json:"daily,omitempty" yaml:"daily,omitempty" bson:"daily,omitempty"`
}

// Tenant is the unit of isolation: one upstream account with its own
// credential, location, quotas and feature flags.
//
// APIKey holds whatever form the owning layer hands in. Stores persist it
// as-is; the config manager encrypts it before it reaches a store and decrypts
// it on the way out.
type Tenant struct {
	ID         string         `json:"tenantId" yaml:"tenantId" bson:"_id"`
	Name       string         `json:"name" yaml:"name" bson:"name"`
	APIKey     string         `json:"apiKey,omitempty" yaml:"apiKey,omitempty" bson:"api_key"`
	LocationID string         `json:"locationId" yaml:"locationId" bson:"location_id"`
	BaseURL    string         `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty" bson:"base_url,omitempty"`
	APIVersion string         `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty" bson:"api_version,omitempty"`
	Settings   map[string]any `json:"settings,omitempty" yaml:"settings,omitempty" bson:"settings,omitempty"`
	RateLimits RateLimits     `json:"rateLimits" yaml:"rateLimits,omitempty" bson:"rate_limits"`
	Metadata   map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty" bson:"metadata,omitempty"`
	Active     bool           `json:"isActive" yaml:"isActive" bson:"is_active"`
	CreatedAt  time.Time      `json:"createdAt" yaml:"createdAt" bson:"created_at"`
	UpdatedAt  time.Time      `json:"updatedAt" yaml:"updatedAt" bson:"updated_at"`
}

// Clone returns a deep copy, so callers never share maps with a store.
func (t *Tenant) Clone() *Tenant {
	if t == nil {
		return nil
	}
	c := *t
	c.Settings = maps.Clone(t.Settings)
	c.Metadata = maps.Clone(t.Metadata)
	c.RateLimits.Daily = maps.Clone(t.RateLimits.Daily)
	return &c
}

// Redacted returns a copy with the credential removed.
func (t *Tenant) Redacted() *Tenant {
	c := t.Clone()
	if c != nil {
		c.APIKey = ""
	}
	return c
}

// Endpoint returns the upstream base URL and API version, applying defaults.
func (t *Tenant) Endpoint() (baseURL, apiVersion string) {
	baseURL, apiVersion = t.BaseURL, t.APIVersion
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	return baseURL, apiVersion
}

// Setting returns a feature flag or per-domain setting by key.
func (t *Tenant) Setting(key string) (any, bool) {
	v, ok := t.Settings[key]
	return v, ok
}

// Update is a partial modification. Nil fields are left untouched; non-nil
// maps replace the stored map entirely.
type Update struct {
	Name       *string        `json:"name,omitempty"`
	APIKey     *string        `json:"apiKey,omitempty"`
	LocationID *string        `json:"locationId,omitempty"`
	BaseURL    *string        `json:"baseUrl,omitempty"`
	APIVersion *string        `json:"apiVersion,omitempty"`
	Settings   map[string]any `json:"settings,omitempty"`
	RateLimits *RateLimits    `json:"rateLimits,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Active     *bool          `json:"isActive,omitempty"`
}

// Apply writes the non-nil fields of u into t and stamps UpdatedAt.
// ID and CreatedAt are never changed.
func (u Update) Apply(t *Tenant, now time.Time) {
	if u.Name != nil {
		t.Name = *u.Name
	}
	if u.APIKey != nil {
		t.APIKey = *u.APIKey
	}
	if u.LocationID != nil {
		t.LocationID = *u.LocationID
	}
	if u.BaseURL != nil {
		t.BaseURL = *u.BaseURL
	}
	if u.APIVersion != nil {
		t.APIVersion = *u.APIVersion
	}
	if u.Settings != nil {
		t.Settings = maps.Clone(u.Settings)
	}
	if u.RateLimits != nil {
		t.RateLimits = RateLimits{
			RequestsPerMinute: u.RateLimits.RequestsPerMinute,
			Daily:             maps.Clone(u.RateLimits.Daily),
		}
	}
	if u.Metadata != nil {
		t.Metadata = maps.Clone(u.Metadata)
	}
	if u.Active != nil {
		t.Active = *u.Active
	}
	t.UpdatedAt = now
}

// AffectsConnection reports whether applying u can change how an upstream
// client for the tenant is built.
func (u Update) AffectsConnection() bool {
	return u.APIKey != nil || u.LocationID != nil || u.BaseURL != nil || u.APIVersion != nil
}

// Ptr is a helper for building Update values.
func Ptr[T any](v T) *T { return &v }
