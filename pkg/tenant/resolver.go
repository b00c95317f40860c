package tenant

import (
	"context"
	"net/http"
	"regexp"
)

// Source names where a tenant identifier was found.
type Source string

const (
	SourceHeader   Source = "header"
	SourceQuery    Source = "query"
	SourcePath     Source = "path"
	SourceFlag     Source = "flag"
	SourceEnv      Source = "env"
	SourceMetadata Source = "metadata"
	SourceDefault  Source = "default"
)

const (
	DefaultHeader      = "x-tenant-id"
	DefaultQueryParam  = "tenant"
	DefaultMetadataKey = "tenantId"
)

var pathPattern = regexp.MustCompile(`/tenant/([^/]+)/`)

// Identifier is a resolved tenant id and where it came from.
type Identifier struct {
	TenantID string `json:"tenantId"`
	Source   Source `json:"source"`
}

// Resolver maps inbound requests to an existing tenant id.
//
// Every candidate must name a record in the store; a candidate that does not
// falls through to the next source. The ok result is false when no source
// yields an existing tenant. A non-nil error means the store failed.
type Resolver struct {
	store       Store
	header      string
	queryParam  string
	metadataKey string
	fallback    bool
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithHeader sets the header carrying the tenant id. Lookup is case-insensitive.
func WithHeader(name string) ResolverOption {
	return func(r *Resolver) {
		if name != "" {
			r.header = name
		}
	}
}

// WithQueryParam sets the query parameter carrying the tenant id.
func WithQueryParam(name string) ResolverOption {
	return func(r *Resolver) {
		if name != "" {
			r.queryParam = name
		}
	}
}

// WithMetadataKey sets the message metadata field carrying the tenant id.
func WithMetadataKey(key string) ResolverOption {
	return func(r *Resolver) {
		if key != "" {
			r.metadataKey = key
		}
	}
}

// WithFallback enables falling back to the "default" tenant when no explicit
// identifier resolves.
func WithFallback(enabled bool) ResolverOption {
	return func(r *Resolver) { r.fallback = enabled }
}

func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	if store == nil {
		panic("tenant: resolver requires a store")
	}
	r := &Resolver{
		store:       store,
		header:      DefaultHeader,
		queryParam:  DefaultQueryParam,
		metadataKey: DefaultMetadataKey,
		fallback:    true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type candidate struct {
	id     string
	source Source
}

// ResolveRequest tries the header, the query parameter, a /tenant/<id>/ path
// segment and finally the default tenant, in that order.
func (r *Resolver) ResolveRequest(req *http.Request) (Identifier, bool, error) {
	cands := []candidate{
		{req.Header.Get(r.header), SourceHeader},
		{req.URL.Query().Get(r.queryParam), SourceQuery},
	}
	if m := pathPattern.FindStringSubmatch(req.URL.Path); m != nil {
		cands = append(cands, candidate{m[1], SourcePath})
	}
	return r.first(req.Context(), cands)
}

// ResolveCLI tries an explicit flag value, then an environment value, then
// the default tenant.
func (r *Resolver) ResolveCLI(ctx context.Context, flagValue, envValue string) (Identifier, bool, error) {
	return r.first(ctx, []candidate{
		{flagValue, SourceFlag},
		{envValue, SourceEnv},
	})
}

// ResolveMetadata tries the configured metadata field, then the default tenant.
func (r *Resolver) ResolveMetadata(ctx context.Context, meta map[string]any) (Identifier, bool, error) {
	id, _ := meta[r.metadataKey].(string)
	return r.first(ctx, []candidate{{id, SourceMetadata}})
}

func (r *Resolver) first(ctx context.Context, cands []candidate) (Identifier, bool, error) {
	if r.fallback {
		cands = append(cands, candidate{DefaultID, SourceDefault})
	}
	for _, c := range cands {
		if !ValidID(c.id) {
			continue
		}
		ok, err := r.store.Exists(ctx, c.id)
		if err != nil {
			return Identifier{}, false, err
		}
		if ok {
			return Identifier{TenantID: c.id, Source: c.source}, true, nil
		}
	}
	return Identifier{}, false, nil
}

// ValidateTenant checks that the tenant exists, is active and has the
// credential and location needed to reach the upstream API.
func (r *Resolver) ValidateTenant(ctx context.Context, id string) error {
	t, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return Validate(t)
}

// Validate runs the ValidateTenant checks on an already loaded record.
func Validate(t *Tenant) error {
	if t == nil {
		return ErrNotFound
	}
	if !t.Active {
		return ErrInactive
	}
	if t.APIKey == "" || t.LocationID == "" {
		return ErrIncomplete
	}
	return nil
}
