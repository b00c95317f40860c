package tenant

import (
	"context"
	"log/slog"
	"time"
)

// Channel is the transport a request arrived on.
type Channel string

const (
	ChannelHTTP      Channel = "http"
	ChannelStdio     Channel = "stdio"
	ChannelStreaming Channel = "streaming"
)

// RequestMetadata describes the inbound request.
type RequestMetadata struct {
	Timestamp time.Time
	Channel   Channel
	UserAgent string
	IP        string
}

// RequestContext is the per-request bundle of resolved tenant and request
// metadata. It is immutable: accessors return copies.
type RequestContext struct {
	tenant    *Tenant
	requestID string
	meta      RequestMetadata
}

// NewRequestContext snapshots t for the lifetime of one request.
func NewRequestContext(t *Tenant, requestID string, meta RequestMetadata) *RequestContext {
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	return &RequestContext{tenant: t.Clone(), requestID: requestID, meta: meta}
}

// Tenant returns a copy of the tenant snapshot, including its decrypted credential.
func (rc *RequestContext) Tenant() *Tenant { return rc.tenant.Clone() }

func (rc *RequestContext) TenantID() string { return rc.tenant.ID }

func (rc *RequestContext) RequestID() string { return rc.requestID }

func (rc *RequestContext) Metadata() RequestMetadata { return rc.meta }

type contextKey struct{}

// WithRequestContext binds rc to ctx. Everything that receives the returned
// context, including goroutines started with it, sees rc.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext returns the bound RequestContext. Absence is a normal state
// meaning no tenant is in effect.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	if ctx == nil {
		return nil, false
	}
	rc, ok := ctx.Value(contextKey{}).(*RequestContext)
	return rc, ok && rc != nil
}

// MustFromContext returns the bound RequestContext and panics if there is none.
// Use it only on paths that cannot run without a tenant.
func MustFromContext(ctx context.Context) *RequestContext {
	rc, ok := FromContext(ctx)
	if !ok {
		panic(ErrNoContext)
	}
	return rc
}

// RequireFromContext is the error-returning form of MustFromContext.
func RequireFromContext(ctx context.Context) (*RequestContext, error) {
	rc, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoContext
	}
	return rc, nil
}

// IDFromContext returns the bound tenant id.
func IDFromContext(ctx context.Context) (string, bool) {
	rc, ok := FromContext(ctx)
	if !ok {
		return "", false
	}
	return rc.TenantID(), true
}

// LoggerExtractor returns a logger context extractor adding "tenant_id".
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id, ok := IDFromContext(ctx); ok {
			return slog.String("tenant_id", id), true
		}
		return slog.Attr{}, false
	}
}
