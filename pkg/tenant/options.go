package tenant

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/ghlmux/pkg/ratelimit"
)

// Provider loads the full tenant record, with a usable credential, for a
// resolved id. It returns ErrNotFound when the record is gone.
type Provider interface {
	GetTenant(ctx context.Context, id string) (*Tenant, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, id string) (*Tenant, error)

func (f ProviderFunc) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	return f(ctx, id)
}

// RateLimiter decides whether a tenant may make another request. A positive
// limit overrides the limiter default for that tenant and counts requests per
// Window. *ratelimit.FixedWindow implements it.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int) (*ratelimit.Result, error)
	Window() time.Duration
}

// ErrorHandler writes a rejection. status is the code chosen by the middleware.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, status int, err error)

// Header names set on every tenant-scoped response.
const (
	HeaderTenantID  = "X-Tenant-ID"
	HeaderRequestID = "X-Request-ID"
)

type config struct {
	excludedPaths []string
	requireTenant bool
	limiter       RateLimiter
	errorHandler  ErrorHandler
	logger        *slog.Logger
	channel       Channel
	now           func() time.Time
	newRequestID  func() string
}

// Option configures the middleware.
type Option func(*config)

// WithExcludedPaths skips tenant handling for requests whose path starts with
// any of the given prefixes.
func WithExcludedPaths(paths ...string) Option {
	return func(c *config) {
		c.excludedPaths = append(c.excludedPaths, paths...)
	}
}

// WithRequireTenant rejects unresolved requests with 400 instead of letting
// them through without a RequestContext.
func WithRequireTenant(required bool) Option {
	return func(c *config) { c.requireTenant = required }
}

// WithRateLimiter enables per-tenant rate limiting.
func WithRateLimiter(l RateLimiter) Option {
	return func(c *config) { c.limiter = l }
}

func WithErrorHandler(h ErrorHandler) Option {
	return func(c *config) {
		if h != nil {
			c.errorHandler = h
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithChannel sets the channel recorded in RequestMetadata. Defaults to HTTP.
func WithChannel(ch Channel) Option {
	return func(c *config) {
		if ch != "" {
			c.channel = ch
		}
	}
}

// WithClock overrides the timestamp source for RequestMetadata.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRequestIDGenerator overrides how request ids are created when the
// inbound request carries none.
func WithRequestIDGenerator(fn func() string) Option {
	return func(c *config) {
		if fn != nil {
			c.newRequestID = fn
		}
	}
}

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, status int, err error) {
	WriteErrorStatus(w, status, err)
}
