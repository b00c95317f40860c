package tenant

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrymomot/ghlmux/pkg/clientip"
	"github.com/dmitrymomot/ghlmux/pkg/ratelimit"
	"github.com/dmitrymomot/ghlmux/pkg/requestid"
)

// Middleware resolves the tenant of each request, validates it, binds a
// RequestContext to the request context and enforces the tenant rate limit.
//
// Rejections: 400 when a tenant is required but none resolves, 403 when the
// tenant fails validation, 404 when its record disappears before loading and
// 429 when the rate limit is exceeded. Any other failure is logged and answered
// with a generic 500.
func Middleware(resolver *Resolver, provider Provider, opts ...Option) func(http.Handler) http.Handler {
	if resolver == nil || provider == nil {
		panic("tenant: middleware requires a resolver and a provider")
	}

	cfg := &config{
		errorHandler: defaultErrorHandler,
		logger:       slog.New(slog.DiscardHandler),
		channel:      ChannelHTTP,
		now:          time.Now,
		newRequestID: requestid.New,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range cfg.excludedPaths {
				if strings.HasPrefix(r.URL.Path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}

			ctx := r.Context()
			log := cfg.logger

			ident, ok, err := resolver.ResolveRequest(r)
			if err != nil {
				internalError(w, r, cfg, err, "tenant resolution failed")
				return
			}
			if !ok {
				if cfg.requireTenant {
					cfg.errorHandler(w, r, http.StatusBadRequest, ErrTenantRequired)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if err := resolver.ValidateTenant(ctx, ident.TenantID); err != nil {
				if !isTenantError(err) {
					internalError(w, r, cfg, err, "tenant validation failed")
					return
				}
				log.WarnContext(ctx, "tenant rejected",
					slog.String("tenant_id", ident.TenantID),
					slog.String("reason", ErrorCode(err)))
				cfg.errorHandler(w, r, http.StatusForbidden, err)
				return
			}

			t, err := provider.GetTenant(ctx, ident.TenantID)
			if err != nil {
				if IsNotFound(err) {
					cfg.errorHandler(w, r, http.StatusNotFound, err)
					return
				}
				internalError(w, r, cfg, err, "tenant load failed")
				return
			}

			reqID := requestid.FromContext(ctx)
			if reqID == "" {
				reqID = r.Header.Get(requestid.Header)
				if !requestid.Valid(reqID) {
					reqID = cfg.newRequestID()
				}
				ctx = requestid.WithContext(ctx, reqID)
			}

			rc := NewRequestContext(t, reqID, RequestMetadata{
				Timestamp: cfg.now(),
				Channel:   cfg.channel,
				UserAgent: r.UserAgent(),
				IP:        clientip.GetIP(r),
			})
			ctx = WithRequestContext(ctx, rc)

			w.Header().Set(HeaderTenantID, rc.TenantID())
			w.Header().Set(HeaderRequestID, reqID)

			if cfg.limiter != nil {
				limit := ratelimit.PerWindow(t.RateLimits.RequestsPerMinute, cfg.limiter.Window())
				res, err := cfg.limiter.Allow(ctx, rc.TenantID(), limit)
				if err != nil {
					internalError(w, r.WithContext(ctx), cfg, err, "rate limit check failed")
					return
				}
				ratelimit.SetHeaders(w, res)
				if !res.Allowed {
					log.InfoContext(ctx, "tenant rate limited",
						slog.Duration("retry_after", res.RetryAfter))
					cfg.errorHandler(w, r, http.StatusTooManyRequests, ErrRateLimited)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTenant rejects requests that reach it without a RequestContext.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			WriteErrorStatus(w, http.StatusBadRequest, ErrTenantRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isTenantError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInactive) || errors.Is(err, ErrIncomplete)
}

func internalError(w http.ResponseWriter, r *http.Request, cfg *config, err error, msg string) {
	cfg.logger.ErrorContext(r.Context(), msg,
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	cfg.errorHandler(w, r, http.StatusInternalServerError, err)
}
