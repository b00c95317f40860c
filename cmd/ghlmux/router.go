package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dmitrymomot/ghlmux/pkg/httpserver"
	"github.com/dmitrymomot/ghlmux/pkg/logger"
	"github.com/dmitrymomot/ghlmux/pkg/metrics"
	"github.com/dmitrymomot/ghlmux/pkg/requestid"
	"github.com/dmitrymomot/ghlmux/pkg/tenant"
	"github.com/dmitrymomot/ghlmux/svc/tenantadmin"
)

const readinessTimeout = 5 * time.Second

// router mounts:
//
//	GET  /healthz, /readyz, /metrics
//	     /admin/tenants...           bearer-protected tenant administration
//	     /mcp, /tenant/{id}/mcp      MCP streamable HTTP, tenant scoped
func (a *app) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", httpserver.Liveness())
	r.Get("/readyz", httpserver.Readiness(a.log, readinessTimeout, a.checks))
	r.Handle("/metrics", metrics.Handler(a.registry))

	if a.cfg.Admin.enabled() {
		admin := tenantadmin.Router(a.manager,
			tenantadmin.WithTokens(a.cfg.Admin.tokens()...),
			tenantadmin.WithRouterLogger(a.log.With(logger.Component("admin-api"))),
		)
		r.Mount("/admin", a.metrics.Instrument("admin", requestid.Middleware(admin)))
	} else {
		a.log.Warn("admin API disabled: set ADMIN_API_KEY or ADMIN_TOKENS")
	}

	scoped := tenant.Middleware(a.resolver, a.manager,
		tenant.WithRequireTenant(a.cfg.Tenancy.Required),
		tenant.WithRateLimiter(a.limiter),
		tenant.WithChannel(tenant.ChannelHTTP),
		tenant.WithLogger(a.log.With(logger.Component("tenant-middleware"))),
	)
	// Instrument sits outside the tenant middleware so its rejections are
	// counted too.
	mcp := a.metrics.Instrument("mcp", scoped(a.tools.HTTPHandler()))
	r.Handle("/mcp", mcp)
	r.Handle("/tenant/{id}/mcp", mcp)

	return otelhttp.NewHandler(r, "ghlmux")
}
