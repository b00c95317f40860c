// Package tenant maps inbound requests to isolated tenant accounts and makes
// the resolved tenant available to every piece of code serving the request.
//
// # Records and stores
//
// A Tenant holds one upstream account: credential, location, endpoint,
// settings, quotas and an active flag. Records live in a Store. Available
// implementations:
//
//   - MemoryStore: map-backed, for development and tests
//   - EnvStore: read-only, exposes the reserved "default" tenant built from
//     GHL_API_KEY and GHL_LOCATION_ID
//   - FileStore: JSON or YAML tenant list, rewritten on every mutation
//   - FallbackStore: a writable primary layered over a read-only fallback;
//     editing a fallback record promotes it into the primary
//
// Database-backed stores live in the pgstore, sqlitestore and mongostore
// subpackages.
//
// # Resolution
//
// Resolver turns a request into an Identifier. For HTTP the order is the
// x-tenant-id header, the tenant query parameter, a /tenant/<id>/ path
// segment and finally the "default" tenant when fallback is enabled. Each
// candidate must exist in the store, otherwise resolution moves on. CLI and
// message-metadata entry points follow the same fallback rules.
//
// # Request context
//
// Middleware validates the resolved tenant, loads it through a Provider and
// binds an immutable RequestContext to the request's context.Context:
//
//	r.Use(tenant.Middleware(resolver, manager,
//		tenant.WithRequireTenant(true),
//		tenant.WithRateLimiter(limiter),
//		tenant.WithExcludedPaths("/healthz"),
//	))
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//		rc := tenant.MustFromContext(r.Context())
//		client, err := factory.Client(rc.Tenant())
//		...
//	}
//
// Code running outside any request sees no RequestContext; FromContext
// reports this with ok == false.
package tenant
