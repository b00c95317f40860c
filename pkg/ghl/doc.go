// Package ghl is a small GoHighLevel API client plus a per-tenant client
// cache.
//
// A Client is bound to one credential and one location. Requests carry the
// credential as a bearer token and the API version header, and travel through
// an OpenTelemetry-instrumented transport.
//
// Factory keeps one Client per tenant and credential in a bounded LRU cache:
//
//	f := ghl.NewFactory(ghl.WithFactoryConfig(cfg), ghl.WithObserver(m))
//	defer f.Destroy()
//
//	c, err := f.ClientFor(ctx) // tenant taken from the request context
//	if err != nil {
//		return err
//	}
//	loc, err := c.GetLocation(ctx)
//
// Upstream failures are returned as *APIError values that match ErrUnauthorized,
// ErrNotFound, ErrRateLimited or ErrUpstream with errors.Is.
package ghl
