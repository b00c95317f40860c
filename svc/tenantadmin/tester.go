package tenantadmin

import (
	"context"

	"github.com/dmitrymomot/ghlmux/pkg/ghl"
	"github.com/dmitrymomot/ghlmux/pkg/tenant"
)

// UpstreamTester checks a configuration with a throwaway GoHighLevel client
// and one authenticated read of the tenant's location.
type UpstreamTester struct {
	opts []ghl.ClientOption
}

func NewUpstreamTester(opts ...ghl.ClientOption) *UpstreamTester {
	return &UpstreamTester{opts: opts}
}

func (u *UpstreamTester) Test(ctx context.Context, t *tenant.Tenant) error {
	baseURL, apiVersion := t.Endpoint()
	c, err := ghl.NewClient(ghl.Config{
		APIKey:     t.APIKey,
		LocationID: t.LocationID,
		BaseURL:    baseURL,
		APIVersion: apiVersion,
	}, u.opts...)
	if err != nil {
		return err
	}
	return c.Ping(ctx)
}
