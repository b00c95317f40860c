// Package ghl is the upstream GoHighLevel API client and the per-tenant
// client factory.
package ghl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL    = "https://services.leadconnectorhq.com"
	DefaultAPIVersion = "2021-07-28"
	DefaultTimeout    = 30 * time.Second

	// upstream error bodies are truncated to this many bytes in APIError
	maxErrorBody = 4 << 10
)

// Config describes one upstream connection.
type Config struct {
	APIKey     string
	LocationID string
	BaseURL    string
	APIVersion string
}

// Client calls the GoHighLevel REST API for one location with one credential.
// It is safe for concurrent use.
type Client struct {
	http       *http.Client
	baseURL    *url.URL
	apiVersion string
	locationID string
	createdAt  time.Time
}

// ClientOption configures NewClient.
type ClientOption func(*clientOptions)

type clientOptions struct {
	base    http.RoundTripper
	timeout time.Duration
	now     func() time.Time
}

// WithTransport sets the base transport under the auth and tracing layers.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(o *clientOptions) {
		if rt != nil {
			o.base = rt
		}
	}
}

// WithTimeout bounds every upstream call.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func withClientClock(now func() time.Time) ClientOption {
	return func(o *clientOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewClient builds a client. Requests carry the credential as a bearer token
// and the configured API version header.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(cfg.LocationID) == "" {
		return nil, ErrMissingLocationID
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, errors.Join(ErrInvalidBaseURL, err)
	}

	o := &clientOptions{base: http.DefaultTransport, timeout: DefaultTimeout, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	transport := &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"}),
		Base: &versionTransport{
			version: cfg.APIVersion,
			next:    otelhttp.NewTransport(o.base),
		},
	}

	return &Client{
		http:       &http.Client{Transport: transport, Timeout: o.timeout},
		baseURL:    base,
		apiVersion: cfg.APIVersion,
		locationID: cfg.LocationID,
		createdAt:  o.now(),
	}, nil
}

// LocationID is the location every call is scoped to.
func (c *Client) LocationID() string { return c.locationID }

// CreatedAt is when the client was constructed.
func (c *Client) CreatedAt() time.Time { return c.createdAt }

// Ping performs a cheap authenticated call to prove the credential and
// location work together.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.GetLocation(ctx)
	return err
}

func (c *Client) GetLocation(ctx context.Context) (*Location, error) {
	var out locationEnvelope
	if err := c.get(ctx, "/locations/"+url.PathEscape(c.locationID), nil, &out); err != nil {
		return nil, err
	}
	return &out.Location, nil
}

func (c *Client) SearchContacts(ctx context.Context, s ContactSearch) ([]Contact, error) {
	q := url.Values{"locationId": {c.locationID}}
	if s.Query != "" {
		q.Set("query", s.Query)
	}
	if s.Limit > 0 {
		q.Set("limit", strconv.Itoa(min(s.Limit, 100)))
	}
	var out contactsEnvelope
	if err := c.get(ctx, "/contacts/", q, &out); err != nil {
		return nil, err
	}
	return out.Contacts, nil
}

func (c *Client) GetContact(ctx context.Context, id string) (*Contact, error) {
	if id == "" {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "contact id is empty"}
	}
	var out contactEnvelope
	if err := c.get(ctx, "/contacts/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out.Contact, nil
}

func (c *Client) ListCalendars(ctx context.Context) ([]Calendar, error) {
	var out calendarsEnvelope
	if err := c.get(ctx, "/calendars/", url.Values{"locationId": {c.locationID}}, &out); err != nil {
		return nil, err
	}
	return out.Calendars, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL.JoinPath(path)
	if strings.HasSuffix(path, "/") && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.Join(ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Join(ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Join(ErrUpstream, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil {
		switch m := env.Message.(type) {
		case string:
			apiErr.Message = m
		case []any:
			parts := make([]string, 0, len(m))
			for _, p := range m {
				parts = append(parts, fmt.Sprint(p))
			}
			apiErr.Message = strings.Join(parts, "; ")
		}
		if apiErr.Message == "" {
			if s, ok := env.Error.(string); ok {
				apiErr.Message = s
			}
		}
	}
	return apiErr
}

// versionTransport adds the API version header GoHighLevel requires.
type versionTransport struct {
	version string
	next    http.RoundTripper
}

func (t *versionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Version", t.version)
	return t.next.RoundTrip(r)
}
