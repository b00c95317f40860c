package tools

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dmitrymomot/ghlmux/pkg/ghl"
	"github.com/dmitrymomot/ghlmux/pkg/logger"
	"github.com/dmitrymomot/ghlmux/pkg/requestid"
	"github.com/dmitrymomot/ghlmux/pkg/tenant"
)

const (
	ToolGetLocation    = "get_location"
	ToolSearchContacts = "search_contacts"
	ToolGetContact     = "get_contact"
	ToolListCalendars  = "list_calendars"
)

const instructions = `Tools for one GoHighLevel location per tenant.
Over HTTP the tenant comes from the request. Otherwise set _meta.tenantId on the
tool call; without it the default tenant is used when enabled.`

// ClientSource hands out upstream clients per tenant. *ghl.Factory
// implements it.
type ClientSource interface {
	Client(t *tenant.Tenant) (*ghl.Client, error)
}

// Recorder receives one event per tool call.
type Recorder interface {
	ToolCall(tool string, d time.Duration, err error)
}

// Service exposes GoHighLevel operations as MCP tools. Every call runs
// against exactly one tenant's client.
type Service struct {
	clients  ClientSource
	resolver *tenant.Resolver
	provider tenant.Provider
	recorder Recorder
	log      *slog.Logger
	version  string
}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithVersion sets the implementation version reported to MCP clients.
func WithVersion(v string) Option {
	return func(s *Service) {
		if v != "" {
			s.version = v
		}
	}
}

// New creates the tool service. resolver maps a tool call's metadata to a
// tenant id and provider loads the record with a usable credential.
func New(clients ClientSource, resolver *tenant.Resolver, provider tenant.Provider, opts ...Option) *Service {
	s := &Service{
		clients:  clients,
		resolver: resolver,
		provider: provider,
		log:      slog.New(slog.DiscardHandler),
		version:  "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Server builds an MCP server. A non-nil bound context pins every tool call
// to that tenant; otherwise each call resolves its own tenant.
func (s *Service) Server(bound *tenant.RequestContext) *mcpsdk.Server {
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "ghlmux",
		Version: s.version,
	}, &mcpsdk.ServerOptions{
		Instructions: instructions,
	})

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        ToolGetLocation,
		Description: "Get the tenant's GoHighLevel location (sub-account) details.",
	}, handle(s, bound, ToolGetLocation, s.getLocation))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        ToolSearchContacts,
		Description: "Search contacts of the tenant's location by free text.",
	}, handle(s, bound, ToolSearchContacts, s.searchContacts))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        ToolGetContact,
		Description: "Get one contact by id.",
	}, handle(s, bound, ToolGetContact, s.getContact))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        ToolListCalendars,
		Description: "List booking calendars of the tenant's location.",
	}, handle(s, bound, ToolListCalendars, s.listCalendars))

	return srv
}

// HTTPHandler serves MCP over streamable HTTP from one shared server.
// Stateless sessions are connected with the request context, so a tenant
// bound by the tenant middleware reaches every tool call through ctx and
// takes precedence over _meta.
func (s *Service) HTTPHandler() http.Handler {
	srv := s.Server(nil)
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return srv
	}, &mcpsdk.StreamableHTTPOptions{Stateless: true})
}

// RunStdio serves MCP on stdin/stdout until ctx is done or the client
// disconnects.
func (s *Service) RunStdio(ctx context.Context, bound *tenant.RequestContext) error {
	return s.Server(bound).Run(ctx, &mcpsdk.StdioTransport{})
}

type toolFunc[In, Out any] func(ctx context.Context, c *ghl.Client, in In) (Out, error)

// handle resolves the tenant, binds it to ctx, fetches the tenant's client
// and records the outcome.
func handle[In, Out any](s *Service, bound *tenant.RequestContext, name string, fn toolFunc[In, Out]) mcpsdk.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, Out, error) {
		start := time.Now()
		var zero Out

		rc, err := s.requestContext(ctx, req, bound)
		if err != nil {
			s.finish(ctx, name, start, err)
			return nil, zero, publicError(err)
		}
		ctx = tenant.WithRequestContext(ctx, rc)
		ctx = requestid.WithContext(ctx, rc.RequestID())

		c, err := s.clients.Client(rc.Tenant())
		if err != nil {
			s.finish(ctx, name, start, err)
			return nil, zero, publicError(err)
		}
		out, err := fn(ctx, c, in)
		s.finish(ctx, name, start, err)
		if err != nil {
			return nil, zero, publicError(err)
		}
		return nil, out, nil
	}
}

func (s *Service) requestContext(ctx context.Context, req *mcpsdk.CallToolRequest, bound *tenant.RequestContext) (*tenant.RequestContext, error) {
	if bound != nil {
		return bound, nil
	}
	if rc, ok := tenant.FromContext(ctx); ok {
		return rc, nil
	}

	var meta map[string]any
	if req != nil && req.Params != nil {
		meta = req.Params.GetMeta()
	}
	ident, ok, err := s.resolver.ResolveMetadata(ctx, meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, tenant.ErrTenantRequired
	}
	t, err := s.provider.GetTenant(ctx, ident.TenantID)
	if err != nil {
		return nil, err
	}
	if err := tenant.Validate(t); err != nil {
		return nil, err
	}
	return tenant.NewRequestContext(t, requestid.New(), tenant.RequestMetadata{
		Channel: tenant.ChannelStreaming,
	}), nil
}

func (s *Service) finish(ctx context.Context, name string, start time.Time, err error) {
	d := time.Since(start)
	if s.recorder != nil {
		s.recorder.ToolCall(name, d, err)
	}
	if err != nil {
		s.log.WarnContext(ctx, "tool call failed", logger.Tool(name), logger.Duration(d), logger.Error(err))
		return
	}
	s.log.DebugContext(ctx, "tool call", logger.Tool(name), logger.Duration(d))
}

type emptyInput struct{}

func (s *Service) getLocation(ctx context.Context, c *ghl.Client, _ emptyInput) (ghl.Location, error) {
	loc, err := c.GetLocation(ctx)
	if err != nil {
		return ghl.Location{}, err
	}
	return *loc, nil
}

type searchContactsInput struct {
	Query string `json:"query,omitempty" jsonschema:"Free text matched against name, email and phone"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of contacts to return (1-100, default 20)"`
}

type searchContactsOutput struct {
	Contacts []ghl.Contact `json:"contacts"`
	Count    int           `json:"count"`
}

func (s *Service) searchContacts(ctx context.Context, c *ghl.Client, in searchContactsInput) (searchContactsOutput, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 20
	}
	contacts, err := c.SearchContacts(ctx, ghl.ContactSearch{Query: strings.TrimSpace(in.Query), Limit: limit})
	if err != nil {
		return searchContactsOutput{}, err
	}
	if contacts == nil {
		contacts = []ghl.Contact{}
	}
	return searchContactsOutput{Contacts: contacts, Count: len(contacts)}, nil
}

type getContactInput struct {
	ContactID string `json:"contactId" jsonschema:"Contact id"`
}

func (s *Service) getContact(ctx context.Context, c *ghl.Client, in getContactInput) (ghl.Contact, error) {
	id := strings.TrimSpace(in.ContactID)
	if id == "" {
		return ghl.Contact{}, errors.Join(ErrMissingArgument, errors.New("contactId"))
	}
	contact, err := c.GetContact(ctx, id)
	if err != nil {
		return ghl.Contact{}, err
	}
	return *contact, nil
}

type listCalendarsOutput struct {
	Calendars []ghl.Calendar `json:"calendars"`
}

func (s *Service) listCalendars(ctx context.Context, c *ghl.Client, _ emptyInput) (listCalendarsOutput, error) {
	cals, err := c.ListCalendars(ctx)
	if err != nil {
		return listCalendarsOutput{}, err
	}
	if cals == nil {
		cals = []ghl.Calendar{}
	}
	return listCalendarsOutput{Calendars: cals}, nil
}
