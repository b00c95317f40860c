package ghl

import (
	"context"
	"hash/fnv"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/ghlmux/pkg/cache"
	"github.com/dmitrymomot/ghlmux/pkg/tenant"
)

const (
	DefaultCacheSize     = 100
	DefaultCacheTTL      = 60 * time.Minute
	DefaultSweepInterval = 15 * time.Minute
)

// FactoryConfig is the client cache configuration, read from CLIENT_CACHE_*.
type FactoryConfig struct {
	Size          int           `env:"CLIENT_CACHE_SIZE" envDefault:"100"`
	TTL           time.Duration `env:"CLIENT_CACHE_TTL" envDefault:"60m"`
	SweepInterval time.Duration `env:"CLIENT_CACHE_SWEEP" envDefault:"15m"`
}

// Observer receives cache events, typically to export metrics.
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheEvicted(reason string)
	CacheSize(n int)
}

type cachedClient struct {
	tenantID string
	client   *Client
}

// Factory hands out upstream clients per tenant, reusing them while the
// tenant's connection settings stay the same.
//
// Entries are keyed by tenant id plus a fingerprint of the credential and
// endpoint, so a rotated credential misses the cache instead of reusing a
// stale client. The cache is bounded: when full, the entry used least
// recently is evicted. A background sweep also drops entries idle for longer
// than the TTL.
type Factory struct {
	cache    *cache.LRU[string, *cachedClient]
	janitor  *cache.Janitor
	group    singleflight.Group
	ttl      time.Duration
	observer Observer
	log      *slog.Logger
	clientOp []ClientOption

	mu     sync.Mutex
	gens   map[string]uint64 // bumped by ClearTenantCache
	closed bool
}

// FactoryOption configures NewFactory.
type FactoryOption func(*factoryOptions)

type factoryOptions struct {
	size     int
	ttl      time.Duration
	sweep    time.Duration
	now      func() time.Time
	observer Observer
	log      *slog.Logger
	clientOp []ClientOption
}

// WithCacheSize sets the maximum number of cached clients.
func WithCacheSize(n int) FactoryOption {
	return func(o *factoryOptions) {
		if n > 0 {
			o.size = n
		}
	}
}

// WithCacheTTL sets how long an unused client survives the background sweep.
func WithCacheTTL(d time.Duration) FactoryOption {
	return func(o *factoryOptions) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithSweepInterval sets the background sweep period. Zero disables the
// background sweep; Sweep can still be called directly.
func WithSweepInterval(d time.Duration) FactoryOption {
	return func(o *factoryOptions) { o.sweep = d }
}

// WithFactoryConfig applies a loaded FactoryConfig.
func WithFactoryConfig(cfg FactoryConfig) FactoryOption {
	return func(o *factoryOptions) {
		WithCacheSize(cfg.Size)(o)
		WithCacheTTL(cfg.TTL)(o)
		if cfg.SweepInterval > 0 {
			o.sweep = cfg.SweepInterval
		}
	}
}

func WithFactoryClock(now func() time.Time) FactoryOption {
	return func(o *factoryOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func WithObserver(obs Observer) FactoryOption {
	return func(o *factoryOptions) { o.observer = obs }
}

func WithFactoryLogger(l *slog.Logger) FactoryOption {
	return func(o *factoryOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClientOptions passes options to every NewClient call.
func WithClientOptions(opts ...ClientOption) FactoryOption {
	return func(o *factoryOptions) { o.clientOp = append(o.clientOp, opts...) }
}

// NewFactory creates a factory and starts its background sweep. Call Destroy
// when the process shuts down.
func NewFactory(opts ...FactoryOption) *Factory {
	o := &factoryOptions{
		size:  DefaultCacheSize,
		ttl:   DefaultCacheTTL,
		sweep: DefaultSweepInterval,
		now:   time.Now,
		log:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}

	f := &Factory{
		ttl:      o.ttl,
		observer: o.observer,
		log:      o.log,
		clientOp: append([]ClientOption{withClientClock(o.now)}, o.clientOp...),
		gens:     make(map[string]uint64),
	}
	f.cache = cache.NewLRU(o.size,
		cache.WithClock[string, *cachedClient](o.now),
		cache.WithEvictCallback(func(_ string, _ *cachedClient, reason cache.EvictReason) {
			if f.observer != nil {
				f.observer.CacheEvicted(string(reason))
			}
		}),
	)
	if o.sweep > 0 {
		f.janitor = cache.NewJanitor(o.sweep, func() { f.Sweep() })
	}
	return f
}

// Client returns the cached client for t, constructing one on a miss.
// Concurrent misses for the same key share one construction.
func (f *Factory) Client(t *tenant.Tenant) (*Client, error) {
	if t == nil {
		return nil, tenant.ErrNotFound
	}
	key := cacheKey(t)

	if e, ok := f.cache.Get(key); ok {
		f.hit()
		return e.client, nil
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrFactoryClosed
	}
	gen := f.gens[t.ID]
	f.mu.Unlock()

	v, err, _ := f.group.Do(key, func() (any, error) {
		if e, ok := f.cache.Get(key); ok {
			return e, nil
		}
		f.miss()

		baseURL, apiVersion := t.Endpoint()
		c, err := NewClient(Config{
			APIKey:     t.APIKey,
			LocationID: t.LocationID,
			BaseURL:    baseURL,
			APIVersion: apiVersion,
		}, f.clientOp...)
		if err != nil {
			return nil, err
		}
		e := &cachedClient{tenantID: t.ID, client: c}

		// skip caching when the tenant was invalidated mid-construction
		f.mu.Lock()
		if !f.closed && f.gens[t.ID] == gen {
			f.cache.Put(key, e)
		}
		f.mu.Unlock()
		f.reportSize()

		f.log.Debug("upstream client created", slog.String("tenant_id", t.ID))
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cachedClient).client, nil
}

// ClientFor returns the client of the tenant bound to ctx.
func (f *Factory) ClientFor(ctx context.Context) (*Client, error) {
	rc, err := tenant.RequireFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return f.Client(rc.Tenant())
}

// ClearTenantCache drops every cached client of tenantID, whatever
// credential it was built with, and returns how many were removed.
func (f *Factory) ClearTenantCache(tenantID string) int {
	f.mu.Lock()
	f.gens[tenantID]++
	n := f.cache.RemoveFunc(func(_ string, e *cachedClient) bool { return e.tenantID == tenantID })
	f.mu.Unlock()

	f.reportSize()
	if n > 0 {
		f.log.Info("upstream clients invalidated",
			slog.String("tenant_id", tenantID), slog.Int("count", n))
	}
	return n
}

// Sweep drops clients idle for longer than the TTL.
func (f *Factory) Sweep() int {
	n := f.cache.RemoveIdle(f.ttl)
	f.reportSize()
	if n > 0 {
		f.log.Debug("idle upstream clients expired", slog.Int("count", n))
	}
	return n
}

// Len is the number of cached clients.
func (f *Factory) Len() int { return f.cache.Len() }

// Destroy stops the background sweep and drops all clients. Later Client
// calls that miss the (empty) cache fail with ErrFactoryClosed.
func (f *Factory) Destroy() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	if f.janitor != nil {
		f.janitor.Stop()
	}
	f.cache.Clear()
	f.reportSize()
}

func (f *Factory) hit() {
	if f.observer != nil {
		f.observer.CacheHit()
	}
}

func (f *Factory) miss() {
	if f.observer != nil {
		f.observer.CacheMiss()
	}
}

func (f *Factory) reportSize() {
	if f.observer != nil {
		f.observer.CacheSize(f.cache.Len())
	}
}

// cacheKey is the tenant id plus an FNV-1a fingerprint of everything the
// client is built from. The fingerprint only detects change; it is not a
// secret-protecting hash.
func cacheKey(t *tenant.Tenant) string {
	baseURL, apiVersion := t.Endpoint()
	h := fnv.New64a()
	for _, part := range []string{t.APIKey, t.LocationID, baseURL, apiVersion} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	return t.ID + ":" + strconv.FormatUint(h.Sum64(), 16)
}
