package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/ghlmux/pkg/config"
	"github.com/dmitrymomot/ghlmux/pkg/environment"
	"github.com/dmitrymomot/ghlmux/pkg/ghl"
	"github.com/dmitrymomot/ghlmux/pkg/httpserver"
	"github.com/dmitrymomot/ghlmux/pkg/logger"
	"github.com/dmitrymomot/ghlmux/pkg/metrics"
	"github.com/dmitrymomot/ghlmux/pkg/mongo"
	"github.com/dmitrymomot/ghlmux/pkg/pg"
	"github.com/dmitrymomot/ghlmux/pkg/ratelimit"
	"github.com/dmitrymomot/ghlmux/pkg/redis"
	"github.com/dmitrymomot/ghlmux/pkg/requestid"
	"github.com/dmitrymomot/ghlmux/pkg/secrets"
	"github.com/dmitrymomot/ghlmux/pkg/tenant"
	"github.com/dmitrymomot/ghlmux/pkg/tenant/mongostore"
	"github.com/dmitrymomot/ghlmux/pkg/tenant/pgstore"
	"github.com/dmitrymomot/ghlmux/pkg/tenant/sqlitestore"
	"github.com/dmitrymomot/ghlmux/svc/tenantadmin"
	"github.com/dmitrymomot/ghlmux/svc/tools"
)

var (
	ErrMissingEncryptionKey = errors.New("ENCRYPTION_KEY is required outside development")
	ErrUnknownStore         = errors.New("unknown TENANT_STORE")
)

// app holds the wired components shared by the serve and stdio commands.
type app struct {
	cfg      appConfig
	env      environment.Environment
	log      *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	store    tenant.Store
	resolver *tenant.Resolver
	manager  *tenantadmin.Manager
	factory  *ghl.Factory
	limiter  *ratelimit.FixedWindow
	tools    *tools.Service
	checks   map[string]httpserver.Check

	closers []func()
}

func newApp(ctx context.Context, cfg appConfig) (_ *app, err error) {
	env := environment.Parse(cfg.Env)
	a := &app{
		cfg: cfg,
		env: env,
		log: logger.New(
			logger.WithEnvironment(env, "ghlmux"),
			logger.WithConfig(cfg.Log),
			logger.WithContextExtractors(
				logger.ContextExtractor(tenant.LoggerExtractor()),
				logger.ContextExtractor(requestid.LoggerExtractor()),
			),
		),
		registry: metrics.NewRegistry(),
		checks:   make(map[string]httpserver.Check),
	}
	a.metrics = metrics.New(a.registry)
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	cipher, err := a.cipher()
	if err != nil {
		return nil, err
	}

	primary, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = tenant.NewFallbackStore(primary, tenant.NewEnvStore(cfg.Default))

	a.factory = ghl.NewFactory(
		ghl.WithFactoryConfig(cfg.Cache),
		ghl.WithObserver(a.metrics),
		ghl.WithFactoryLogger(a.log.With(logger.Component("client-factory"))),
	)
	a.closers = append(a.closers, a.factory.Destroy)

	a.manager = tenantadmin.NewManager(a.store, cipher,
		tenantadmin.WithInvalidator(a.factory),
		tenantadmin.WithRecorder(a.metrics),
		tenantadmin.WithLogger(a.log.With(logger.Component("tenant-admin"))),
	)

	a.resolver = tenant.NewResolver(a.store,
		tenant.WithHeader(cfg.Tenancy.Header),
		tenant.WithQueryParam(cfg.Tenancy.QueryParam),
		tenant.WithFallback(cfg.Tenancy.Fallback),
	)

	if a.limiter, err = a.newLimiter(ctx); err != nil {
		return nil, err
	}

	a.tools = tools.New(a.factory, a.resolver, a.manager,
		tools.WithRecorder(a.metrics),
		tools.WithLogger(a.log.With(logger.Component("tools"))),
		tools.WithVersion(Version),
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) cipher() (*secrets.Cipher, error) {
	key := a.cfg.EncryptionKey
	if key == "" {
		if a.env != environment.Development {
			return nil, ErrMissingEncryptionKey
		}
		generated, err := secrets.GenerateSecret()
		if err != nil {
			return nil, err
		}
		key = generated
		a.log.Warn("ENCRYPTION_KEY is not set; credentials written now will be unreadable after restart")
	}
	return secrets.New(key)
}

// openStore builds the primary store. The reserved default tenant is layered
// over it by newApp.
func (a *app) openStore(ctx context.Context) (tenant.Store, error) {
	tc := a.cfg.Tenancy
	kind := tc.storeKind()
	a.log.Info("opening tenant store", slog.String("store", kind), slog.Bool("multi_tenant", tc.MultiTenant))

	switch kind {
	case storeMemory:
		var seed []*tenant.Tenant
		if tc.MultiTenant {
			var err error
			if seed, err = tenant.LoadNumberedEnv(os.LookupEnv); err != nil {
				return nil, err
			}
		}
		return tenant.NewMemoryStore(tenant.WithSeed(seed...)), nil

	case storeFile:
		s, err := tenant.NewFileStore(tc.ConfigFile)
		if err != nil {
			return nil, err
		}
		return s, nil

	case storePostgres:
		var cfg pg.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		if err := pgstore.Migrate(ctx, pool, cfg.MigrationsTable, a.log); err != nil {
			return nil, err
		}
		a.checks["postgres"] = pg.Healthcheck(pool)
		return pgstore.New(pool), nil

	case storeSQLite:
		s, err := sqlitestore.Open(ctx, tc.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		a.checks["sqlite"] = s.Ping
		return s, nil

	case storeMongo:
		var cfg mongo.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		db, err := mongo.ConnectDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Client().Disconnect(context.Background()) })
		a.checks["mongo"] = mongo.Healthcheck(db.Client())
		return mongostore.New(db, mongostore.DefaultCollection), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStore, kind)
}

func (a *app) newLimiter(ctx context.Context) (*ratelimit.FixedWindow, error) {
	lc := a.cfg.Limits

	var store ratelimit.Store
	if lc.RedisURL != "" {
		var cfg redis.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		client, err := redis.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.checks["redis"] = redis.Healthcheck(client)
		store = ratelimit.NewRedisStore(client, cfg.KeyPrefix+"ratelimit:")
	} else {
		mem := ratelimit.NewMemoryStore(ratelimit.WithCleanupInterval(lc.Window))
		a.closers = append(a.closers, func() { _ = mem.Close() })
		store = mem
	}
	return ratelimit.NewFixedWindow(store, lc.MaxRequests, lc.Window)
}

// tenantForCLI resolves the stdio tenant from the flag, then GHL_TENANT_ID,
// then the default tenant, and loads it with a usable credential.
func (a *app) tenantForCLI(ctx context.Context, flagValue string) (*tenant.RequestContext, error) {
	ident, ok, err := a.resolver.ResolveCLI(ctx, flagValue, os.Getenv("GHL_TENANT_ID"))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, tenant.ErrTenantRequired
	}
	t, err := a.manager.GetTenant(ctx, ident.TenantID)
	if err != nil {
		return nil, err
	}
	if err := tenant.Validate(t); err != nil {
		return nil, fmt.Errorf("tenant %q: %w", t.ID, err)
	}
	a.log.Info("stdio tenant resolved", logger.TenantID(t.ID), slog.String("source", string(ident.Source)))
	return tenant.NewRequestContext(t, requestid.New(), tenant.RequestMetadata{Channel: tenant.ChannelStdio}), nil
}
