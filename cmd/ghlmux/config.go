package main

import (
	"strings"
	"time"

	"github.com/dmitrymomot/ghlmux/pkg/config"
	"github.com/dmitrymomot/ghlmux/pkg/ghl"
	"github.com/dmitrymomot/ghlmux/pkg/httpserver"
	"github.com/dmitrymomot/ghlmux/pkg/logger"
	"github.com/dmitrymomot/ghlmux/pkg/tenant"
)

const (
	storeMemory   = "memory"
	storeFile     = "file"
	storePostgres = "postgres"
	storeSQLite   = "sqlite"
	storeMongo    = "mongo"
)

type appConfig struct {
	Env           string `env:"APP_ENV" envDefault:"development"`
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	Log     logger.Config
	HTTP    httpserver.Config
	Tenancy tenancyConfig
	Default tenant.EnvConfig
	Cache   ghl.FactoryConfig
	Limits  rateLimitConfig
	Admin   adminConfig
}

type tenancyConfig struct {
	MultiTenant bool   `env:"MULTI_TENANT_ENABLED" envDefault:"false"`
	Store       string `env:"TENANT_STORE"` // empty picks file when TENANTS_CONFIG_FILE is set
	ConfigFile  string `env:"TENANTS_CONFIG_FILE"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"ghlmux.db"`
	Header      string `env:"TENANT_HEADER" envDefault:"x-tenant-id"`
	QueryParam  string `env:"TENANT_QUERY_PARAM" envDefault:"tenant"`
	Fallback    bool   `env:"TENANT_FALLBACK_ENABLED" envDefault:"true"`
	Required    bool   `env:"TENANT_REQUIRED" envDefault:"false"`
}

// storeKind normalizes Store, resolving the empty value.
func (c tenancyConfig) storeKind() string {
	kind := strings.ToLower(strings.TrimSpace(c.Store))
	switch kind {
	case "":
		if c.ConfigFile != "" {
			return storeFile
		}
		return storeMemory
	case "postgresql", "pg":
		return storePostgres
	case "sqlite3":
		return storeSQLite
	case "mongodb":
		return storeMongo
	}
	return kind
}

type rateLimitConfig struct {
	Window      time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	MaxRequests int           `env:"RATE_LIMIT_MAX_REQUESTS" envDefault:"100"`
	RedisURL    string        `env:"REDIS_URL"` // shared counters when set
}

type adminConfig struct {
	APIKey string   `env:"ADMIN_API_KEY"`
	Tokens []string `env:"ADMIN_TOKENS" envSeparator:","`
}

func (c adminConfig) tokens() []string {
	return append([]string{c.APIKey}, c.Tokens...)
}

func (c adminConfig) enabled() bool {
	for _, t := range c.tokens() {
		if strings.TrimSpace(t) != "" {
			return true
		}
	}
	return false
}

func loadConfig(opts ...config.Option) (appConfig, error) {
	var cfg appConfig
	if err := config.Load(&cfg, opts...); err != nil {
		return appConfig{}, err
	}
	return cfg, nil
}
