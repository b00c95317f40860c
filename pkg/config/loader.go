package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var defaultDotenv sync.Once

// Option adjusts how a struct is loaded.
type Option func(*options)

type options struct {
	prefix      string
	environment map[string]string
	dotenv      []string
}

// WithPrefix prepends prefix to every variable name, e.g. "TENANT_1_".
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithEnvironment reads from vars instead of the process environment.
func WithEnvironment(vars map[string]string) Option {
	return func(o *options) { o.environment = vars }
}

// WithDotenv loads the given files into the process environment first.
// Variables already set are not overridden.
func WithDotenv(paths ...string) Option {
	return func(o *options) { o.dotenv = append(o.dotenv, paths...) }
}

// Load parses environment variables into v using its `env` and `envDefault`
// tags. A .env file in the working directory is loaded once per process if
// present.
//
//	type Config struct {
//		Addr string `env:"HTTP_ADDR" envDefault:":8080"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil { ... }
func Load[T any](v *T, opts ...Option) error {
	if v == nil {
		return ErrNilPointer
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.environment == nil {
		defaultDotenv.Do(func() { _ = godotenv.Load() })
		for _, p := range o.dotenv {
			if _, err := os.Stat(p); err != nil {
				continue
			}
			if err := godotenv.Load(p); err != nil {
				return errors.Join(ErrLoadingDotenv, err)
			}
		}
	}

	if err := env.ParseWithOptions(v, env.Options{
		Prefix:      o.prefix,
		Environment: o.environment,
	}); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad is Load for configuration the process cannot start without.
func MustLoad[T any](v *T, opts ...Option) {
	if err := Load(v, opts...); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
