// Package pg connects to PostgreSQL through a pgx pool and applies embedded
// goose migrations.
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil { ... }
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil { ... }
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, migrations, "migrations", cfg.MigrationsTable, log); err != nil { ... }
//
// Healthcheck returns a probe for the readiness endpoint, and
// IsDuplicateKeyError / IsNotFoundError classify driver errors.
package pg
