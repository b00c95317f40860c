// Package pgstore persists tenants in PostgreSQL.
package pgstore

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/ghlmux/pkg/pg"
	"github.com/dmitrymomot/ghlmux/pkg/tenant"
)

//go:embed migrations/*.sql
var migrations embed.FS

const columns = `id, name, api_key, location_id, base_url, api_version,
	settings, rate_limits, metadata, is_active, created_at, updated_at`

// Store is a tenant.Store backed by a tenants table.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ tenant.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates or upgrades the tenants table.
func Migrate(ctx context.Context, pool *pgxpool.Pool, table string, log *slog.Logger) error {
	return pg.Migrate(ctx, pool, migrations, "migrations", table, log)
}

// timestamps are kept at the precision postgres stores.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Store) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+columns+` FROM tenants WHERE id = $1`, id)
	t, err := scan(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, tenant.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *Store) GetAll(ctx context.Context) ([]*tenant.Tenant, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+columns+` FROM tenants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*tenant.Tenant
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Create(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	rec, err := tenant.PrepareCreate(t, s.timestamp())
	if err != nil {
		return nil, err
	}
	args, err := values(rec)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx, `INSERT INTO tenants (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`, args...)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return nil, tenant.ErrAlreadyExists
		}
		return nil, err
	}
	return rec, nil
}

// Update reads the row under a lock, applies u and writes it back in one
// transaction.
func (s *Store) Update(ctx context.Context, id string, u tenant.Update) (*tenant.Tenant, error) {
	var out *tenant.Tenant
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+columns+` FROM tenants WHERE id = $1 FOR UPDATE`, id)
		t, err := scan(row)
		if err != nil {
			if pg.IsNotFoundError(err) {
				return tenant.ErrNotFound
			}
			return err
		}

		u.Apply(t, s.timestamp())
		args, err := updateArgs(t)
		if err != nil {
			return err
		}
		if _, err = tx.Exec(ctx, updateSQL, args...); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func scan(row pgx.Row) (*tenant.Tenant, error) {
	var (
		t                              tenant.Tenant
		settings, rateLimits, metadata []byte
	)
	err := row.Scan(&t.ID, &t.Name, &t.APIKey, &t.LocationID, &t.BaseURL, &t.APIVersion,
		&settings, &rateLimits, &metadata, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := errors.Join(
		unmarshal(settings, &t.Settings),
		unmarshal(rateLimits, &t.RateLimits),
		unmarshal(metadata, &t.Metadata),
	); err != nil {
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func values(t *tenant.Tenant) ([]any, error) {
	settings, err := json.Marshal(nonNil(t.Settings))
	if err != nil {
		return nil, err
	}
	rateLimits, err := json.Marshal(t.RateLimits)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(nonNil(t.Metadata))
	if err != nil {
		return nil, err
	}
	return []any{
		t.ID, t.Name, t.APIKey, t.LocationID, t.BaseURL, t.APIVersion,
		string(settings), string(rateLimits), string(metadata), t.Active, t.CreatedAt, t.UpdatedAt,
	}, nil
}

// updateSQL rewrites every mutable column. created_at is left alone, so it
// has no placeholder; updateArgs must stay in step with the numbering.
const updateSQL = `UPDATE tenants SET
	name = $2, api_key = $3, location_id = $4, base_url = $5, api_version = $6,
	settings = $7, rate_limits = $8, metadata = $9, is_active = $10, updated_at = $11
	WHERE id = $1`

func updateArgs(t *tenant.Tenant) ([]any, error) {
	args, err := values(t)
	if err != nil {
		return nil, err
	}
	// values orders columns as id..is_active, created_at, updated_at.
	return append(args[:10:10], args[11]), nil
}

func unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
