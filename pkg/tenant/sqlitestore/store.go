// Package sqlitestore persists tenants in an embedded SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dmitrymomot/ghlmux/pkg/tenant"
)

const columns = `id, name, api_key, location_id, base_url, api_version,
	settings, rate_limits, metadata, is_active, created_at, updated_at`

// Store is a tenant.Store backed by a single SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
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

// Open opens (or creates) the database at dsn and ensures the schema.
// dsn is a file path or a modernc URI such as "file:x?mode=memory&cache=shared".
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// writes are serialized by sqlite anyway
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			api_key TEXT NOT NULL DEFAULT '',
			location_id TEXT NOT NULL DEFAULT '',
			base_url TEXT NOT NULL DEFAULT '',
			api_version TEXT NOT NULL DEFAULT '',
			settings TEXT NOT NULL DEFAULT '{}',
			rate_limits TEXT NOT NULL DEFAULT '{}',
			metadata TEXT NOT NULL DEFAULT '{}',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tenants_active ON tenants(is_active)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping is a readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	return get(ctx, s.db, id)
}

func (s *Store) GetAll(ctx context.Context) ([]*tenant.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM tenants ORDER BY id`)
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
	rec, err := tenant.PrepareCreate(t, s.now().UTC())
	if err != nil {
		return nil, err
	}
	args, err := values(rec)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO tenants (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`, args...)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, tenant.ErrAlreadyExists
	}
	return rec, nil
}

func (s *Store) Update(ctx context.Context, id string, u tenant.Update) (*tenant.Tenant, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	t, err := get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	u.Apply(t, s.now().UTC())

	args, err := values(t)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `UPDATE tenants SET
		name = ?, api_key = ?, location_id = ?, base_url = ?, api_version = ?,
		settings = ?, rate_limits = ?, metadata = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		args[1], args[2], args[3], args[4], args[5], args[6], args[7], args[8], args[9], args[11], id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tenants WHERE id = ?`, id).Scan(&n)
	return n > 0, err
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func get(ctx context.Context, q querier, id string) (*tenant.Tenant, error) {
	t, err := scan(q.QueryRowContext(ctx, `SELECT `+columns+` FROM tenants WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenant.ErrNotFound
	}
	return t, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*tenant.Tenant, error) {
	var (
		t                              tenant.Tenant
		settings, rateLimits, metadata string
		createdAt, updatedAt           string
	)
	err := row.Scan(&t.ID, &t.Name, &t.APIKey, &t.LocationID, &t.BaseURL, &t.APIVersion,
		&settings, &rateLimits, &metadata, &t.Active, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	var errs []error
	errs = append(errs,
		json.Unmarshal([]byte(settings), &t.Settings),
		json.Unmarshal([]byte(rateLimits), &t.RateLimits),
		json.Unmarshal([]byte(metadata), &t.Metadata),
	)
	t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	errs = append(errs, err)
	t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("decode tenant %q: %w", t.ID, err)
	}
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
		string(settings), string(rateLimits), string(metadata), t.Active,
		t.CreatedAt.UTC().Format(time.RFC3339Nano), t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
