package pg

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrEmptyConnectionString = errors.New("postgres: PG_CONN_URL is not set")
	ErrParseConfig           = errors.New("postgres: invalid connection string")
	ErrConnect               = errors.New("postgres: could not connect")
	ErrNotReady              = errors.New("postgres: database is not ready")
	ErrMigrate               = errors.New("postgres: migrations failed")
)

// IsNotFoundError reports whether a query returned no rows.
func IsNotFoundError(err error) bool {
	return err != nil && errors.Is(err, pgx.ErrNoRows)
}

// IsDuplicateKeyError reports a unique constraint violation (SQLSTATE 23505).
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
