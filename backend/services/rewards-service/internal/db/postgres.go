package db

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"

	libdb "evrewards/backend/libs/db"
)

//go:embed migrations/*.sql
var migrations embed.FS

// NewPostgres connects to Postgres using shared library helper.
func NewPostgres(dsn string) (*sql.DB, error) {
	return libdb.NewPostgresDB(dsn)
}

// Migrate applies the service schema and returns the versions it ran.
func Migrate(ctx context.Context, conn *sql.DB) ([]string, error) {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, err
	}
	return libdb.ApplyMigrations(ctx, conn, sub)
}
