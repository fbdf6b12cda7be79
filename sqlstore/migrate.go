package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

func gooseDialect(d Dialect) goose.Dialect {
	if d == Postgres {
		return goose.DialectPostgres
	}
	return goose.DialectSQLite3
}

func newProvider(db *sql.DB, dialect Dialect) (*goose.Provider, error) {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(gooseDialect(dialect), db, fsys)
}

// Migrate applies every pending embedded migration and returns how many ran.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) (int, error) {
	provider, err := newProvider(db, dialect)
	if err != nil {
		return 0, fmt.Errorf("migration setup: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("migration error: %w", err)
	}
	return len(results), nil
}

// SchemaVersion reports the latest applied migration version.
func SchemaVersion(ctx context.Context, db *sql.DB, dialect Dialect) (int64, error) {
	provider, err := newProvider(db, dialect)
	if err != nil {
		return 0, fmt.Errorf("migration setup: %w", err)
	}
	return provider.GetDBVersion(ctx)
}
