// Package migrations embeds the SQL schema for each supported dialect and
// applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) gooseDialect() (goose.Dialect, error) {
	switch d {
	case SQLite:
		return goose.DialectSQLite3, nil
	case Postgres:
		return goose.DialectPostgres, nil
	}
	return "", fmt.Errorf("unknown dialect %q", d)
}

// FS returns the schema files for one dialect.
func FS(d Dialect) (fs.FS, error) {
	return fs.Sub(files, string(d))
}

// Up brings the schema to the latest version. It is safe to call on every start.
func Up(ctx context.Context, db *sql.DB, d Dialect) error {
	gd, err := d.gooseDialect()
	if err != nil {
		return err
	}
	fsys, err := FS(d)
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(gd, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
