// Package migrate provides schema migration support using golang-migrate.
// Two schemas are managed: the configuration schema (products and
// permissions) and the per-product report schema. Each ships in a
// PostgreSQL and an SQLite flavor, selected by the driver tag.
package migrate

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed config/postgresql/*.sql config/sqlite/*.sql report/postgresql/*.sql report/sqlite/*.sql
var migrations embed.FS

// RunConfigSchema brings the configuration schema up to date.
// It is idempotent - already applied migrations are skipped.
func RunConfigSchema(db *sql.DB, driver string) error {
	return run(db, driver, "config")
}

// RunReportSchema brings a product's report schema up to date.
// It is idempotent - already applied migrations are skipped.
func RunReportSchema(db *sql.DB, driver string) error {
	return run(db, driver, "report")
}

func run(db *sql.DB, driver, schema string) error {
	m, err := newMigrator(db, driver, schema)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running %s migrations: %w", schema, err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("getting %s migration version: %w", schema, err)
	}

	if dirty {
		slog.Warn("migration state is dirty", "schema", schema, "version", version)
	} else {
		slog.Debug("migrations complete", "schema", schema, "version", version)
	}

	return nil
}

func newMigrator(db *sql.DB, driver, schema string) (*migrate.Migrate, error) {
	var (
		instance database.Driver
		err      error
	)
	switch driver {
	case "postgresql":
		instance, err = postgres.WithInstance(db, &postgres.Config{})
	case "sqlite":
		instance, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		return nil, fmt.Errorf("no migration support for driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s driver: %w", driver, err)
	}

	source, err := iofs.New(migrations, schema+"/"+driver)
	if err != nil {
		return nil, fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driver, instance)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}
