// Package database resolves product connection strings into live SQL
// connections. A connection string selects one of two backends: a
// PostgreSQL server or an embedded SQLite file. The driver kind is
// decided once, at parse time, and carried as a plain tag on the
// resulting session factory.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/txn2/report-gateway/pkg/database/migrate"
)

// Driver tags the backend kind behind a connection string.
type Driver string

const (
	// DriverPostgres is a networked PostgreSQL backend.
	DriverPostgres Driver = "postgresql"
	// DriverSQLite is an embedded file backend.
	DriverSQLite Driver = "sqlite"
)

const pingTimeout = 10 * time.Second

// ParseConnectionString resolves a product connection string into a
// driver tag and the DSN handed to database/sql. PostgreSQL strings
// use the postgresql:// URL form; everything else is treated as an
// SQLite file path, with an optional sqlite: prefix.
func ParseConnectionString(connectionString string) (Driver, string, error) {
	switch {
	case connectionString == "":
		return "", "", fmt.Errorf("empty connection string")
	case strings.HasPrefix(connectionString, "postgresql://"),
		strings.HasPrefix(connectionString, "postgres://"):
		return DriverPostgres, connectionString, nil
	case strings.HasPrefix(connectionString, "sqlite://"):
		return DriverSQLite, strings.TrimPrefix(connectionString, "sqlite://"), nil
	case strings.HasPrefix(connectionString, "sqlite:"):
		return DriverSQLite, strings.TrimPrefix(connectionString, "sqlite:"), nil
	default:
		return DriverSQLite, connectionString, nil
	}
}

// SessionFactory wraps an open database handle and opens independent
// transactional sessions against it. A factory is safe for concurrent
// use; every Begin call yields its own transaction.
type SessionFactory struct {
	db     *sql.DB
	driver Driver
}

// NewSessionFactory wraps an already open handle. Used by tests and by
// Connector.Connect.
func NewSessionFactory(db *sql.DB, driver Driver) *SessionFactory {
	return &SessionFactory{db: db, driver: driver}
}

// Begin opens a new transactional session.
func (f *SessionFactory) Begin(ctx context.Context) (*sql.Tx, error) {
	return f.db.BeginTx(ctx, nil)
}

// DB returns the underlying handle for read-only query use.
func (f *SessionFactory) DB() *sql.DB {
	return f.db
}

// Driver returns the backend kind the factory was opened against.
func (f *SessionFactory) Driver() Driver {
	return f.driver
}

// Dispose closes the underlying handle. The factory must not be used
// afterwards.
func (f *SessionFactory) Dispose() error {
	if f.db == nil {
		return nil
	}
	return f.db.Close()
}

// Connector opens report-store connections for products. It exists as
// a type so the product manager can be tested against a fake backend.
type Connector struct{}

// Connect opens the backend named by the connection string, verifies
// it is reachable and, when withMigration is set, brings the report
// schema up to date before returning a session factory.
func (Connector) Connect(ctx context.Context, connectionString string, withMigration bool) (*SessionFactory, error) {
	driver, dsn, err := ParseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	db, err := Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging %s backend: %w", driver, err)
	}

	if withMigration {
		if err := migrate.RunReportSchema(db, string(driver)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrating report schema: %w", err)
		}
	}

	return NewSessionFactory(db, driver), nil
}

// Open opens a database handle for the given driver and DSN without
// touching the schema.
func Open(driver Driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverPostgres:
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("opening postgres handle: %w", err)
		}
		return db, nil
	case DriverSQLite:
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite handle: %w", err)
		}
		// The embedded backend serializes writers; a single connection
		// avoids table-lock errors under concurrent sessions.
		db.SetMaxOpenConns(1)
		return db, nil
	default:
		return nil, fmt.Errorf("unknown driver %q", driver)
	}
}
