// Package configstore provides access to the configuration database:
// the registry of products the server multiplexes across. Each record
// describes one product's endpoint, display name and the connection
// string of its report store.
package configstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/report-gateway/pkg/database"
)

// ErrNotFound is returned when a product endpoint is not configured.
var ErrNotFound = errors.New("product not found")

// ErrDuplicateEndpoint is returned when adding a product whose endpoint
// is already configured.
var ErrDuplicateEndpoint = errors.New("product endpoint already configured")

// productColumns lists columns returned by product SELECT queries.
var productColumns = []string{"id", "endpoint", "connection", "display_name"}

// Product is one configured product record.
type Product struct {
	ID          int64
	Endpoint    string
	Connection  string
	DisplayName string
}

// Store reads and writes product records in the configuration database.
type Store struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// New creates a store over an open configuration database handle. The
// driver tag selects the placeholder format.
func New(db *sql.DB, driver database.Driver) *Store {
	sb := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if driver == database.DriverPostgres {
		sb = sb.PlaceholderFormat(sq.Dollar)
	}
	return &Store{db: db, sb: sb}
}

// ListProducts returns every configured product, ordered by endpoint.
func (s *Store) ListProducts(ctx context.Context) ([]Product, error) {
	query, args, err := s.sb.Select(productColumns...).
		From("products").
		OrderBy("endpoint").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building product list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Endpoint, &p.Connection, &p.DisplayName); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading products: %w", err)
	}
	return products, nil
}

// GetProduct returns the product configured for the given endpoint.
func (s *Store) GetProduct(ctx context.Context, endpoint string) (Product, error) {
	query, args, err := s.sb.Select(productColumns...).
		From("products").
		Where(sq.Eq{"endpoint": endpoint}).
		ToSql()
	if err != nil {
		return Product{}, fmt.Errorf("building product query: %w", err)
	}

	var p Product
	err = s.db.QueryRowContext(ctx, query, args...).
		Scan(&p.ID, &p.Endpoint, &p.Connection, &p.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("querying product %q: %w", endpoint, err)
	}
	return p, nil
}

// AddProduct inserts a new product record and returns it with its
// assigned id. The endpoint must not already be configured.
func (s *Store) AddProduct(ctx context.Context, p Product) (Product, error) {
	if _, err := s.GetProduct(ctx, p.Endpoint); err == nil {
		return Product{}, ErrDuplicateEndpoint
	} else if !errors.Is(err, ErrNotFound) {
		return Product{}, err
	}

	query, args, err := s.sb.Insert("products").
		Columns("endpoint", "connection", "display_name").
		Values(p.Endpoint, p.Connection, p.DisplayName).
		ToSql()
	if err != nil {
		return Product{}, fmt.Errorf("building product insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return Product{}, fmt.Errorf("inserting product %q: %w", p.Endpoint, err)
	}

	return s.GetProduct(ctx, p.Endpoint)
}

// RemoveProduct deletes the product record for the given endpoint.
func (s *Store) RemoveProduct(ctx context.Context, endpoint string) error {
	query, args, err := s.sb.Delete("products").
		Where(sq.Eq{"endpoint": endpoint}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building product delete: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", endpoint, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Builder exposes the store's statement builder so callers sharing the
// configuration database (permission bootstrap) use matching
// placeholders.
func (s *Store) Builder() sq.StatementBuilderType {
	return s.sb
}

// DB returns the underlying configuration database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}
