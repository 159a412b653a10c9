package configstore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/report-gateway/pkg/database"
)

func newMockStore(t *testing.T, driver database.Driver) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, driver), mock
}

func productRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "endpoint", "connection", "display_name"})
}

func TestListProducts(t *testing.T) {
	store, mock := newMockStore(t, database.DriverPostgres)

	mock.ExpectQuery(`SELECT id, endpoint, connection, display_name FROM products ORDER BY endpoint`).
		WillReturnRows(productRows().
			AddRow(1, "demo", "sqlite:/tmp/demo.sqlite", "Demo").
			AddRow(2, "main", "postgresql://cc@db/main", "Main"))

	products, err := store.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "demo", products[0].Endpoint)
	assert.Equal(t, "Main", products[1].DisplayName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProduct(t *testing.T) {
	store, mock := newMockStore(t, database.DriverPostgres)

	mock.ExpectQuery(`SELECT id, endpoint, connection, display_name FROM products WHERE endpoint = \$1`).
		WithArgs("demo").
		WillReturnRows(productRows().AddRow(1, "demo", "sqlite:/tmp/demo.sqlite", "Demo"))

	p, err := store.GetProduct(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, "Demo", p.DisplayName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProduct_NotFound(t *testing.T) {
	store, mock := newMockStore(t, database.DriverPostgres)

	mock.ExpectQuery(`SELECT id, endpoint, connection, display_name FROM products`).
		WithArgs("ghost").
		WillReturnRows(productRows())

	_, err := store.GetProduct(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddProduct(t *testing.T) {
	store, mock := newMockStore(t, database.DriverPostgres)

	mock.ExpectQuery(`SELECT id, endpoint, connection, display_name FROM products`).
		WithArgs("demo").
		WillReturnRows(productRows())
	mock.ExpectExec(`INSERT INTO products \(endpoint,connection,display_name\) VALUES \(\$1,\$2,\$3\)`).
		WithArgs("demo", "sqlite:/tmp/demo.sqlite", "Demo").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT id, endpoint, connection, display_name FROM products`).
		WithArgs("demo").
		WillReturnRows(productRows().AddRow(1, "demo", "sqlite:/tmp/demo.sqlite", "Demo"))

	p, err := store.AddProduct(context.Background(), Product{
		Endpoint:    "demo",
		Connection:  "sqlite:/tmp/demo.sqlite",
		DisplayName: "Demo",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddProduct_DuplicateEndpoint(t *testing.T) {
	store, mock := newMockStore(t, database.DriverPostgres)

	mock.ExpectQuery(`SELECT id, endpoint, connection, display_name FROM products`).
		WithArgs("demo").
		WillReturnRows(productRows().AddRow(1, "demo", "x", "Demo"))

	_, err := store.AddProduct(context.Background(), Product{Endpoint: "demo"})
	assert.ErrorIs(t, err, ErrDuplicateEndpoint)
}

func TestRemoveProduct(t *testing.T) {
	store, mock := newMockStore(t, database.DriverPostgres)

	mock.ExpectExec(`DELETE FROM products WHERE endpoint = \$1`).
		WithArgs("demo").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.RemoveProduct(context.Background(), "demo"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveProduct_Unknown(t *testing.T) {
	store, mock := newMockStore(t, database.DriverPostgres)

	mock.ExpectExec(`DELETE FROM products`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, store.RemoveProduct(context.Background(), "ghost"), ErrNotFound)
}

func TestSQLitePlaceholders(t *testing.T) {
	store, mock := newMockStore(t, database.DriverSQLite)

	mock.ExpectExec(`DELETE FROM products WHERE endpoint = \?`).
		WithArgs("demo").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.RemoveProduct(context.Background(), "demo"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
