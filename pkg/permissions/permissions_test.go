package permissions

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func TestInitializeDefaults_System(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM system_permissions`).
		WithArgs("SUPERUSER", "root").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO system_permissions`).
		WithArgs("SUPERUSER", "root", false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, InitializeDefaults(context.Background(), db, psq, ScopeSystem, 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitializeDefaults_SystemIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	// Existing grant: no insert must be issued.
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM system_permissions`).
		WithArgs("SUPERUSER", "root").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	require.NoError(t, InitializeDefaults(context.Background(), db, psq, ScopeSystem, 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitializeDefaults_Product(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM product_permissions`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO product_permissions`).
		WithArgs("PRODUCT_ADMIN", "root", false, int64(42)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM product_permissions`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO product_permissions`).
		WithArgs("PRODUCT_ACCESS", "_everyone", true, int64(42)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, InitializeDefaults(context.Background(), db, psq, ScopeProduct, 42))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitializeDefaults_UnknownScope(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	assert.Error(t, InitializeDefaults(context.Background(), db, psq, Scope("GALACTIC"), 0))
}
