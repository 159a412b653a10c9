package product

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/report-gateway/pkg/database"
)

// Locks left behind by crashed store operations are reclaimed after
// this long.
const lockExpiry = 24 * time.Hour

// runCleanupJobs removes stale rows from a freshly connected report
// store. Currently this reclaims expired run locks.
func runCleanupJobs(ctx context.Context, factory *database.SessionFactory) error {
	sb := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if factory.Driver() == database.DriverPostgres {
		sb = sb.PlaceholderFormat(sq.Dollar)
	}

	query, args, err := sb.Delete("run_locks").
		Where(sq.Lt{"locked_at": time.Now().Add(-lockExpiry)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building lock cleanup query: %w", err)
	}

	tx, err := factory.Begin(ctx)
	if err != nil {
		return fmt.Errorf("opening cleanup session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("reclaiming expired run locks: %w", err)
	}
	return tx.Commit()
}
