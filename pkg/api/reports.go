package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/report-gateway/pkg/database"
	"github.com/txn2/report-gateway/pkg/rpc"
)

const defaultRunLimit = 500

// Run describes one analysis run stored in a product's report store.
type Run struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	RunDate         time.Time `json:"runDate"`
	AnalyzerVersion string    `json:"analyzerVersion,omitempty"`
	Duration        int64     `json:"duration"`
	ReportCount     int64     `json:"reportCount"`
}

type runFilterParams struct {
	Name  string `json:"name,omitempty"`
	Limit uint64 `json:"limit,omitempty"`
}

// Reports serves the per-tenant report access service over a connected
// product's session factory. The analysis data model beyond this
// narrow read surface lives in the report-store services themselves.
type Reports struct {
	factory *database.SessionFactory
	sb      sq.StatementBuilderType
}

// NewReports builds the service for one request against a connected
// product's session factory.
func NewReports(factory *database.SessionFactory) *Reports {
	sb := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if factory.Driver() == database.DriverPostgres {
		sb = sb.PlaceholderFormat(sq.Dollar)
	}
	return &Reports{factory: factory, sb: sb}
}

// Call implements rpc.Handler.
func (s *Reports) Call(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case "getRunCount":
		return s.runCount(ctx)
	case "getRunData":
		var filter runFilterParams
		if len(params) > 0 {
			if err := json.Unmarshal(params, &filter); err != nil {
				return nil, rpc.Faultf(rpc.CodeInvalidParams, "invalid run filter")
			}
		}
		return s.runData(ctx, filter)
	default:
		return nil, rpc.Faultf(rpc.CodeUnknownMethod,
			"CodeCheckerService has no method %q", method)
	}
}

func (s *Reports) runCount(ctx context.Context) (int64, error) {
	query, args, err := s.sb.Select("COUNT(*)").From("runs").ToSql()
	if err != nil {
		return 0, fmt.Errorf("building run count query: %w", err)
	}

	var count int64
	if err := s.factory.DB().QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting runs: %w", err)
	}
	return count, nil
}

func (s *Reports) runData(ctx context.Context, filter runFilterParams) ([]Run, error) {
	limit := filter.Limit
	if limit == 0 || limit > defaultRunLimit {
		limit = defaultRunLimit
	}

	qb := s.sb.Select(
		"id", "name", "run_date", "analyzer_version", "duration",
		"(SELECT COUNT(*) FROM reports WHERE reports.run_id = runs.id) AS report_count",
	).
		From("runs").
		OrderBy("name").
		Limit(limit)
	if filter.Name != "" {
		qb = qb.Where(sq.Eq{"name": filter.Name})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building run query: %w", err)
	}

	rows, err := s.factory.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := make([]Run, 0)
	for rows.Next() {
		var (
			run     Run
			version sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Name, &run.RunDate, &version,
			&run.Duration, &run.ReportCount); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.AnalyzerVersion = version.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading runs: %w", err)
	}
	return runs, nil
}
