// Package permissions bootstraps default access-control entries in the
// configuration database. Grants live at two scopes: system-wide and
// per-product. The bootstrap is idempotent and runs at server start
// and whenever a product is added.
package permissions

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Scope selects which permission table a grant applies to.
type Scope string

const (
	// ScopeSystem covers server-wide permissions.
	ScopeSystem Scope = "SYSTEM"
	// ScopeProduct covers permissions of a single product.
	ScopeProduct Scope = "PRODUCT"
)

type grant struct {
	permission string
	userName   string
	isGroup    bool
}

var defaultSystemGrants = []grant{
	{permission: "SUPERUSER", userName: "root"},
}

var defaultProductGrants = []grant{
	{permission: "PRODUCT_ADMIN", userName: "root"},
	{permission: "PRODUCT_ACCESS", userName: "_everyone", isGroup: true},
}

// InitializeDefaults ensures the default grants for the given scope
// exist. For ScopeProduct the product id names which product the
// grants belong to; it is ignored for ScopeSystem.
func InitializeDefaults(ctx context.Context, db *sql.DB, sb sq.StatementBuilderType, scope Scope, productID int64) error {
	switch scope {
	case ScopeSystem:
		for _, g := range defaultSystemGrants {
			if err := ensureSystemGrant(ctx, db, sb, g); err != nil {
				return err
			}
		}
	case ScopeProduct:
		for _, g := range defaultProductGrants {
			if err := ensureProductGrant(ctx, db, sb, g, productID); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown permission scope %q", scope)
	}
	return nil
}

func ensureSystemGrant(ctx context.Context, db *sql.DB, sb sq.StatementBuilderType, g grant) error {
	query, args, err := sb.Select("COUNT(*)").
		From("system_permissions").
		Where(sq.Eq{"permission": g.permission, "user_name": g.userName}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building grant query: %w", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return fmt.Errorf("checking system grant %s/%s: %w", g.permission, g.userName, err)
	}
	if count > 0 {
		return nil
	}

	query, args, err = sb.Insert("system_permissions").
		Columns("permission", "user_name", "is_group").
		Values(g.permission, g.userName, g.isGroup).
		ToSql()
	if err != nil {
		return fmt.Errorf("building grant insert: %w", err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting system grant %s/%s: %w", g.permission, g.userName, err)
	}
	return nil
}

func ensureProductGrant(ctx context.Context, db *sql.DB, sb sq.StatementBuilderType, g grant, productID int64) error {
	query, args, err := sb.Select("COUNT(*)").
		From("product_permissions").
		Where(sq.Eq{"permission": g.permission, "user_name": g.userName, "product_id": productID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building grant query: %w", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return fmt.Errorf("checking product grant %s/%s: %w", g.permission, g.userName, err)
	}
	if count > 0 {
		return nil
	}

	query, args, err = sb.Insert("product_permissions").
		Columns("permission", "user_name", "is_group", "product_id").
		Values(g.permission, g.userName, g.isGroup, productID).
		ToSql()
	if err != nil {
		return fmt.Errorf("building grant insert: %w", err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting product grant %s/%s: %w", g.permission, g.userName, err)
	}
	return nil
}
