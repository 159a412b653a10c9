package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/txn2/report-gateway/pkg/configstore"
	"github.com/txn2/report-gateway/pkg/permissions"
)

// SeedProduct registers an initial product on a freshly initialized
// server. It refuses to run against a configuration database that already
// has products, so an accidental re-run cannot disturb an existing setup.
func (s *Server) SeedProduct(ctx context.Context, endpoint, connection, displayName string) error {
	existing, err := s.store.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("configuration database already has %d product(s), refusing to seed", len(existing))
	}

	rec, err := s.store.AddProduct(ctx, configstore.Product{
		Endpoint:    endpoint,
		Connection:  connection,
		DisplayName: displayName,
	})
	if err != nil {
		return fmt.Errorf("add product: %w", err)
	}
	if err := permissions.InitializeDefaults(ctx, s.store.DB(), s.store.Builder(), permissions.ScopeProduct, rec.ID); err != nil {
		return fmt.Errorf("product permissions: %w", err)
	}
	if _, err := s.products.Add(ctx, rec); err != nil {
		return fmt.Errorf("connect product: %w", err)
	}

	slog.Info("seeded initial product", "endpoint", rec.Endpoint)
	return nil
}
