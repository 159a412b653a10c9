// Package product owns the registry of configured products and the
// lifecycle of their report-store connections. Connections are
// established lazily, recover on access and back off for a fixed
// window after a failure so an unreachable tenant database never turns
// into a reconnect storm or blocks requests to healthy tenants.
package product

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/txn2/report-gateway/pkg/configstore"
	"github.com/txn2/report-gateway/pkg/database"
)

// DefaultRetryWindow is the minimum interval between consecutive
// connection attempts against a failing product backend.
const DefaultRetryWindow = 300 * time.Second

// Connector opens report-store connections. database.Connector is the
// production implementation; tests substitute fakes.
type Connector interface {
	Connect(ctx context.Context, connectionString string, withMigration bool) (*database.SessionFactory, error)
}

type failure struct {
	at     time.Time
	reason string
}

// Product wraps one tenant's report store: its endpoint identity and a
// lazily-established database connection. All state transitions happen
// under the product's own lock, so concurrent Connect calls are safe
// and cheap no-ops once the product is connected or cooling down.
type Product struct {
	id               int64
	endpoint         string
	displayName      string
	connectionString string

	connector   Connector
	retryWindow time.Duration
	runCleanup  bool

	mu          sync.Mutex
	connected   bool
	factory     *database.SessionFactory
	lastFailure *failure
}

func newProduct(rec configstore.Product, connector Connector, retryWindow time.Duration, runCleanup bool) *Product {
	return &Product{
		id:               rec.ID,
		endpoint:         rec.Endpoint,
		displayName:      rec.DisplayName,
		connectionString: rec.Connection,
		connector:        connector,
		retryWindow:      retryWindow,
		runCleanup:       runCleanup,
	}
}

// ID returns the configured product id.
func (p *Product) ID() int64 { return p.id }

// Endpoint returns the URL segment identifying the product. It is
// immutable after creation.
func (p *Product) Endpoint() string { return p.endpoint }

// DisplayName returns the human-readable product name.
func (p *Product) DisplayName() string { return p.displayName }

// Connected reports whether the product has a live report-store
// connection.
func (p *Product) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// SessionFactory returns the live session factory, or nil while
// disconnected. The factory is safe for concurrent use.
func (p *Product) SessionFactory() *database.SessionFactory {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.factory
}

// LastConnectionFailure returns the reason of the most recent failed
// connection attempt, if any.
func (p *Product) LastConnectionFailure() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastFailure == nil {
		return "", false
	}
	return p.lastFailure.reason, true
}

// Connect establishes the report-store connection. It is a no-op when
// already connected, and a no-op while a prior failure is inside the
// retry window. On success the schema is migrated, the failure record
// cleared and, when enabled, cleanup jobs run against the fresh
// connection. Backend errors are recorded and logged, never returned:
// the caller observes the outcome through Connected.
func (p *Product) Connect(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		return
	}
	if p.lastFailure != nil && time.Since(p.lastFailure.at) <= p.retryWindow {
		return
	}

	slog.Debug("connecting product database", "endpoint", p.endpoint)

	factory, err := p.connector.Connect(ctx, p.connectionString, true)
	if err != nil {
		slog.Error("product database connection failed",
			"endpoint", p.endpoint, "error", err)
		p.lastFailure = &failure{at: time.Now(), reason: err.Error()}
		return
	}

	p.factory = factory
	p.connected = true
	p.lastFailure = nil
	slog.Debug("product database connected", "endpoint", p.endpoint)

	if p.runCleanup {
		if err := runCleanupJobs(ctx, factory); err != nil {
			slog.Warn("product cleanup jobs failed",
				"endpoint", p.endpoint, "error", err)
		}
	}
}

// Teardown disposes the session factory and marks the product
// disconnected.
func (p *Product) Teardown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return
	}
	if err := p.factory.Dispose(); err != nil {
		slog.Warn("disposing product connection", "endpoint", p.endpoint, "error", err)
	}
	p.factory = nil
	p.connected = false
}
