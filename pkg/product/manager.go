package product

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/txn2/report-gateway/pkg/configstore"
	"github.com/txn2/report-gateway/pkg/database"
)

// ManagerConfig configures the product connection manager.
type ManagerConfig struct {
	// Connector opens report-store connections. Defaults to the real
	// database connector.
	Connector Connector
	// RetryWindow is the cool-down between failed connection attempts
	// per product. Defaults to DefaultRetryWindow.
	RetryWindow time.Duration
	// RunCleanup enables cleanup jobs after each successful connect.
	RunCleanup bool
}

// Manager is the registry of managed products, shared by every request
// worker. The registry map itself is lock-protected; connection state
// lives inside each Product under its own lock.
type Manager struct {
	connector   Connector
	retryWindow time.Duration
	runCleanup  bool

	mu       sync.RWMutex
	products map[string]*Product
}

// NewManager creates an empty product registry.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Connector == nil {
		cfg.Connector = database.Connector{}
	}
	if cfg.RetryWindow <= 0 {
		cfg.RetryWindow = DefaultRetryWindow
	}
	return &Manager{
		connector:   cfg.Connector,
		retryWindow: cfg.RetryWindow,
		runCleanup:  cfg.RunCleanup,
		products:    make(map[string]*Product),
	}
}

// Add registers a product and immediately attempts to connect it. The
// registration fails when the endpoint is already managed; a failed
// connection attempt does not (the product stays registered,
// disconnected, and recovers on access).
func (m *Manager) Add(ctx context.Context, rec configstore.Product) (*Product, error) {
	m.mu.Lock()
	if _, exists := m.products[rec.Endpoint]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("product %q is already configured", rec.Endpoint)
	}

	slog.Info("setting up product", "endpoint", rec.Endpoint)
	p := newProduct(rec, m.connector, m.retryWindow, m.runCleanup)
	m.products[rec.Endpoint] = p
	m.mu.Unlock()

	// Connect outside the registry lock: a slow backend must not block
	// lookups of other products.
	p.Connect(ctx)
	return p, nil
}

// Get returns the product managed under the endpoint, or nil.
func (m *Manager) Get(endpoint string) *Product {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.products[endpoint]
}

// SoleProduct returns the single managed product when exactly one is
// registered and it is connected; otherwise nil.
func (m *Manager) SoleProduct() *Product {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.products) != 1 {
		return nil
	}
	for _, p := range m.products {
		if p.Connected() {
			return p
		}
	}
	return nil
}

// All returns the managed products in registry order.
func (m *Manager) All() []*Product {
	m.mu.RLock()
	defer m.mu.RUnlock()

	products := make([]*Product, 0, len(m.products))
	for _, p := range m.products {
		products = append(products, p)
	}
	return products
}

// Remove tears down and unregisters the product at the endpoint.
func (m *Manager) Remove(endpoint string) error {
	m.mu.Lock()
	p, exists := m.products[endpoint]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("product %q is not configured", endpoint)
	}
	delete(m.products, endpoint)
	m.mu.Unlock()

	slog.Info("disconnecting product", "endpoint", endpoint)
	p.Teardown()
	return nil
}

// LoadAll registers every configured product record. Individual
// connection failures are logged and skipped so one broken tenant
// cannot keep the server from booting.
func (m *Manager) LoadAll(ctx context.Context, records []configstore.Product) error {
	for _, rec := range records {
		if _, err := m.Add(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Close tears down every managed product.
func (m *Manager) Close() {
	m.mu.Lock()
	products := make([]*Product, 0, len(m.products))
	for _, p := range m.products {
		products = append(products, p)
	}
	m.products = make(map[string]*Product)
	m.mu.Unlock()

	for _, p := range products {
		p.Teardown()
	}
}
