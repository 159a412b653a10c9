package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/net/netutil"

	"github.com/txn2/report-gateway/pkg/configstore"
	"github.com/txn2/report-gateway/pkg/database"
	"github.com/txn2/report-gateway/pkg/database/migrate"
	"github.com/txn2/report-gateway/pkg/gateway"
	"github.com/txn2/report-gateway/pkg/instance"
	"github.com/txn2/report-gateway/pkg/permissions"
	"github.com/txn2/report-gateway/pkg/product"
	"github.com/txn2/report-gateway/pkg/session"
)

const (
	tlsCertFile = "cert.pem"
	tlsKeyFile  = "key.pem"

	shutdownGrace = 10 * time.Second
)

// Server owns the configuration database, the product registry, and the
// HTTP listener for a single report-gateway process.
type Server struct {
	cfg       Config
	gate      *session.Manager
	products  *product.Manager
	store     *configstore.Store
	configDB  *sql.DB
	instances *instance.Directory
	httpSrv   *http.Server
}

// New boots all server subsystems: the root credential, the session
// manager, the configuration database with its schema and default
// permissions, and the product registry with every configured product
// connected (or marked failed). A product that cannot connect does not
// prevent startup.
func New(ctx context.Context, cfg Config) (*Server, error) {
	if err := os.MkdirAll(cfg.ConfigDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("config directory: %w", err)
	}

	rootDigest, err := session.EnsureRootCredential(cfg.ConfigDirectory)
	if err != nil {
		return nil, fmt.Errorf("root credential: %w", err)
	}

	gate, err := session.NewManager(cfg.Authentication, rootDigest)
	if err != nil {
		return nil, fmt.Errorf("authentication: %w", err)
	}

	driver, dsn, err := database.ParseConnectionString(cfg.ConfigDatabase)
	if err != nil {
		return nil, fmt.Errorf("config database: %w", err)
	}
	db, err := database.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("config database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("config database: %w", err)
	}
	if err := migrate.RunConfigSchema(db, string(driver)); err != nil {
		db.Close()
		return nil, fmt.Errorf("config schema: %w", err)
	}

	store := configstore.New(db, driver)
	if err := permissions.InitializeDefaults(ctx, db, store.Builder(), permissions.ScopeSystem, 0); err != nil {
		db.Close()
		return nil, fmt.Errorf("system permissions: %w", err)
	}

	products := product.NewManager(product.ManagerConfig{
		Connector:   database.Connector{},
		RetryWindow: cfg.RetryWindow,
		RunCleanup:  cfg.RunCleanup,
	})

	records, err := store.ListProducts(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("list products: %w", err)
	}
	for _, rec := range records {
		if _, err := products.Add(ctx, rec); err != nil {
			db.Close()
			return nil, fmt.Errorf("register product %q: %w", rec.Endpoint, err)
		}
		if err := permissions.InitializeDefaults(ctx, db, store.Builder(), permissions.ScopeProduct, rec.ID); err != nil {
			db.Close()
			return nil, fmt.Errorf("product permissions %q: %w", rec.Endpoint, err)
		}
	}

	s := &Server{
		cfg:       cfg,
		gate:      gate,
		products:  products,
		store:     store,
		configDB:  db,
		instances: instance.NewDirectory(cfg.ConfigDirectory),
	}

	gw := gateway.New(gateway.Config{WebRoot: cfg.WWWRoot}, gate, products, store)
	s.httpSrv = &http.Server{
		Handler: gw,
		// Client disconnects surface as write errors inside net/http; route
		// them to slog at debug so a dropped browser tab does not spam the
		// log at error level.
		ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug),
	}
	return s, nil
}

// Products exposes the product registry, primarily for tests and for
// command-level seeding.
func (s *Server) Products() *product.Manager {
	return s.products
}

// Store exposes the configuration store.
func (s *Server) Store() *configstore.Store {
	return s.store
}

func (s *Server) tlsFiles() (cert, key string, ok bool) {
	cert = filepath.Join(s.cfg.ConfigDirectory, tlsCertFile)
	key = filepath.Join(s.cfg.ConfigDirectory, tlsKeyFile)
	if _, err := os.Stat(cert); err != nil {
		return "", "", false
	}
	if _, err := os.Stat(key); err != nil {
		return "", "", false
	}
	return cert, key, true
}

// ListenAndServe binds the configured address and serves until ctx is
// cancelled. TLS is enabled when both cert.pem and key.pem exist in the
// configuration directory; otherwise the server falls back to plain HTTP.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Listen.Address, strconv.Itoa(s.cfg.Listen.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	if s.cfg.MaxWorkers > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxWorkers)
	}

	port := ln.Addr().(*net.TCPAddr).Port
	if err := s.instances.Register(os.Getpid(), s.cfg.ConfigDirectory, port); err != nil {
		slog.Warn("instance registration failed", "error", err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown", "error", err)
		}
	}()

	cert, key, useTLS := s.tlsFiles()
	if useTLS {
		slog.Info("serving over TLS", "address", addr)
		err = s.httpSrv.ServeTLS(ln, cert, key)
	} else {
		slog.Info("TLS material not found, serving plain HTTP", "address", addr)
		err = s.httpSrv.Serve(ln)
	}
	if err == http.ErrServerClosed {
		err = nil
	}

	s.Close()
	return err
}

// Close releases server resources. Unregistering the instance is
// best-effort: a missing or unwritable registry file is logged, not fatal.
func (s *Server) Close() {
	if err := s.instances.Unregister(os.Getpid()); err != nil {
		slog.Debug("instance unregistration failed", "error", err)
	}
	s.products.Close()
	if err := s.configDB.Close(); err != nil {
		slog.Warn("closing config database", "error", err)
	}
}
