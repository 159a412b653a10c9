// Package main provides the entry point for the report-gateway server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/txn2/report-gateway/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type serverOptions struct {
	configPath  string
	seedProduct string
	seedConnect string
	seedName    string
	showVersion bool
}

func parseFlags() serverOptions {
	opts := serverOptions{}
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.seedProduct, "seed-endpoint", "", "Seed an initial product under this endpoint (requires an empty configuration database)")
	flag.StringVar(&opts.seedConnect, "seed-connection", "", "Connection string for the seeded product")
	flag.StringVar(&opts.seedName, "seed-name", "", "Display name for the seeded product")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	flag.Parse()
	return opts
}

func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

func run() error {
	opts := parseFlags()

	if opts.showVersion {
		fmt.Printf("report-gateway version %s\n", server.Version)
		return nil
	}

	if opts.configPath == "" {
		return fmt.Errorf("no configuration file given, use -config")
	}

	cfg, err := server.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	ctx := setupSignalHandler()

	srv, err := server.New(ctx, cfg)
	if err != nil {
		return err
	}

	if opts.seedProduct != "" {
		if opts.seedConnect == "" {
			return fmt.Errorf("-seed-endpoint requires -seed-connection")
		}
		if err := srv.SeedProduct(ctx, opts.seedProduct, opts.seedConnect, opts.seedName); err != nil {
			return err
		}
	}

	return srv.ListenAndServe(ctx)
}
