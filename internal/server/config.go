// Package server wires configuration, storage, sessions, and the request
// gateway into a runnable report-gateway process.
package server

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/txn2/report-gateway/pkg/product"
	"github.com/txn2/report-gateway/pkg/session"
)

// Version identifies the running build. Overridden at link time for releases.
var Version = "dev"

// ListenConfig controls the address the gateway binds.
type ListenConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port" validate:"gte=0,lte=65535"`
}

// Config is the full server configuration, loaded from YAML.
type Config struct {
	Listen ListenConfig `yaml:"listen"`

	// ConfigDirectory holds server state: the configuration database when
	// sqlite is used, the root credential file, instance registrations, and
	// optional TLS material (cert.pem and key.pem).
	ConfigDirectory string `yaml:"config_directory" validate:"required"`

	// WWWRoot is the directory static assets are served from.
	WWWRoot string `yaml:"www_root" validate:"required"`

	// ConfigDatabase is the connection string for the configuration
	// database that stores product registrations and permissions.
	ConfigDatabase string `yaml:"config_database" validate:"required"`

	// MaxWorkers bounds the number of concurrently served connections.
	// Zero means unbounded.
	MaxWorkers int `yaml:"max_workers" validate:"gte=0"`

	// RetryWindow is the cool-down after a failed product connection
	// attempt during which reconnects are not retried.
	RetryWindow time.Duration `yaml:"retry_window"`

	// RunCleanup enables database cleanup jobs after each successful
	// product connection.
	RunCleanup bool `yaml:"run_db_cleanup"`

	Authentication session.Config `yaml:"authentication"`
}

// DefaultConfig returns a Config populated with defaults. Callers still
// need to set the required path and connection fields.
func DefaultConfig() Config {
	return Config{
		Listen: ListenConfig{
			Address: "localhost",
			Port:    8001,
		},
		MaxWorkers:  10,
		RetryWindow: product.DefaultRetryWindow,
	}
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
