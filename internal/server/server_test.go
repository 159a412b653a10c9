package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/report-gateway/pkg/instance"
	"github.com/txn2/report-gateway/pkg/session"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
listen:
  address: 127.0.0.1
  port: 9050
config_directory: /tmp/rgw-config
www_root: /tmp/rgw-www
config_database: sqlite:/tmp/rgw-config/config.sqlite
max_workers: 4
retry_window: 1m
authentication:
  enabled: true
  dictionary:
    - alice:wonderland
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Listen.Address)
	assert.Equal(t, 9050, cfg.Listen.Port)
	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.Equal(t, time.Minute, cfg.RetryWindow)
	assert.True(t, cfg.Authentication.Enabled)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfigFile(t, `
config_directory: /tmp/rgw-config
www_root: /tmp/rgw-www
config_database: sqlite:/tmp/rgw-config/config.sqlite
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Listen.Address)
	assert.Equal(t, 8001, cfg.Listen.Port)
	assert.Equal(t, 10, cfg.MaxWorkers)
}

func TestLoadConfigMissingRequired(t *testing.T) {
	path := writeConfigFile(t, `
listen:
  port: 9050
`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func testConfig(t *testing.T) Config {
	t.Helper()
	configDir := t.TempDir()
	wwwRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(wwwRoot, "products.html"), []byte("<html>products</html>"), 0o644))

	cfg := DefaultConfig()
	cfg.Listen.Address = "127.0.0.1"
	cfg.Listen.Port = 0
	cfg.ConfigDirectory = configDir
	cfg.WWWRoot = wwwRoot
	cfg.ConfigDatabase = "sqlite:" + filepath.Join(configDir, "config.sqlite")
	return cfg
}

func TestNewBootstrapsConfigDirectory(t *testing.T) {
	cfg := testConfig(t)

	srv, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer srv.Close()

	// The boot sequence generates the one-time root credential file.
	info, err := os.Stat(filepath.Join(cfg.ConfigDirectory, session.RootFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o400), info.Mode().Perm())

	products, err := srv.Store().ListProducts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestSeedProduct(t *testing.T) {
	cfg := testConfig(t)

	srv, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer srv.Close()

	connection := "sqlite:" + filepath.Join(cfg.ConfigDirectory, "default.sqlite")
	require.NoError(t, srv.SeedProduct(context.Background(), "Default", connection, "Default Product"))

	p := srv.Products().Get("Default")
	require.NotNil(t, p)

	// Seeding is refused once any product exists.
	err = srv.SeedProduct(context.Background(), "Other", connection, "")
	assert.ErrorContains(t, err, "refusing to seed")
}

func TestServeAndShutdown(t *testing.T) {
	cfg := testConfig(t)

	srv, err := New(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.ListenAndServe(ctx)
	}()

	// Wait for the instance registration to learn the bound port.
	dir := instance.NewDirectory(cfg.ConfigDirectory)
	var port int
	require.Eventually(t, func() bool {
		records, err := dir.List()
		if err != nil || len(records) == 0 {
			return false
		}
		port = records[0].Port
		return true
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}

	records, err := dir.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}
