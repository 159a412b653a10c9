package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureRootCredential_FirstRun(t *testing.T) {
	dir := t.TempDir()

	digest, err := EnsureRootCredential(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, digest)

	info, err := os.Stat(filepath.Join(dir, RootFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o400), info.Mode().Perm())
}

func TestEnsureRootCredential_Stable(t *testing.T) {
	dir := t.TempDir()

	first, err := EnsureRootCredential(dir)
	require.NoError(t, err)

	// A second start must load the same digest, not regenerate it.
	second, err := EnsureRootCredential(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEnsureRootCredential_TrimsWhitespace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, RootFileName),
		[]byte("$2a$10$digest\n"), 0o600))

	digest, err := EnsureRootCredential(dir)
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$digest", digest)
}
