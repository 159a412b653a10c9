package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndList(t *testing.T) {
	d := NewDirectory(t.TempDir())

	require.NoError(t, d.Register(100, "/workspaces/a", 8001))
	require.NoError(t, d.Register(200, "/workspaces/b", 8002))

	records, err := d.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, Record{PID: 100, Workspace: "/workspaces/a", Port: 8001}, records[0])
}

func TestRegister_ReplacesStaleRecord(t *testing.T) {
	d := NewDirectory(t.TempDir())

	require.NoError(t, d.Register(100, "/workspaces/a", 8001))
	require.NoError(t, d.Register(100, "/workspaces/a", 9001))

	records, err := d.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 9001, records[0].Port)
}

func TestUnregister(t *testing.T) {
	d := NewDirectory(t.TempDir())

	require.NoError(t, d.Register(100, "/workspaces/a", 8001))
	require.NoError(t, d.Unregister(100))

	records, err := d.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestUnregister_UnknownPIDIsNoError(t *testing.T) {
	d := NewDirectory(t.TempDir())

	assert.NoError(t, d.Unregister(424242))
}
