package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/magicmount/internal/config"
)

func setTestStatePath(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "magic_mount", "state.toml")
	config.SetStatePathOverride(path)
	t.Cleanup(func() { config.SetStatePathOverride("") })
	return path
}

func TestWriteReadState(t *testing.T) {
	path := setTestStatePath(t, t.TempDir())

	want := config.State{
		Digest:    "abc123",
		MountedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Modules:   []string{"alpha", "beta"},
		Summary:   "files=2 symlinks=0 mirrored=5 shadows=1 whiteouts=0 skipped=0 failed=0",
	}
	require.NoError(t, config.WriteState(want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	got, err := config.ReadState()
	require.NoError(t, err)
	assert.Equal(t, want.Digest, got.Digest)
	assert.True(t, want.MountedAt.Equal(got.MountedAt))
	assert.Equal(t, want.Modules, got.Modules)
	assert.Equal(t, want.Summary, got.Summary)
}

func TestReadState_Missing(t *testing.T) {
	setTestStatePath(t, t.TempDir())

	_, err := config.ReadState()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRemoveState(t *testing.T) {
	path := setTestStatePath(t, t.TempDir())

	require.NoError(t, config.WriteState(config.State{Digest: "x"}))
	config.RemoveState()

	_, err := os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	// Removing twice is fine.
	config.RemoveState()
}

func TestStatePath_Default(t *testing.T) {
	assert.Equal(t, config.DefaultStatePath, config.StatePath())
}
