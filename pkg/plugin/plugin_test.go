package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fs9fs/fs9/pkg/provider"
)

func TestDirectoryResolutionOrder_ConfiguredWins(t *testing.T) {
	t.Setenv("FS9_PLUGIN_DIR", "/env/dir")
	dirs := DirectoryResolutionOrder([]string{"/configured/a", "/configured/b"})
	assert.Equal(t, []string{"/configured/a", "/configured/b"}, dirs)
}

func TestDirectoryResolutionOrder_EnvFallback(t *testing.T) {
	t.Setenv("FS9_PLUGIN_DIR", "/env/dir")
	dirs := DirectoryResolutionOrder(nil)
	assert.Equal(t, []string{"/env/dir"}, dirs)
}

func TestDirectoryResolutionOrder_DefaultFallback(t *testing.T) {
	t.Setenv("FS9_PLUGIN_DIR", "")
	dirs := DirectoryResolutionOrder(nil)
	assert.Equal(t, []string{"./plugins"}, dirs)
}

func TestManager_ResolveFindsCandidateExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "echo.so"), []byte("fake"), 0o644))

	m := NewManager([]string{dir})
	path, err := m.resolve("echo")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "echo.so"), path)
}

func TestManager_LoadUnknownNameFails(t *testing.T) {
	m := NewManager([]string{t.TempDir()})
	err := m.Load(context.Background(), "nonexistent", "")
	require.Error(t, err)
}

func TestToCStatChanges_RoundTripsSetFields(t *testing.T) {
	size := uint64(42)
	mt := time.Unix(1700000000, 0)
	c := toCStatChanges(provider.StatChanges{Size: &size, Mtime: &mt})

	assert.True(t, c.hasSize)
	assert.EqualValues(t, 42, c.size)
	assert.True(t, c.hasMtime)
	assert.False(t, c.hasMode)
	assert.False(t, c.hasNewPath)
}

func TestResultErr_MapsCodeToKind(t *testing.T) {
	res := cResult{code: -1}
	err := resultErr(res)
	require.Error(t, err)
	assert.Equal(t, provider.KindNotFound, provider.KindOf(err))
}

func TestResultErr_SuccessIsNil(t *testing.T) {
	assert.NoError(t, resultErr(cResult{code: 0}))
}

func TestPool_RunRespectsContextCancellation(t *testing.T) {
	t.Parallel()
	pool := NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pool.Run(ctx, func() error { return nil })
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPool_RunReturnsFnError(t *testing.T) {
	t.Parallel()
	pool := NewPool(2)
	sentinel := errors.New("boom")

	err := pool.Run(context.Background(), func() error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
}

func TestUnixSeconds_ZeroIsZeroTime(t *testing.T) {
	assert.True(t, unixSeconds(0).IsZero())
}
