package mount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fs9fs/fs9/pkg/provider"
)

func TestTable_ResolveLongestPrefix(t *testing.T) {
	t.Parallel()

	tbl := New()
	require.NoError(t, tbl.Mount(Entry{MountPoint: "/", ProviderType: "memfs"}))
	require.NoError(t, tbl.Mount(Entry{MountPoint: "/sub", ProviderType: "memfs"}))

	t.Run("path under the more specific mount resolves there", func(t *testing.T) {
		t.Parallel()
		e, rel, err := tbl.Resolve("/sub/x")
		require.NoError(t, err)
		assert.Equal(t, "/sub", e.MountPoint)
		assert.Equal(t, "/x", rel)
	})

	t.Run("path elsewhere falls back to root mount", func(t *testing.T) {
		t.Parallel()
		e, rel, err := tbl.Resolve("/a.txt")
		require.NoError(t, err)
		assert.Equal(t, "/", e.MountPoint)
		assert.Equal(t, "/a.txt", rel)
	})

	t.Run("exact mount point match resolves to its own root", func(t *testing.T) {
		t.Parallel()
		_, rel, err := tbl.Resolve("/sub")
		require.NoError(t, err)
		assert.Equal(t, "/", rel)
	})
}

func TestTable_UnmountRemovesCoverage(t *testing.T) {
	t.Parallel()

	tbl := New()
	require.NoError(t, tbl.Mount(Entry{MountPoint: "/", ProviderType: "memfs"}))
	require.NoError(t, tbl.Mount(Entry{MountPoint: "/sub", ProviderType: "memfs"}))

	_, ok := tbl.Unmount("/sub")
	require.True(t, ok)

	e, rel, err := tbl.Resolve("/sub/x")
	require.NoError(t, err)
	assert.Equal(t, "/", e.MountPoint)
	assert.Equal(t, "/sub/x", rel)
}

func TestTable_MountDuplicateRejected(t *testing.T) {
	t.Parallel()

	tbl := New()
	require.NoError(t, tbl.Mount(Entry{MountPoint: "/a", ProviderType: "memfs"}))
	err := tbl.Mount(Entry{MountPoint: "/a", ProviderType: "memfs"})
	require.Error(t, err)
	assert.Equal(t, provider.KindAlreadyExists, provider.KindOf(err))
}

func TestTable_ResolveNoMountFound(t *testing.T) {
	t.Parallel()

	tbl := New()
	require.NoError(t, tbl.Mount(Entry{MountPoint: "/only", ProviderType: "memfs"}))

	_, _, err := tbl.Resolve("/elsewhere")
	require.Error(t, err)
	assert.Equal(t, provider.KindNotFound, provider.KindOf(err))
}
