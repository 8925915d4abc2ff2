package memfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fs9fs/fs9/pkg/provider"
)

func TestFS_OpenWriteReadRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs := New()

	h, info, err := fs.Open(ctx, "/a.txt", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)
	assert.Equal(t, "/a.txt", info.Path)
	assert.Equal(t, provider.TypeRegular, info.FileType)

	n, err := fs.Write(ctx, h, 0, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, fs.Close(ctx, h))

	stat, err := fs.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 5, stat.Size)

	h2, _, err := fs.Open(ctx, "/a.txt", provider.OpenFlags{Read: true})
	require.NoError(t, err)
	data, err := fs.Read(ctx, h2, 0, 64)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	require.NoError(t, fs.Close(ctx, h2))
}

func TestFS_DoubleCloseIsInvalidHandle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs := New()

	h, _, err := fs.Open(ctx, "/a.txt", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)
	require.NoError(t, fs.Close(ctx, h))

	err = fs.Close(ctx, h)
	require.Error(t, err)
	assert.Equal(t, provider.KindInvalidHandle, provider.KindOf(err))
}

func TestFS_CreateExclusiveFailsIfExists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs := New()

	_, _, err := fs.Open(ctx, "/a.txt", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)

	_, _, err = fs.Open(ctx, "/a.txt", provider.OpenFlags{Write: true, Create: true, Exclusive: true})
	require.Error(t, err)
	assert.Equal(t, provider.KindAlreadyExists, provider.KindOf(err))
}

func TestFS_RemoveNonEmptyDirectoryFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs := New()

	_, _, err := fs.Open(ctx, "/dir", provider.OpenFlags{Create: true, Directory: true})
	require.NoError(t, err)
	_, _, err = fs.Open(ctx, "/dir/a.txt", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)

	err = fs.Remove(ctx, "/dir")
	require.Error(t, err)
	assert.Equal(t, provider.KindDirectoryNotEmpty, provider.KindOf(err))

	require.NoError(t, fs.Remove(ctx, "/dir/a.txt"))
	require.NoError(t, fs.Remove(ctx, "/dir"))
}

func TestFS_ReaddirListsDirectChildrenOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs := New()

	_, _, err := fs.Open(ctx, "/dir", provider.OpenFlags{Create: true, Directory: true})
	require.NoError(t, err)
	_, _, err = fs.Open(ctx, "/dir/a.txt", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)
	_, _, err = fs.Open(ctx, "/dir/sub", provider.OpenFlags{Create: true, Directory: true})
	require.NoError(t, err)
	_, _, err = fs.Open(ctx, "/dir/sub/b.txt", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)

	entries, err := fs.Readdir(ctx, "/dir")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestFS_WstatRename(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs := New()

	_, _, err := fs.Open(ctx, "/a.txt", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)

	newPath := "/b.txt"
	require.NoError(t, fs.Wstat(ctx, "/a.txt", provider.StatChanges{NewPath: &newPath}))

	_, err = fs.Stat(ctx, "/a.txt")
	require.Error(t, err)
	assert.Equal(t, provider.KindNotFound, provider.KindOf(err))

	info, err := fs.Stat(ctx, "/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "/b.txt", info.Path)
}
