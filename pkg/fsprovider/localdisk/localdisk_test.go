package localdisk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fs9fs/fs9/pkg/provider"
)

func TestNew_CreatesRootDirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir() + "/nested/root"

	fs, err := New(root)
	require.NoError(t, err)
	assert.NotNil(t, fs)

	info, err := fs.Stat(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, provider.TypeDirectory, info.FileType)
}

func TestFS_OpenWriteReadRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	h, info, err := fs.Open(ctx, "/a.txt", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)
	assert.Equal(t, "/a.txt", info.Path)

	n, err := fs.Write(ctx, h, 0, []byte("hello disk"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	require.NoError(t, fs.Close(ctx, h))

	stat, err := fs.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 10, stat.Size)

	h2, _, err := fs.Open(ctx, "/a.txt", provider.OpenFlags{Read: true})
	require.NoError(t, err)
	data, err := fs.Read(ctx, h2, 0, 64)
	require.NoError(t, err)
	assert.Equal(t, "hello disk", string(data))
	require.NoError(t, fs.Close(ctx, h2))
}

func TestFS_PathEscapeRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	_, _, err = fs.Open(ctx, "/../../etc/passwd", provider.OpenFlags{Read: true})
	require.Error(t, err)
	assert.Equal(t, provider.KindInvalidInput, provider.KindOf(err))
}

func TestFS_StatNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Stat(ctx, "/missing.txt")
	require.Error(t, err)
	assert.Equal(t, provider.KindNotFound, provider.KindOf(err))
}

func TestFS_RemoveNonEmptyDirectoryFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	_, _, err = fs.Open(ctx, "/dir", provider.OpenFlags{Create: true, Directory: true})
	require.NoError(t, err)
	_, _, err = fs.Open(ctx, "/dir/a.txt", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)

	err = fs.Remove(ctx, "/dir")
	require.Error(t, err)
	assert.Equal(t, provider.KindDirectoryNotEmpty, provider.KindOf(err))
}

func TestFS_ReaddirListsChildren(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	_, _, err = fs.Open(ctx, "/a.txt", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)
	_, _, err = fs.Open(ctx, "/b.txt", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)

	entries, err := fs.Readdir(ctx, "/")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestFS_WstatRename(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	_, _, err = fs.Open(ctx, "/a.txt", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)

	newPath := "/b.txt"
	require.NoError(t, fs.Wstat(ctx, "/a.txt", provider.StatChanges{NewPath: &newPath}))

	_, err = fs.Stat(ctx, "/a.txt")
	require.Error(t, err)
	_, err = fs.Stat(ctx, "/b.txt")
	require.NoError(t, err)
}

func TestFS_Capabilities(t *testing.T) {
	t.Parallel()
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	caps := fs.Capabilities()
	assert.True(t, caps.Has(provider.CapRead))
	assert.True(t, caps.Has(provider.CapWrite))
	assert.True(t, caps.Has(provider.CapRename))
}
