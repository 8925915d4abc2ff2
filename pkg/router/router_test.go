package router_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fs9fs/fs9/pkg/fsprovider/memfs"
	"github.com/fs9fs/fs9/pkg/handle"
	"github.com/fs9fs/fs9/pkg/mount"
	"github.com/fs9fs/fs9/pkg/provider"
	"github.com/fs9fs/fs9/pkg/router"
)

func newTestRouter(t *testing.T) (*router.Router, *memfs.FS) {
	t.Helper()
	fs := memfs.New()
	mounts := mount.New()
	require.NoError(t, mounts.Mount(mount.Entry{
		MountPoint:   "/",
		Provider:     fs,
		ProviderType: "memfs",
		Capabilities: fs.Capabilities(),
	}))
	handles := handle.New()
	t.Cleanup(handles.Stop)
	return router.New("t1", mounts, handles), fs
}

// S1 (spec.md §8): open/write/read round-trip through one tenant's router.
func TestRouterOpenWriteReadRoundTrip(t *testing.T) {
	rt, _ := newTestRouter(t)
	ctx := context.Background()

	id, fi, err := rt.Open(ctx, "/a.txt", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)
	assert.Equal(t, "/a.txt", fi.Path)
	assert.Equal(t, provider.TypeRegular, fi.FileType)

	n, err := rt.Write(ctx, id, 0, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, rt.Close(ctx, id))

	stat, err := rt.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "/a.txt", stat.Path)
	assert.Equal(t, uint64(5), stat.Size)

	rid, _, err := rt.Open(ctx, "/a.txt", provider.OpenFlags{Read: true})
	require.NoError(t, err)
	data, err := rt.Read(ctx, rid, 0, 64)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	require.NoError(t, rt.Close(ctx, rid))
}

// A second Close of the same HandleId must fail with InvalidHandle
// (spec.md §8 universal invariant).
func TestRouterCloseIsNotIdempotent(t *testing.T) {
	rt, _ := newTestRouter(t)
	ctx := context.Background()

	id, _, err := rt.Open(ctx, "/f.txt", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)
	require.NoError(t, rt.Close(ctx, id))

	err = rt.Close(ctx, id)
	require.Error(t, err)
	assert.Equal(t, provider.KindInvalidHandle, provider.KindOf(err))
}

// Mount shadowing / longest-prefix resolution, per spec.md §4.3 and
// scenario S3.
func TestRouterMountShadowing(t *testing.T) {
	root := memfs.New()
	sub := memfs.New()

	mounts := mount.New()
	require.NoError(t, mounts.Mount(mount.Entry{MountPoint: "/", Provider: root, ProviderType: "memfs", Capabilities: root.Capabilities()}))
	require.NoError(t, mounts.Mount(mount.Entry{MountPoint: "/sub", Provider: sub, ProviderType: "memfs", Capabilities: sub.Capabilities()}))

	handles := handle.New()
	t.Cleanup(handles.Stop)
	rt := router.New("t1", mounts, handles)
	ctx := context.Background()

	id, _, err := rt.Open(ctx, "/sub/x", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)
	_, err = rt.Write(ctx, id, 0, []byte("A"))
	require.NoError(t, err)
	require.NoError(t, rt.Close(ctx, id))

	fi, err := rt.Stat(ctx, "/sub/x")
	require.NoError(t, err)
	assert.Equal(t, "/sub/x", fi.Path)

	// The root mount must never see the file written under /sub.
	_, err = root.Stat(ctx, "/sub/x")
	require.Error(t, err)

	removed, ok := rt.Unmount("/sub")
	require.True(t, ok)
	assert.Equal(t, "/sub", removed.MountPoint)

	_, err = rt.Stat(ctx, "/sub/x")
	require.Error(t, err)
	assert.Equal(t, provider.KindNotFound, provider.KindOf(err))
}

// Capability gating: a provider lacking CapRename must reject a wstat
// rename without ever being called, per spec.md §8.
func TestRouterWstatCapabilityGating(t *testing.T) {
	fs := memfs.New()
	mounts := mount.New()
	require.NoError(t, mounts.Mount(mount.Entry{
		MountPoint: "/", Provider: fs, ProviderType: "memfs",
		Capabilities: fs.Capabilities() &^ provider.Capabilities(provider.CapRename),
	}))
	handles := handle.New()
	t.Cleanup(handles.Stop)
	rt := router.New("t1", mounts, handles)
	ctx := context.Background()

	_, _, err := rt.Open(ctx, "/f.txt", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)

	newPath := "/renamed.txt"
	err = rt.Wstat(ctx, "/f.txt", provider.StatChanges{NewPath: &newPath})
	require.Error(t, err)
	assert.Equal(t, provider.KindNotImplemented, provider.KindOf(err))
}

// Opening a directory for write fails IsDirectory without a provider
// round-trip, per spec.md §4.5.
func TestRouterOpenDirectoryForWriteFails(t *testing.T) {
	rt, _ := newTestRouter(t)
	ctx := context.Background()

	_, _, err := rt.Open(ctx, "/dir", provider.OpenFlags{Write: true, Directory: true})
	require.Error(t, err)
	assert.Equal(t, provider.KindIsDirectory, provider.KindOf(err))
}

func TestRouterHopBudgetExhausts(t *testing.T) {
	ctx := router.WithHopBudget(context.Background(), 2)

	require.NoError(t, router.ConsumeHop(ctx))
	require.NoError(t, router.ConsumeHop(ctx))
	err := router.ConsumeHop(ctx)
	require.Error(t, err)
	assert.Equal(t, provider.KindTooManyHops, provider.KindOf(err))
}
