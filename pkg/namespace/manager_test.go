package namespace_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fs9fs/fs9/pkg/fsprovider/memfs"
	"github.com/fs9fs/fs9/pkg/mount"
	"github.com/fs9fs/fs9/pkg/namespace"
	"github.com/fs9fs/fs9/pkg/provider"
)

func mountMemFS(t *testing.T, ns *namespace.Namespace) {
	t.Helper()
	fs := memfs.New()
	require.NoError(t, ns.Router.Mount(mount.Entry{
		MountPoint: "/", Provider: fs, ProviderType: "memfs", Capabilities: fs.Capabilities(),
	}))
}

// GetOrCreate must return the same Namespace for repeated lookups of the
// same tenant, and a distinct one per tenant, per spec.md §4.6.
func TestGetOrCreateIsStablePerTenant(t *testing.T) {
	mgr := namespace.New()
	t.Cleanup(func() { mgr.DrainAll(context.Background()) })

	a1 := mgr.GetOrCreate("tenant-a")
	a2 := mgr.GetOrCreate("tenant-a")
	b1 := mgr.GetOrCreate("tenant-b")

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b1)
	assert.ElementsMatch(t, []string{"tenant-a", "tenant-b"}, mgr.Tenants())
}

// S2 (spec.md §8): a file created in tenant A is NotFound in tenant B,
// since each tenant owns its own mount table and handle registry.
func TestTenantIsolation(t *testing.T) {
	mgr := namespace.New()
	t.Cleanup(func() { mgr.DrainAll(context.Background()) })
	ctx := context.Background()

	t1 := mgr.GetOrCreate("t1")
	t2 := mgr.GetOrCreate("t2")
	mountMemFS(t, t1)
	mountMemFS(t, t2)

	id, _, err := t1.Router.Open(ctx, "/iso.txt", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)
	_, err = t1.Router.Write(ctx, id, 0, []byte("A"))
	require.NoError(t, err)
	require.NoError(t, t1.Router.Close(ctx, id))

	_, err = t1.Router.Stat(ctx, "/iso.txt")
	require.NoError(t, err)

	_, err = t2.Router.Stat(ctx, "/iso.txt")
	require.Error(t, err)
	assert.Equal(t, provider.KindNotFound, provider.KindOf(err))
}

// A HandleId minted for tenant A must be unknown to tenant B's registry,
// even disregarding whatever numeric value it happens to take, per
// spec.md §4.6.
func TestHandleIDsAreNotCrossTenantValid(t *testing.T) {
	mgr := namespace.New()
	t.Cleanup(func() { mgr.DrainAll(context.Background()) })
	ctx := context.Background()

	t1 := mgr.GetOrCreate("t1")
	t2 := mgr.GetOrCreate("t2")
	mountMemFS(t, t1)
	mountMemFS(t, t2)

	id, _, err := t1.Router.Open(ctx, "/f.txt", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)

	_, err = t2.Router.Read(ctx, id, 0, 16)
	require.Error(t, err)
	assert.Equal(t, provider.KindInvalidHandle, provider.KindOf(err))

	require.NoError(t, t1.Router.Close(ctx, id))
}

// Remove tears the namespace down and forgets it; a subsequent
// GetOrCreate builds a fresh one.
func TestRemoveForgetsNamespace(t *testing.T) {
	mgr := namespace.New()
	t.Cleanup(func() { mgr.DrainAll(context.Background()) })

	first := mgr.GetOrCreate("gone")
	mgr.Remove(context.Background(), "gone")

	_, ok := mgr.Get("gone")
	assert.False(t, ok)

	second := mgr.GetOrCreate("gone")
	assert.NotSame(t, first, second)
}
