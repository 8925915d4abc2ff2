package handle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fs9fs/fs9/pkg/provider"
)

type fakeProvider struct {
	closed []provider.Handle
}

func (f *fakeProvider) Stat(context.Context, string) (provider.FileInfo, error) { return provider.FileInfo{}, nil }
func (f *fakeProvider) Wstat(context.Context, string, provider.StatChanges) error { return nil }
func (f *fakeProvider) Statfs(context.Context, string) (provider.FsStats, error) { return provider.FsStats{}, nil }
func (f *fakeProvider) Open(context.Context, string, provider.OpenFlags) (provider.Handle, provider.FileInfo, error) {
	return 0, provider.FileInfo{}, nil
}
func (f *fakeProvider) Read(context.Context, provider.Handle, int64, int) ([]byte, error) { return nil, nil }
func (f *fakeProvider) Write(context.Context, provider.Handle, int64, []byte) (int, error) { return 0, nil }
func (f *fakeProvider) Close(_ context.Context, h provider.Handle) error {
	f.closed = append(f.closed, h)
	return nil
}
func (f *fakeProvider) Readdir(context.Context, string) ([]provider.FileInfo, error) { return nil, nil }
func (f *fakeProvider) Remove(context.Context, string) error                        { return nil }
func (f *fakeProvider) Capabilities() provider.Capabilities                         { return 0 }

func TestRegistry_RegisterLookupClose(t *testing.T) {
	t.Parallel()

	r := New(WithCleanupInterval(time.Hour))
	defer r.Stop()

	fp := &fakeProvider{}
	id := r.Register(fp, "memfs", "t1", "/", provider.OpenFlags{Write: true}, provider.Handle(42))

	rec, err := r.Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, provider.Handle(42), rec.ProviderHandle)

	require.NoError(t, r.Close(context.Background(), id))
	assert.Equal(t, []provider.Handle{42}, fp.closed)

	_, err = r.Lookup(id)
	require.Error(t, err)
	assert.Equal(t, provider.KindInvalidHandle, provider.KindOf(err))

	err = r.Close(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, provider.KindInvalidHandle, provider.KindOf(err))
}

func TestRegistry_SweepClosesExpiredHandles(t *testing.T) {
	t.Parallel()

	r := New(WithTTL(10*time.Millisecond), WithCleanupInterval(5*time.Millisecond))
	defer r.Stop()

	fp := &fakeProvider{}
	id := r.Register(fp, "memfs", "t1", "/", provider.OpenFlags{}, provider.Handle(7))

	require.Eventually(t, func() bool {
		_, err := r.Lookup(id)
		return err != nil
	}, time.Second, time.Millisecond)

	assert.Equal(t, []provider.Handle{7}, fp.closed)
}

func TestRegistry_DrainAllClosesEverything(t *testing.T) {
	t.Parallel()

	r := New(WithCleanupInterval(time.Hour))
	defer r.Stop()

	fp := &fakeProvider{}
	r.Register(fp, "memfs", "t1", "/", provider.OpenFlags{}, provider.Handle(1))
	r.Register(fp, "memfs", "t1", "/", provider.OpenFlags{}, provider.Handle(2))

	r.DrainAll(context.Background())

	assert.Equal(t, 0, r.Count())
	assert.ElementsMatch(t, []provider.Handle{1, 2}, fp.closed)
}
