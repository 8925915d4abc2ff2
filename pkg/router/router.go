// Package router implements the per-tenant VFS router: it resolves a
// request path to a mounted provider, checks the required capability, and
// rewrites provider-local responses back into absolute VFS paths.
package router

import (
	"context"
	"path"
	"strings"

	"github.com/fs9fs/fs9/internal/logger"
	"github.com/fs9fs/fs9/pkg/handle"
	"github.com/fs9fs/fs9/pkg/mount"
	"github.com/fs9fs/fs9/pkg/provider"
)

// DefaultMaxHops is the default ceiling on recursive proxy hops before a
// request fails with TooManyHops.
const DefaultMaxHops = 8

// Router is itself an FsProvider-shaped façade over one tenant's mount
// table and handle registry; from outside the namespace manager it walks
// and talks like any other provider.
type Router struct {
	Tenant   string
	Mounts   *mount.Table
	Handles  *handle.Registry
	MaxHops  int
}

// New constructs a Router for tenant over the given mount table and handle
// registry.
func New(tenant string, mounts *mount.Table, handles *handle.Registry) *Router {
	return &Router{Tenant: tenant, Mounts: mounts, Handles: handles, MaxHops: DefaultMaxHops}
}

// hopKey is the context key carrying the remaining recursive-proxy hop
// budget for the current request.
type hopKey struct{}

// WithHopBudget attaches a hop counter to ctx if one is not already
// present, so nested router/proxy calls share a single budget.
func WithHopBudget(ctx context.Context, max int) context.Context {
	if _, ok := ctx.Value(hopKey{}).(*int); ok {
		return ctx
	}
	budget := max
	return context.WithValue(ctx, hopKey{}, &budget)
}

// ConsumeHop decrements the request's hop budget, returning TooManyHops
// once it is exhausted. Providers that recurse into another FS9 instance
// (the HTTP proxy provider) call this before making the outbound call.
func ConsumeHop(ctx context.Context) error {
	budget, ok := ctx.Value(hopKey{}).(*int)
	if !ok {
		return nil
	}
	if *budget <= 0 {
		return provider.TooManyHops("hop limit exceeded")
	}
	*budget--
	return nil
}

func normalize(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "/"
	}
	return cleaned
}

// rewrite prepends the mount point to a provider-local path and normalizes
// the result back into an absolute VFS path.
func rewrite(mountPoint, providerPath string) string {
	if mountPoint == "/" {
		return normalize(providerPath)
	}
	if providerPath == "/" {
		return normalize(mountPoint)
	}
	return normalize(mountPoint + providerPath)
}

func (rt *Router) resolve(requestPath string) (mount.Entry, string, error) {
	ctx, rel, err := rt.Mounts.Resolve(normalize(requestPath))
	if err != nil {
		return mount.Entry{}, "", err
	}
	return ctx, rel, nil
}

func requireCapability(caps provider.Capabilities, cap provider.Capability, op string) error {
	if cap != 0 && !caps.Has(cap) {
		return provider.NotImplemented(op + " is not supported by this provider")
	}
	return nil
}

// Stat resolves path and returns its rewritten FileInfo.
func (rt *Router) Stat(ctx context.Context, reqPath string) (provider.FileInfo, error) {
	entry, rel, err := rt.resolve(reqPath)
	if err != nil {
		return provider.FileInfo{}, err
	}
	fi, err := entry.Provider.Stat(ctx, rel)
	if err != nil {
		return provider.FileInfo{}, err
	}
	fi.Path = rewrite(entry.MountPoint, fi.Path)
	return fi, nil
}

// Wstat resolves path, checks the capability implied by the requested
// changes, and applies them.
func (rt *Router) Wstat(ctx context.Context, reqPath string, changes provider.StatChanges) error {
	entry, rel, err := rt.resolve(reqPath)
	if err != nil {
		return err
	}

	if changes.Size != nil {
		if err := requireCapability(entry.Capabilities, provider.CapTruncate, "truncate"); err != nil {
			return err
		}
	}
	if changes.NewPath != nil {
		if err := requireCapability(entry.Capabilities, provider.CapRename, "rename"); err != nil {
			return err
		}
	}
	if changes.Mode != nil {
		if err := requireCapability(entry.Capabilities, provider.CapChmod, "chmod"); err != nil {
			return err
		}
	}
	if changes.UID != nil || changes.GID != nil {
		if err := requireCapability(entry.Capabilities, provider.CapChown, "chown"); err != nil {
			return err
		}
	}
	if changes.Mtime != nil || changes.Atime != nil {
		if err := requireCapability(entry.Capabilities, provider.CapUtime, "utime"); err != nil {
			return err
		}
	}

	return entry.Provider.Wstat(ctx, rel, changes)
}

// Statfs resolves path and returns aggregate filesystem statistics.
// Capability absence is not fatal: per provider convention the provider
// may simply return synthetic zeros.
func (rt *Router) Statfs(ctx context.Context, reqPath string) (provider.FsStats, error) {
	entry, rel, err := rt.resolve(reqPath)
	if err != nil {
		return provider.FsStats{}, err
	}
	return entry.Provider.Statfs(ctx, rel)
}

// Open resolves path, checks create capability when requested, opens the
// file, registers the resulting handle in this tenant's registry, and
// returns the minted HandleId plus the rewritten FileInfo.
func (rt *Router) Open(ctx context.Context, reqPath string, flags provider.OpenFlags) (handle.ID, provider.FileInfo, error) {
	entry, rel, err := rt.resolve(reqPath)
	if err != nil {
		return 0, provider.FileInfo{}, err
	}

	if flags.Create {
		if err := requireCapability(entry.Capabilities, provider.CapCreate, "create"); err != nil {
			return 0, provider.FileInfo{}, err
		}
	}
	if flags.Directory && flags.Write && !flags.Create {
		return 0, provider.FileInfo{}, provider.IsDirectory("cannot open a directory for write")
	}

	ph, fi, err := entry.Provider.Open(ctx, rel, flags)
	if err != nil {
		return 0, provider.FileInfo{}, err
	}

	id := rt.Handles.Register(entry.Provider, entry.ProviderType, rt.Tenant, entry.MountPoint, flags, ph)
	fi.Path = rewrite(entry.MountPoint, fi.Path)

	logger.DebugCtx(ctx, "handle opened", logger.HandleID(uint64(id)),
		logger.Path(fi.Path), logger.Provider(entry.ProviderType))

	return id, fi, nil
}

// Read dispatches a read to the provider owning id, touching its last-used
// timestamp.
func (rt *Router) Read(ctx context.Context, id handle.ID, offset int64, size int) ([]byte, error) {
	rec, err := rt.Handles.Lookup(id)
	if err != nil {
		return nil, err
	}
	data, err := rec.Provider.Read(ctx, rec.ProviderHandle, offset, size)
	rt.Handles.Touch(id)
	return data, err
}

// Write dispatches a write to the provider owning id, touching its
// last-used timestamp.
func (rt *Router) Write(ctx context.Context, id handle.ID, offset int64, data []byte) (int, error) {
	rec, err := rt.Handles.Lookup(id)
	if err != nil {
		return 0, err
	}
	n, err := rec.Provider.Write(ctx, rec.ProviderHandle, offset, data)
	rt.Handles.Touch(id)
	return n, err
}

// Close removes id from the handle registry, whether or not the provider's
// own close succeeds.
func (rt *Router) Close(ctx context.Context, id handle.ID) error {
	return rt.Handles.Close(ctx, id)
}

// Readdir resolves path and rewrites every returned FileInfo's path back
// into this tenant's absolute VFS namespace.
func (rt *Router) Readdir(ctx context.Context, reqPath string) ([]provider.FileInfo, error) {
	entry, rel, err := rt.resolve(reqPath)
	if err != nil {
		return nil, err
	}
	entries, err := entry.Provider.Readdir(ctx, rel)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Path = rewrite(entry.MountPoint, entries[i].Path)
	}
	return entries, nil
}

// Remove resolves path, checks delete capability, and removes it.
func (rt *Router) Remove(ctx context.Context, reqPath string) error {
	entry, rel, err := rt.resolve(reqPath)
	if err != nil {
		return err
	}
	if err := requireCapability(entry.Capabilities, provider.CapDelete, "delete"); err != nil {
		return err
	}
	return entry.Provider.Remove(ctx, rel)
}

// Capabilities returns the capability set of the provider mounted at path.
func (rt *Router) Capabilities(reqPath string) (provider.Capabilities, error) {
	entry, _, err := rt.resolve(reqPath)
	if err != nil {
		return 0, err
	}
	return entry.Capabilities, nil
}

// Mount installs a new mount entry in this tenant's mount table.
func (rt *Router) Mount(e mount.Entry) error {
	return rt.Mounts.Mount(e)
}

// Unmount removes a mount entry, returning its provider so the caller can
// tear it down once all its handles have drained.
func (rt *Router) Unmount(mountPoint string) (mount.Entry, bool) {
	return rt.Mounts.Unmount(mountPoint)
}

// ListMounts returns a snapshot of this tenant's mount table.
func (rt *Router) ListMounts() []mount.Entry {
	return rt.Mounts.List()
}

// Drain closes every open handle in this tenant's registry.
func (rt *Router) Drain(ctx context.Context) {
	rt.Handles.DrainAll(ctx)
}
