// Package namespace implements the per-tenant namespace manager: the
// lock-free-ish concurrent map binding tenant names to their own router,
// mount table, and handle registry.
package namespace

import (
	"context"
	"sync"

	"github.com/fs9fs/fs9/internal/logger"
	"github.com/fs9fs/fs9/pkg/handle"
	"github.com/fs9fs/fs9/pkg/mount"
	"github.com/fs9fs/fs9/pkg/router"
)

// Namespace is the isolated unit of state bound to one tenant: its own
// mount table, handle registry, and router.
type Namespace struct {
	Tenant  string
	Mounts  *mount.Table
	Handles *handle.Registry
	Router  *router.Router
}

// Manager resolves tenant names to Namespaces, constructing them lazily on
// first reference. It uses sync.Map so the hot read path (every request)
// never takes an exclusive lock; namespace construction itself happens
// outside any lock and loses an optimistic race gracefully.
type Manager struct {
	namespaces sync.Map // string -> *Namespace

	handleOpts []handle.Option
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithHandleOptions forwards handle registry options (e.g. TTL overrides)
// to every namespace the manager creates.
func WithHandleOptions(opts ...handle.Option) Option {
	return func(m *Manager) { m.handleOpts = opts }
}

// New constructs an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreate returns the Namespace for tenant, constructing one if this is
// the first reference. The read-path hit requires no lock; construction on
// miss happens outside any exclusive section, and a losing concurrent
// builder discards its work in favor of the winner.
func (m *Manager) GetOrCreate(tenant string) *Namespace {
	if v, ok := m.namespaces.Load(tenant); ok {
		return v.(*Namespace)
	}

	mounts := mount.New()
	handles := handle.New(m.handleOpts...)
	ns := &Namespace{
		Tenant:  tenant,
		Mounts:  mounts,
		Handles: handles,
		Router:  router.New(tenant, mounts, handles),
	}

	actual, loaded := m.namespaces.LoadOrStore(tenant, ns)
	if loaded {
		// Lost the race: discard our handle registry's background cleaner
		// rather than leaking it.
		handles.Stop()
		return actual.(*Namespace)
	}

	logger.Info("namespace created", logger.Tenant(tenant))
	return ns
}

// Get returns the Namespace for tenant if it already exists, without
// creating one.
func (m *Manager) Get(tenant string) (*Namespace, bool) {
	v, ok := m.namespaces.Load(tenant)
	if !ok {
		return nil, false
	}
	return v.(*Namespace), true
}

// Remove tears down and forgets the namespace for tenant, draining its
// handles first. Used by explicit admin removal; a process exit instead
// calls DrainAll.
func (m *Manager) Remove(ctx context.Context, tenant string) {
	v, ok := m.namespaces.LoadAndDelete(tenant)
	if !ok {
		return
	}
	ns := v.(*Namespace)
	ns.Handles.DrainAll(ctx)
	ns.Handles.Stop()
}

// DrainAll walks every namespace and drains its handle registry. Called on
// graceful shutdown before plugins are unloaded.
func (m *Manager) DrainAll(ctx context.Context) {
	m.namespaces.Range(func(_, v any) bool {
		ns := v.(*Namespace)
		ns.Handles.DrainAll(ctx)
		return true
	})
}

// Tenants returns the names of all currently-known namespaces.
func (m *Manager) Tenants() []string {
	var out []string
	m.namespaces.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	return out
}
