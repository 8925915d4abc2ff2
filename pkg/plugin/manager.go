package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fs9fs/fs9/internal/logger"
)

// DefaultConcurrency bounds how many plugin calls may run in flight across
// the whole process.
const DefaultConcurrency = 64

// DirectoryResolutionOrder returns the plugin search path, first non-empty
// source wins: the configured directory list, then FS9_PLUGIN_DIR, then
// "./plugins".
func DirectoryResolutionOrder(configured []string) []string {
	if len(configured) > 0 {
		return configured
	}
	if envDir := os.Getenv("FS9_PLUGIN_DIR"); envDir != "" {
		return []string{envDir}
	}
	return []string{"./plugins"}
}

// Manager is the process-wide registry of loaded plugins, backing the
// GET /api/v1/plugin/list, POST /api/v1/plugin/load, and
// POST /api/v1/plugin/unload admin endpoints.
type Manager struct {
	loader *Loader
	pool   *Pool
	dirs   []string

	mu      sync.RWMutex
	loaded  map[string]*loadedEntry
}

type loadedEntry struct {
	plugin *LoadedPlugin
	path   string
}

// NewManager constructs a plugin Manager searching dirs for named plugins.
func NewManager(dirs []string) *Manager {
	return &Manager{
		loader: NewLoader(),
		pool:   NewPool(DefaultConcurrency),
		dirs:   dirs,
		loaded: make(map[string]*loadedEntry),
	}
}

// Pool exposes the manager's shared blocking pool so newly created
// Providers can be offloaded onto it.
func (m *Manager) Pool() *Pool { return m.pool }

// resolve locates name on the plugin search path, trying each directory in
// order and accepting either a bare name or one already carrying a
// platform-appropriate shared-library extension.
func (m *Manager) resolve(name string) (string, error) {
	candidates := []string{name, name + ".so", name + ".dylib", name + ".dll"}
	for _, dir := range m.dirs {
		for _, c := range candidates {
			full := filepath.Join(dir, c)
			if _, err := os.Stat(full); err == nil {
				return full, nil
			}
		}
	}
	return "", fmt.Errorf("plugin %q not found under %v", name, m.dirs)
}

// Load resolves and dlopens the plugin named name, or loads it directly
// from path when path is non-empty. Loading a name already loaded is a
// no-op success.
func (m *Manager) Load(_ context.Context, name, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.loaded[name]; ok {
		return nil
	}

	resolved := path
	if resolved == "" {
		var err error
		resolved, err = m.resolve(name)
		if err != nil {
			return err
		}
	}

	lp, err := m.loader.Load(resolved)
	if err != nil {
		return err
	}

	m.loaded[name] = &loadedEntry{plugin: lp, path: resolved}
	logger.Info("plugin loaded", logger.PluginName(name), logger.PluginPath(resolved))
	return nil
}

// Unload removes name from the registry. Any mount still referencing a
// provider backed by this plugin keeps working via its own Provider
// reference; only new lookups of name fail after this call.
func (m *Manager) Unload(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.loaded[name]; !ok {
		return fmt.Errorf("plugin %q is not loaded", name)
	}
	delete(m.loaded, name)
	logger.Info("plugin unloaded", logger.PluginName(name))
	return nil
}

// Get returns the named plugin's resolved handle, for use by the mount
// admin path when constructing a new Provider instance.
func (m *Manager) Get(name string) (*LoadedPlugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.loaded[name]
	if !ok {
		return nil, false
	}
	return entry.plugin, true
}

// List returns the names of every currently loaded plugin.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.loaded))
	for name := range m.loaded {
		names = append(names, name)
	}
	return names
}
