// Package fsprovider builds a provider.FsProvider instance from a
// provider-type name and an untyped config blob, the single place that
// knows how to turn the config surface's mounts[] entries, the mount
// admin endpoint's request body, and mountstore's persisted rows into a
// live provider.
package fsprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fs9fs/fs9/pkg/fsprovider/badgerfs"
	"github.com/fs9fs/fs9/pkg/fsprovider/httpproxy"
	"github.com/fs9fs/fs9/pkg/fsprovider/localdisk"
	"github.com/fs9fs/fs9/pkg/fsprovider/memfs"
	"github.com/fs9fs/fs9/pkg/fsprovider/s3fs"
	"github.com/fs9fs/fs9/pkg/plugin"
	"github.com/fs9fs/fs9/pkg/provider"
)

// Built-in provider type names, as accepted by the "provider" field of a
// mounts[] entry or a POST /api/v1/mount body.
const (
	TypeMemFS     = "memfs"
	TypeLocalDisk = "localdisk"
	TypeS3        = "s3"
	TypeBadger    = "badger"
	TypeHTTPProxy = "httpproxy"
)

// Factory constructs providers by name, falling back to the process-wide
// plugin manager for any type it does not itself recognize.
type Factory struct {
	Plugins *plugin.Manager
}

// New constructs a Factory backed by plugins for dynamically-loaded
// provider types.
func New(plugins *plugin.Manager) *Factory {
	return &Factory{Plugins: plugins}
}

// Built is the result of constructing one provider: the provider itself,
// its capability set, and (for plugin-backed providers) the handle that
// must be retained/released to track the plugin's live-instance refcount.
type Built struct {
	Provider     provider.FsProvider
	Capabilities provider.Capabilities
	PluginHandle *plugin.Provider // nil for built-in providers
}

// Build constructs a provider of the given type from config. config keys
// are read permissively (missing optional keys fall back to zero values)
// since this blob arrives either from YAML, from an HTTP JSON body, or
// from a mountstore row's decoded JSON column.
func (f *Factory) Build(ctx context.Context, providerType string, config map[string]any) (Built, error) {
	switch providerType {
	case TypeMemFS:
		fs := memfs.New()
		return Built{Provider: fs, Capabilities: fs.Capabilities()}, nil

	case TypeLocalDisk:
		root, _ := config["root"].(string)
		if root == "" {
			return Built{}, provider.InvalidInput("localdisk requires a non-empty \"root\" config key")
		}
		fs, err := localdisk.New(root)
		if err != nil {
			return Built{}, err
		}
		return Built{Provider: fs, Capabilities: fs.Capabilities()}, nil

	case TypeS3:
		cfg := s3fs.Config{
			Bucket:         stringConfig(config, "bucket"),
			Region:         stringConfig(config, "region"),
			Endpoint:       stringConfig(config, "endpoint"),
			KeyPrefix:      stringConfig(config, "key_prefix"),
			ForcePathStyle: boolConfig(config, "force_path_style"),
		}
		if cfg.Bucket == "" {
			return Built{}, provider.InvalidInput("s3 requires a non-empty \"bucket\" config key")
		}
		fs, err := s3fs.NewFromConfig(ctx, cfg)
		if err != nil {
			return Built{}, err
		}
		return Built{Provider: fs, Capabilities: fs.Capabilities()}, nil

	case TypeBadger:
		dir := stringConfig(config, "dir")
		if dir == "" {
			return Built{}, provider.InvalidInput("badger requires a non-empty \"dir\" config key")
		}
		fs, err := badgerfs.Open(dir)
		if err != nil {
			return Built{}, err
		}
		return Built{Provider: fs, Capabilities: fs.Capabilities()}, nil

	case TypeHTTPProxy:
		baseURL := stringConfig(config, "base_url")
		if baseURL == "" {
			return Built{}, provider.InvalidInput("httpproxy requires a non-empty \"base_url\" config key")
		}
		timeout := 30 * time.Second
		if secs := intConfig(config, "timeout_secs"); secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
		fs := httpproxy.New(httpproxy.Config{
			BaseURL: baseURL,
			Token:   stringConfig(config, "token"),
			Timeout: timeout,
		})
		return Built{Provider: fs, Capabilities: fs.Capabilities()}, nil

	default:
		return f.buildPlugin(ctx, providerType, config)
	}
}

// buildPlugin treats any provider type this factory does not recognize
// as the name of a loaded plugin, per spec.md §4.2's "the same provider
// interface, whether built-in or dynamically loaded" contract.
func (f *Factory) buildPlugin(ctx context.Context, name string, config map[string]any) (Built, error) {
	if f.Plugins == nil {
		return Built{}, provider.NotImplemented(fmt.Sprintf("unknown provider type %q", name))
	}
	lp, ok := f.Plugins.Get(name)
	if !ok {
		return Built{}, provider.NotImplemented(fmt.Sprintf("unknown provider type %q (no plugin loaded under that name)", name))
	}

	raw := encodePluginConfig(config)
	pp, err := plugin.NewProvider(ctx, lp, f.Plugins.Pool(), raw)
	if err != nil {
		return Built{}, err
	}
	pp.Retain()
	return Built{Provider: pp, Capabilities: pp.Capabilities(), PluginHandle: pp}, nil
}

// encodePluginConfig marshals the config blob to JSON for the plugin's
// create() call; a plugin that wants none of it simply ignores an empty
// object.
func encodePluginConfig(config map[string]any) []byte {
	if len(config) == 0 {
		return []byte("{}")
	}
	raw, err := json.Marshal(config)
	if err != nil {
		return []byte("{}")
	}
	return raw
}

func stringConfig(config map[string]any, key string) string {
	v, _ := config[key].(string)
	return v
}

func boolConfig(config map[string]any, key string) bool {
	v, _ := config[key].(bool)
	return v
}

func intConfig(config map[string]any, key string) int {
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
