// Package config loads the fs9 instance configuration from built-in
// defaults, a YAML file, and environment variables (FS9_ prefix); an
// environment variable overrides the file's value for a key the file sets,
// and both override the defaults. It follows the same viper+mapstructure
// shape as the teacher's pkg/config package.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/fs9fs/fs9/internal/bytesize"
	"github.com/fs9fs/fs9/pkg/plugin"
)

// Config is the root configuration document, shaped directly after
// spec.md §6.4's recognized option table.
type Config struct {
	Server Server       `mapstructure:"server" yaml:"server"`
	Mounts []MountEntry `mapstructure:"mounts" yaml:"mounts"`
}

// Server groups every server.* option from spec.md §6.4.
type Server struct {
	Host                  string         `mapstructure:"host" yaml:"host"`
	Port                  int            `mapstructure:"port" yaml:"port"`
	RequestTimeoutSecs    int            `mapstructure:"request_timeout_secs" yaml:"request_timeout_secs"`
	MaxConcurrentRequests int            `mapstructure:"max_concurrent_requests" yaml:"max_concurrent_requests"`
	MaxBodySizeBytes      bytesize.ByteSize `mapstructure:"max_body_size_bytes" yaml:"max_body_size_bytes"`
	MaxWriteSizeBytes     bytesize.ByteSize `mapstructure:"max_write_size_bytes" yaml:"max_write_size_bytes"`
	ShutdownTimeoutSecs   int            `mapstructure:"shutdown_timeout_secs" yaml:"shutdown_timeout_secs"`

	RateLimit RateLimit `mapstructure:"rate_limit" yaml:"rate_limit"`
	Metrics   Metrics   `mapstructure:"metrics" yaml:"metrics"`

	MetaURL string `mapstructure:"meta_url" yaml:"meta_url"`
	MetaKey string `mapstructure:"meta_key" yaml:"meta_key"`

	MetaResilience MetaResilience `mapstructure:"meta_resilience" yaml:"meta_resilience"`
	Auth           Auth           `mapstructure:"auth" yaml:"auth"`
	Plugins        Plugins        `mapstructure:"plugins" yaml:"plugins"`

	// Mountstore persists admin-configured mounts across restarts. Not part
	// of spec.md's table; a supplemental addition described in
	// SPEC_FULL.md §11.
	Mountstore Mountstore `mapstructure:"mountstore" yaml:"mountstore"`
}

// RateLimit groups server.rate_limit.*.
type RateLimit struct {
	Enabled      bool `mapstructure:"enabled" yaml:"enabled"`
	NamespaceQPS int  `mapstructure:"namespace_qps" yaml:"namespace_qps"`
	UserQPS      int  `mapstructure:"user_qps" yaml:"user_qps"`
}

// Metrics groups server.metrics.*.
type Metrics struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// MetaResilience groups server.meta_resilience.*, the circuit-breaker and
// retry configuration for pkg/metaclient.
type MetaResilience struct {
	FailureThreshold   int `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	RecoveryTimeoutSecs int `mapstructure:"recovery_timeout_secs" yaml:"recovery_timeout_secs"`
	MaxRetryAttempts   int `mapstructure:"max_retry_attempts" yaml:"max_retry_attempts"`
	BaseDelayMs        int `mapstructure:"base_delay_ms" yaml:"base_delay_ms"`
}

// Auth groups server.auth.*.
type Auth struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Plugins groups server.plugins.*.
type Plugins struct {
	Directories []string `mapstructure:"directories" yaml:"directories"`
}

// Mountstore configures the optional gorm-backed mount configuration
// persistence layer.
type Mountstore struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Driver  string `mapstructure:"driver" yaml:"driver"` // "sqlite" or "postgres"
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// MountEntry is one preloaded mount for the default tenant (`mounts[]`).
type MountEntry struct {
	Path     string         `mapstructure:"path" yaml:"path"`
	Provider string         `mapstructure:"provider" yaml:"provider"`
	Config   map[string]any `mapstructure:"config" yaml:"config"`
}

// Default returns a Config populated entirely with spec.md §6.4's
// parenthesized defaults.
func Default() *Config {
	return &Config{
		Server: Server{
			Host:                  "0.0.0.0",
			Port:                  9999,
			RequestTimeoutSecs:    30,
			MaxConcurrentRequests: 1000,
			MaxBodySizeBytes:      2 * bytesize.MiB,
			MaxWriteSizeBytes:     256 * bytesize.MiB,
			ShutdownTimeoutSecs:   30,
			RateLimit: RateLimit{
				Enabled:      false,
				NamespaceQPS: 1000,
				UserQPS:      100,
			},
			Metrics: Metrics{Enabled: true},
			MetaResilience: MetaResilience{
				FailureThreshold:    5,
				RecoveryTimeoutSecs: 30,
				MaxRetryAttempts:    3,
				BaseDelayMs:         100,
			},
			Auth:    Auth{Enabled: true},
			Plugins: Plugins{Directories: []string{"./plugins"}},
		},
	}
}

// ApplyDefaults fills any zero-valued field in cfg with its spec.md §6.4
// default, the way the teacher's config.ApplyDefaults backfills a
// partially-specified file.
func ApplyDefaults(cfg *Config) {
	d := Default()

	if cfg.Server.Host == "" {
		cfg.Server.Host = d.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = d.Server.Port
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = d.Server.RequestTimeoutSecs
	}
	if cfg.Server.MaxConcurrentRequests == 0 {
		cfg.Server.MaxConcurrentRequests = d.Server.MaxConcurrentRequests
	}
	if cfg.Server.MaxBodySizeBytes == 0 {
		cfg.Server.MaxBodySizeBytes = d.Server.MaxBodySizeBytes
	}
	if cfg.Server.MaxWriteSizeBytes == 0 {
		cfg.Server.MaxWriteSizeBytes = d.Server.MaxWriteSizeBytes
	}
	if cfg.Server.ShutdownTimeoutSecs == 0 {
		cfg.Server.ShutdownTimeoutSecs = d.Server.ShutdownTimeoutSecs
	}
	if cfg.Server.RateLimit.NamespaceQPS == 0 {
		cfg.Server.RateLimit.NamespaceQPS = d.Server.RateLimit.NamespaceQPS
	}
	if cfg.Server.RateLimit.UserQPS == 0 {
		cfg.Server.RateLimit.UserQPS = d.Server.RateLimit.UserQPS
	}
	if cfg.Server.MetaResilience.FailureThreshold == 0 {
		cfg.Server.MetaResilience.FailureThreshold = d.Server.MetaResilience.FailureThreshold
	}
	if cfg.Server.MetaResilience.RecoveryTimeoutSecs == 0 {
		cfg.Server.MetaResilience.RecoveryTimeoutSecs = d.Server.MetaResilience.RecoveryTimeoutSecs
	}
	if cfg.Server.MetaResilience.MaxRetryAttempts == 0 {
		cfg.Server.MetaResilience.MaxRetryAttempts = d.Server.MetaResilience.MaxRetryAttempts
	}
	if cfg.Server.MetaResilience.BaseDelayMs == 0 {
		cfg.Server.MetaResilience.BaseDelayMs = d.Server.MetaResilience.BaseDelayMs
	}
	if len(cfg.Server.Plugins.Directories) == 0 {
		cfg.Server.Plugins.Directories = d.Server.Plugins.Directories
	}
	if cfg.Server.Mountstore.Driver == "" {
		cfg.Server.Mountstore.Driver = "sqlite"
	}
	// "auth.enabled" defaults to true only when a metadata service is
	// configured at all; an instance with no meta_url has nothing to
	// validate bearer tokens against.
	if cfg.Server.MetaURL == "" {
		cfg.Server.Auth.Enabled = false
	}
}

// Validate rejects a configuration this instance cannot safely start
// with. Field-level structural checks (ranges, required strings) are
// done here directly rather than via struct validation tags, since this
// module does not carry a generic struct-validator dependency.
func Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeoutSecs <= 0 {
		return fmt.Errorf("server.request_timeout_secs must be positive")
	}
	if cfg.Server.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("server.max_concurrent_requests must be positive")
	}
	if cfg.Server.Auth.Enabled && cfg.Server.MetaURL == "" {
		return fmt.Errorf("server.auth.enabled requires server.meta_url")
	}
	if cfg.Server.Mountstore.Enabled {
		switch cfg.Server.Mountstore.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("server.mountstore.driver %q must be sqlite or postgres", cfg.Server.Mountstore.Driver)
		}
	}
	for i, m := range cfg.Mounts {
		if m.Path == "" {
			return fmt.Errorf("mounts[%d].path is required", i)
		}
		if m.Provider == "" {
			return fmt.Errorf("mounts[%d].provider is required", i)
		}
	}
	return nil
}

// Load reads configuration from configPath (if non-empty and present),
// overlays FS9_-prefixed environment variables, applies defaults, and
// validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHooks())); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("FS9")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(".")
	v.SetConfigName("fs9")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read config file: %w", err)
	}
	return true, nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(byteSizeHook(), durationHook())
}

func byteSizeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// PluginDirectories resolves the effective plugin search path, honoring
// the precedence order documented in SPEC_FULL.md §9: configured list,
// then FS9_PLUGIN_DIR, then ./plugins.
func (c *Config) PluginDirectories() []string {
	return plugin.DirectoryResolutionOrder(c.Server.Plugins.Directories)
}

// ConfigDir returns the directory configPath resides in, or "." when
// configPath is empty. It does not create the directory.
func ConfigDir(configPath string) string {
	if configPath == "" {
		return "."
	}
	return filepath.Dir(configPath)
}
