package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Server.RequestTimeoutSecs)
	assert.Equal(t, 1000, cfg.Server.MaxConcurrentRequests)
	assert.True(t, cfg.Server.Metrics.Enabled)
	assert.False(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, 5, cfg.Server.MetaResilience.FailureThreshold)
}

func TestApplyDefaults_BackfillsZeroValues(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
	assert.Equal(t, Default().Server.MaxBodySizeBytes, cfg.Server.MaxBodySizeBytes)
	assert.False(t, cfg.Server.Auth.Enabled, "auth defaults off without a meta_url")
}

func TestApplyDefaults_AuthEnabledWhenMetaURLSet(t *testing.T) {
	cfg := &Config{Server: Server{MetaURL: "http://meta.internal"}}
	ApplyDefaults(cfg)
	assert.True(t, cfg.Server.Auth.Enabled)
}

func TestValidate_RejectsAuthWithoutMetaURL(t *testing.T) {
	cfg := Default()
	cfg.Server.Auth.Enabled = true
	cfg.Server.MetaURL = ""
	require.Error(t, Validate(cfg))
}

func TestValidate_RejectsOutOfRangePort(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 70000
	require.Error(t, Validate(cfg))
}

func TestValidate_RejectsMountWithoutProvider(t *testing.T) {
	cfg := Default()
	cfg.Mounts = []MountEntry{{Path: "/data"}}
	require.Error(t, Validate(cfg))
}

func TestLoad_ReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fs9.yaml")
	yamlBody := []byte("server:\n  port: 8080\n  max_body_size_bytes: \"4Mi\"\nmounts:\n  - path: /data\n    provider: memfs\n")
	require.NoError(t, os.WriteFile(path, yamlBody, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.EqualValues(t, 4*1024*1024, cfg.Server.MaxBodySizeBytes)
	require.Len(t, cfg.Mounts, 1)
	assert.Equal(t, "memfs", cfg.Mounts[0].Provider)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestPluginDirectories_DefaultsToDotPlugins(t *testing.T) {
	t.Setenv("FS9_PLUGIN_DIR", "")
	cfg := Default()
	cfg.Server.Plugins.Directories = nil
	assert.Equal(t, []string{"./plugins"}, cfg.PluginDirectories())
}
