// Command fs9d is the FS9 server daemon: it loads configuration, wires
// every subsystem described in SPEC_FULL.md, and serves the HTTP API
// until terminated, draining in-flight work gracefully on shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fs9fs/fs9/internal/logger"
	"github.com/fs9fs/fs9/internal/telemetry"
	"github.com/fs9fs/fs9/pkg/auth"
	"github.com/fs9fs/fs9/pkg/config"
	"github.com/fs9fs/fs9/pkg/fsprovider"
	"github.com/fs9fs/fs9/pkg/httpapi"
	"github.com/fs9fs/fs9/pkg/metaclient"
	"github.com/fs9fs/fs9/pkg/metrics"
	_ "github.com/fs9fs/fs9/pkg/metrics/prometheus" // registers the metrics.New constructor
	"github.com/fs9fs/fs9/pkg/mount"
	"github.com/fs9fs/fs9/pkg/mountstore"
	"github.com/fs9fs/fs9/pkg/namespace"
	"github.com/fs9fs/fs9/pkg/plugin"
	"github.com/fs9fs/fs9/pkg/ratelimit"
)

// defaultTenant owns every mount declared in the config file's top-level
// mounts[] list; per-tenant mounts beyond that are installed at runtime
// through the mount administration API.
const defaultTenant = "default"

var (
	configPath   = flag.String("config", "", "path to fs9.yaml (default: ./fs9.yaml)")
	logLevel     = flag.String("log-level", "INFO", "log level: DEBUG, INFO, WARN, ERROR")
	logFormat    = flag.String("log-format", "text", "log format: text, json")
	telemetryURL = flag.String("telemetry-endpoint", "", "OTLP gRPC endpoint; empty disables tracing")
	profilingURL = flag.String("profiling-endpoint", "", "Pyroscope endpoint; empty disables profiling")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		logger.Error("fs9d exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if err := logger.Init(logger.Config{Level: *logLevel, Format: *logFormat, Output: "stdout"}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := telemetry.DefaultConfig()
	telemetryCfg.Enabled = *telemetryURL != ""
	telemetryCfg.Endpoint = *telemetryURL
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        *profilingURL != "",
		ServiceName:    "fs9",
		ServiceVersion: "dev",
		Endpoint:       *profilingURL,
	})
	if err != nil {
		return fmt.Errorf("init profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	if cfg.Server.Metrics.Enabled {
		metrics.InitRegistry()
	}
	m := metrics.New()

	pluginMgr := plugin.NewManager(cfg.PluginDirectories())

	var store *mountstore.Store
	if cfg.Server.Mountstore.Enabled {
		msCfg := mountstore.Config{Driver: cfg.Server.Mountstore.Driver, DSN: cfg.Server.Mountstore.DSN}
		store, err = mountstore.New(msCfg)
		if err != nil {
			return fmt.Errorf("init mountstore: %w", err)
		}
	}

	providers := fsprovider.New(pluginMgr)
	namespaces := namespace.New()

	if err := loadConfiguredMounts(ctx, cfg, providers, namespaces); err != nil {
		return fmt.Errorf("load configured mounts: %w", err)
	}
	if store != nil {
		if err := replayPersistedMounts(ctx, store, providers, namespaces); err != nil {
			return fmt.Errorf("replay persisted mounts: %w", err)
		}
	}

	var metaClient *metaclient.Client
	if cfg.Server.MetaURL != "" {
		metaClient = metaclient.New(metaclient.Config{
			BaseURL:  cfg.Server.MetaURL,
			AdminKey: cfg.Server.MetaKey,
			Breaker: metaclient.BreakerConfig{
				FailureThreshold: cfg.Server.MetaResilience.FailureThreshold,
				RecoveryTimeout:  time.Duration(cfg.Server.MetaResilience.RecoveryTimeoutSecs) * time.Second,
			},
			Retry: metaclient.RetryConfig{
				MaxAttempts: cfg.Server.MetaResilience.MaxRetryAttempts,
				BaseDelay:   time.Duration(cfg.Server.MetaResilience.BaseDelayMs) * time.Millisecond,
			},
		})
	}

	verificationCache, err := auth.NewVerificationCache(1<<20, 15*time.Minute)
	if err != nil {
		return fmt.Errorf("init verification cache: %w", err)
	}
	defer verificationCache.Close()

	revocations, err := auth.NewRevocationSet(1<<16, auth.DefaultRevocationTTL)
	if err != nil {
		return fmt.Errorf("init revocation set: %w", err)
	}
	defer revocations.Close()

	limiters := ratelimit.New(cfg.Server.RateLimit.Enabled,
		float64(cfg.Server.RateLimit.NamespaceQPS), float64(cfg.Server.RateLimit.UserQPS))

	instanceID, err := os.Hostname()
	if err != nil || instanceID == "" {
		instanceID = "fs9d"
	}

	deps := httpapi.Deps{
		InstanceID:            instanceID,
		Namespaces:            namespaces,
		Providers:             providers,
		Plugins:               pluginMgr,
		Meta:                  metaClient,
		VerificationCache:     verificationCache,
		Revocations:           revocations,
		AuthEnabled:           cfg.Server.Auth.Enabled,
		RateLimiters:          limiters,
		Metrics:               m,
		Mountstore:            store,
		RequestTimeout:        time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
		MaxConcurrentRequests: cfg.Server.MaxConcurrentRequests,
		MaxBodySizeBytes:      cfg.Server.MaxBodySizeBytes.Int64(),
		MaxWriteSizeBytes:     cfg.Server.MaxWriteSizeBytes.Int64(),
	}

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeoutSecs) * time.Second,
	}, deps)

	serverDone := make(chan error, 1)
	go func() { serverDone <- server.Start(ctx) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("fs9d is running", "host", cfg.Server.Host, "port", cfg.Server.Port)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, draining in-flight requests")
		cancel()
		if err := <-serverDone; err != nil {
			return err
		}
	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			return err
		}
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
	defer drainCancel()
	namespaces.DrainAll(drainCtx)

	for _, name := range pluginMgr.List() {
		if err := pluginMgr.Unload(drainCtx, name); err != nil {
			logger.Warn("plugin unload during shutdown failed", "plugin", name, "error", err)
		}
	}

	logger.Info("fs9d stopped")
	return nil
}

// loadConfiguredMounts installs every mounts[] entry from the config file
// into the default tenant's namespace at startup.
func loadConfiguredMounts(ctx context.Context, cfg *config.Config, providers *fsprovider.Factory, namespaces *namespace.Manager) error {
	if len(cfg.Mounts) == 0 {
		return nil
	}
	ns := namespaces.GetOrCreate(defaultTenant)
	for _, entry := range cfg.Mounts {
		if err := installMount(ctx, ns, providers, entry.Path, entry.Provider, entry.Config); err != nil {
			return fmt.Errorf("mount %q: %w", entry.Path, err)
		}
		logger.Info("mount installed from config", "path", entry.Path, "provider", entry.Provider)
	}
	return nil
}

// replayPersistedMounts restores every admin-configured mount recorded in
// the mount store, across all tenants, at startup.
func replayPersistedMounts(ctx context.Context, store *mountstore.Store, providers *fsprovider.Factory, namespaces *namespace.Manager) error {
	entries, err := store.All(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		ns := namespaces.GetOrCreate(e.Tenant)
		if err := installMount(ctx, ns, providers, e.Path, e.ProviderType, e.Config); err != nil {
			logger.Warn("failed to replay persisted mount", "tenant", e.Tenant, "path", e.Path, "error", err)
			continue
		}
		logger.Info("mount replayed from store", "tenant", e.Tenant, "path", e.Path, "provider", e.ProviderType)
	}
	return nil
}

func installMount(ctx context.Context, ns *namespace.Namespace, providers *fsprovider.Factory, path, providerType string, providerConfig map[string]any) error {
	built, err := providers.Build(ctx, providerType, providerConfig)
	if err != nil {
		return err
	}
	return ns.Router.Mount(mount.Entry{
		MountPoint:   path,
		Provider:     built.Provider,
		ProviderType: providerType,
		Capabilities: built.Capabilities,
	})
}
