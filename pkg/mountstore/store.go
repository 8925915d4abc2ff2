// Package mountstore persists admin-configured mount entries (tenant,
// mount point, provider type, provider config) across restarts, via GORM
// the same way the teacher's control plane persists share configuration.
// It never persists handle state: every provider instance and every open
// handle is rebuilt fresh from these rows at startup.
package mountstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Driver names accepted by server.mountstore.driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config configures the mount store's backing database.
type Config struct {
	Driver string // "sqlite" (default) or "postgres"
	DSN    string // sqlite file path, or a postgres connection string
}

// ApplyDefaults fills a missing driver with sqlite and a missing DSN with
// a database file alongside the instance's working directory.
func (c *Config) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	if c.Driver == DriverSQLite && c.DSN == "" {
		c.DSN = "fs9-mounts.db"
	}
}

// MountRow is the persisted row for one admin-configured mount.
type MountRow struct {
	ID           uint   `gorm:"primaryKey"`
	Tenant       string `gorm:"index:idx_tenant_path,unique;not null"`
	Path         string `gorm:"index:idx_tenant_path,unique;not null"`
	ProviderType string `gorm:"not null"`
	ConfigJSON   string `gorm:"type:text"`
}

// TableName pins the table name so it does not shift with naming
// convention changes to MountRow.
func (MountRow) TableName() string { return "mounts" }

// Store is the GORM-backed mount configuration store.
type Store struct {
	db *gorm.DB
}

// New opens (and migrates) the mount store described by cfg.
func New(cfg Config) (*Store, error) {
	cfg.ApplyDefaults()

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite:
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create mountstore directory: %w", err)
			}
		}
		dsn := cfg.DSN + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported mountstore driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open mountstore database: %w", err)
	}

	if err := db.AutoMigrate(&MountRow{}); err != nil {
		return nil, fmt.Errorf("migrate mountstore schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Entry is the in-memory shape of a persisted mount, with Config decoded
// back into a generic map ready for fsprovider.Factory.Build.
type Entry struct {
	Tenant       string
	Path         string
	ProviderType string
	Config       map[string]any
}

// Put inserts or replaces the mount persisted at (tenant, path).
func (s *Store) Put(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e.Config)
	if err != nil {
		return fmt.Errorf("encode mount config: %w", err)
	}

	row := MountRow{Tenant: e.Tenant, Path: e.Path, ProviderType: e.ProviderType, ConfigJSON: string(raw)}
	return s.db.WithContext(ctx).
		Where("tenant = ? AND path = ?", e.Tenant, e.Path).
		Assign(MountRow{ProviderType: row.ProviderType, ConfigJSON: row.ConfigJSON}).
		FirstOrCreate(&row).Error
}

// Delete removes the persisted mount at (tenant, path), if any.
func (s *Store) Delete(ctx context.Context, tenant, path string) error {
	return s.db.WithContext(ctx).
		Where("tenant = ? AND path = ?", tenant, path).
		Delete(&MountRow{}).Error
}

// All returns every persisted mount, across every tenant, for replay at
// startup.
func (s *Store) All(ctx context.Context) ([]Entry, error) {
	var rows []MountRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		var cfg map[string]any
		if row.ConfigJSON != "" {
			if err := json.Unmarshal([]byte(row.ConfigJSON), &cfg); err != nil {
				return nil, fmt.Errorf("decode mount config for %s%s: %w", row.Tenant, row.Path, err)
			}
		}
		out = append(out, Entry{Tenant: row.Tenant, Path: row.Path, ProviderType: row.ProviderType, Config: cfg})
	}
	return out, nil
}
