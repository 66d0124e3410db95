// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the packfactory server.
//
// Fields:
//   - DatabaseDriver: catalog engine, "sqlite" (modernc) or "pgx" (PostgreSQL).
//   - DatabaseDSN: DSN for the chosen engine.
//   - MountRoot: directory under which datastores are mounted, one
//     subdirectory per datastore id.
//   - MounterBinDir: directory holding the cifsmount/cifsumount executables.
//   - RuntimesRoot: directory holding build runtimes, one subdirectory per
//     runtime id.
//   - SystemDatastorePath: local path of the reserved read-only "system"
//     datastore, seeded at startup.
//   - InternalDatastorePath: local path of the reserved "internal"
//     datastore, seeded at startup.
//   - WorkerRestartDelay: pause before a crashed worker loop is restarted.
//   - MaxConcurrentOps: bound on in-flight delete/rebuild operations.
//   - FileLockTimeout: how long a file mutation waits for a per-file lock.
type Config struct {
	DatabaseDriver        string
	DatabaseDSN           string
	MountRoot             string
	MounterBinDir         string
	RuntimesRoot          string
	SystemDatastorePath   string
	InternalDatastorePath string
	WorkerRestartDelay    time.Duration
	MaxConcurrentOps      int64
	FileLockTimeout       time.Duration
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: The SQLite defaults are for local use; production deployments
// override the driver and DSN.
func (c *Config) LoadDefaults() {
	c.DatabaseDriver = "sqlite"
	c.DatabaseDSN = "file:packfactory.db?_pragma=foreign_keys(1)"
	c.MountRoot = "/mnt/datastores"
	c.MounterBinDir = "/usr/local/bin"
	c.RuntimesRoot = "/var/lib/packfactory/runtimes"
	c.SystemDatastorePath = "/var/lib/packfactory/system"
	c.InternalDatastorePath = "/var/lib/packfactory/internal"
	c.WorkerRestartDelay = 5 * time.Second
	c.MaxConcurrentOps = 16
	c.FileLockTimeout = 30 * time.Second
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
