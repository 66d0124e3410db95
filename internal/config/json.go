package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/packfactory/packfactory/internal/flagx"
	"github.com/packfactory/packfactory/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "5s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	DatabaseDriver     string         `json:"database_driver"`
	DatabaseDSN        string         `json:"database_dsn"`
	MountRoot          string         `json:"mount_root"`
	MounterBinDir      string         `json:"mounter_bin_dir"`
	RuntimesRoot          string         `json:"runtimes_root"`
	SystemDatastorePath   string         `json:"system_datastore_path"`
	InternalDatastorePath string         `json:"internal_datastore_path"`
	WorkerRestartDelay    timex.Duration `json:"worker_restart_delay"`
	MaxConcurrentOps      int64          `json:"max_concurrent_ops"`
	FileLockTimeout       timex.Duration `json:"file_lock_timeout"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path is taken from the -c or -config command-line flags.
// If neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
//
// The caller is expected to merge these values with defaults and
// command-line flags as part of the full configuration process.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.DatabaseDriver != "" {
		config.DatabaseDriver = c.DatabaseDriver
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.MountRoot != "" {
		config.MountRoot = c.MountRoot
	}
	if c.MounterBinDir != "" {
		config.MounterBinDir = c.MounterBinDir
	}
	if c.RuntimesRoot != "" {
		config.RuntimesRoot = c.RuntimesRoot
	}
	if c.SystemDatastorePath != "" {
		config.SystemDatastorePath = c.SystemDatastorePath
	}
	if c.InternalDatastorePath != "" {
		config.InternalDatastorePath = c.InternalDatastorePath
	}
	if c.WorkerRestartDelay.Duration != 0 {
		config.WorkerRestartDelay = time.Duration(c.WorkerRestartDelay.Duration)
	}
	if c.MaxConcurrentOps != 0 {
		config.MaxConcurrentOps = c.MaxConcurrentOps
	}
	if c.FileLockTimeout.Duration != 0 {
		config.FileLockTimeout = time.Duration(c.FileLockTimeout.Duration)
	}
}
