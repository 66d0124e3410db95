package config

import (
	"flag"
	"os"
	"time"

	"github.com/packfactory/packfactory/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-e string   catalog engine, "sqlite" or "pgx"
//	-d string   catalog DSN
//	-m string   datastore mount root
//	-b string   mounter executable directory
//	-r string   build runtimes root
//	-s string   system datastore path
//	-i string   internal datastore path
//	-w int      worker restart delay, seconds
//	-p int      max concurrent background operations
//	-l int      per-file lock timeout, seconds
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-e", "-d", "-m", "-b", "-r", "-s", "-i", "-w", "-p", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDriver, "e", config.DatabaseDriver, "catalog engine (sqlite or pgx)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "catalog DSN")
	fs.StringVar(&config.MountRoot, "m", config.MountRoot, "datastore mount root")
	fs.StringVar(&config.MounterBinDir, "b", config.MounterBinDir, "mounter executable directory")
	fs.StringVar(&config.RuntimesRoot, "r", config.RuntimesRoot, "build runtimes root")
	fs.StringVar(&config.SystemDatastorePath, "s", config.SystemDatastorePath, "system datastore path")
	fs.StringVar(&config.InternalDatastorePath, "i", config.InternalDatastorePath, "internal datastore path")

	workerRestartDelay := fs.Int("w", int(config.WorkerRestartDelay.Seconds()), "worker restart delay (in seconds)")
	fs.Int64Var(&config.MaxConcurrentOps, "p", config.MaxConcurrentOps, "max concurrent background operations")
	fileLockTimeout := fs.Int("l", int(config.FileLockTimeout.Seconds()), "per-file lock timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.WorkerRestartDelay = time.Duration(*workerRestartDelay) * time.Second
	config.FileLockTimeout = time.Duration(*fileLockTimeout) * time.Second
}
