// Package app initializes and runs the packfactory server: it opens the
// catalog database, runs migrations, resets datastore state left over
// from the previous run, starts the background workers, and brings the
// mount-at-boot datastores online. Shutdown is the reverse: workers
// drain first, then the datastores are detached.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/packfactory/packfactory/internal/config"
	"github.com/packfactory/packfactory/internal/datastore"
	"github.com/packfactory/packfactory/internal/logging"
	"github.com/packfactory/packfactory/internal/project"
	"github.com/packfactory/packfactory/internal/repositories/repomanager"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	repos    repomanager.RepositoryManager
	registry *datastore.Registry
	store    *project.Store
}

func NewApp(c *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	db, err := sql.Open(sqlDriverName(c.DatabaseDriver), c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	m, err := repomanager.NewRepositoryManager(c.DatabaseDriver)
	if err != nil {
		db.Close()
		return nil, err
	}

	mounter := &datastore.ExecMounter{
		BinDir:    c.MounterBinDir,
		MountRoot: c.MountRoot,
	}
	registry := datastore.NewRegistry(db, m, mounter, logger)
	store := project.NewStore(db, m, registry,
		&project.ExecBuildTool{}, &project.ExecIconExtractor{}, c, logger)

	return &App{
		config:   c,
		logger:   logger,
		db:       db,
		repos:    m,
		registry: registry,
		store:    store,
	}, nil
}

// sqlDriverName maps the configured engine to its database/sql driver.
func sqlDriverName(driver string) string {
	switch driver {
	case "pgx", "postgres":
		return "pgx"
	default:
		return "sqlite"
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run starts the server and blocks until the context is cancelled or a
// termination signal arrives.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting packfactory server",
		"driver", app.config.DatabaseDriver, "mount_root", app.config.MountRoot)

	app.initSignalHandler(cancelFunc)

	if err := app.repos.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	if err := app.registry.EnsureReservedDatastores(ctx,
		app.config.SystemDatastorePath, app.config.InternalDatastorePath); err != nil {
		return fmt.Errorf("reserved datastores: %w", err)
	}

	// Persisted mount status cannot be trusted across restarts, and
	// projects may have been stranded mid-delete or mid-rebuild.
	if err := app.registry.ResetAll(ctx); err != nil {
		return fmt.Errorf("datastore reset: %w", err)
	}
	if err := app.store.Fsck(ctx); err != nil {
		return fmt.Errorf("project fsck: %w", err)
	}

	app.store.Start(ctx)
	app.registry.BringDefaultsOnline(ctx)

	<-ctx.Done()

	app.logger.Info(ctx, "shutting down")
	app.shutdown()
	return nil
}

// shutdown drains the worker queues, then detaches every datastore.
// Detach failures are logged; shutdown proceeds regardless.
func (app *App) shutdown() {
	ctx := context.Background()

	app.store.Stop()

	if err := app.registry.ResetAll(ctx); err != nil {
		app.logger.Error(ctx, "datastore detach failed", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing database failed", "error", err)
	}
}
