package repomanager

import (
	"context"
	"database/sql"

	"github.com/packfactory/packfactory/internal/dbx"
	"github.com/packfactory/packfactory/internal/repositories/datastores"
	"github.com/packfactory/packfactory/internal/repositories/files"
	"github.com/packfactory/packfactory/internal/repositories/projects"
	"github.com/packfactory/packfactory/internal/repositories/registry"
)

// RepositoryManager vends engine-specific repositories bound to a DBTX
// (either the pooled connection or an open transaction) and exposes a
// schema migration hook.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Datastores(db dbx.DBTX) datastores.Repository
	Projects(db dbx.DBTX) projects.Repository
	Files(db dbx.DBTX) files.Repository
	Registry(db dbx.DBTX) registry.Repository
}

// NewRepositoryManager picks a manager for the configured database driver.
func NewRepositoryManager(driver string) (RepositoryManager, error) {
	switch driver {
	case "pgx", "postgres":
		return NewPostgresRepositoryManager()
	default:
		return NewSQLiteRepositoryManager()
	}
}
