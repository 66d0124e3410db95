// Package repomanager wires repository constructors to a database engine
// and runs the matching embedded goose migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/packfactory/packfactory/internal/dbx"
	"github.com/packfactory/packfactory/internal/migrations"
	"github.com/packfactory/packfactory/internal/repositories/datastores"
	"github.com/packfactory/packfactory/internal/repositories/files"
	"github.com/packfactory/packfactory/internal/repositories/projects"
	"github.com/packfactory/packfactory/internal/repositories/registry"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

type SQLiteRepositoryManager struct{}

func (m *SQLiteRepositoryManager) Datastores(db dbx.DBTX) datastores.Repository {
	return datastores.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) Projects(db dbx.DBTX) projects.Repository {
	return projects.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) Files(db dbx.DBTX) files.Repository {
	return files.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) Registry(db dbx.DBTX) registry.Repository {
	return registry.NewSQLiteRepository(db)
}

// RunMigrations sets up goose with the embedded SQLite migrations and runs
// them against the provided database connection.
func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.SQLite)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, "sqlite")
}

func NewSQLiteRepositoryManager() (RepositoryManager, error) {
	return &SQLiteRepositoryManager{}, nil
}
