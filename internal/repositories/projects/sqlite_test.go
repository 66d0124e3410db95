package projects

import (
	"context"
	"database/sql"
	"testing"

	"github.com/packfactory/packfactory/internal/common"
	"github.com/packfactory/packfactory/internal/migrations"
	"github.com/packfactory/packfactory/internal/models"
	"github.com/packfactory/packfactory/internal/repositories/datastores"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`PRAGMA foreign_keys = ON`)
	require.NoError(t, err)

	goose.SetBaseFS(migrations.SQLite)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.Up(db, "sqlite"))
	return db
}

func plantDatastore(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	ds, err := models.DatastoreFromShare(&models.Share{
		Name:     "store",
		UNCPath:  `\\filer\packages`,
		Username: "svc",
		Password: "secret",
	})
	require.NoError(t, err)
	id, err := datastores.NewSQLiteRepository(db).Create(context.Background(), ds)
	require.NoError(t, err)
	return id
}

func plantProject(t *testing.T, repo Repository, dsID int64, state string) int64 {
	t.Helper()
	id, err := repo.Create(context.Background(), &models.Project{
		RuntimeID:   4701,
		Subdir:      "project-pending",
		State:       state,
		DatastoreID: dsID,
	})
	require.NoError(t, err)
	return id
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	dsID := plantDatastore(t, db)
	id := plantProject(t, repo, dsID, models.StateCreated)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(4701), got.RuntimeID)
	require.Equal(t, models.StateCreated, got.State)
	require.Nil(t, got.RegistryID)
	require.Nil(t, got.DirectoryID)

	_, err = repo.GetByID(ctx, id+1)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSQLiteRepository_ListByStates(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	dsID := plantDatastore(t, db)
	a := plantProject(t, repo, dsID, models.StateAvailable)
	b := plantProject(t, repo, dsID, models.StateDeleting)
	c := plantProject(t, repo, dsID, models.StateRebuilding)

	ids, err := repo.ListByStates(ctx, models.StateDeleting, models.StateRebuilding)
	require.NoError(t, err)
	require.Equal(t, []int64{b, c}, ids)

	ids, err = repo.ListByStates(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)
	_ = a
}

func TestSQLiteRepository_SetStateAndIcon(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	dsID := plantDatastore(t, db)
	id := plantProject(t, repo, dsID, models.StateCreated)

	require.NoError(t, repo.SetState(ctx, id, models.StateDirty))
	require.NoError(t, repo.SetIcon(ctx, id, []byte{0x89, 'P', 'N', 'G'}))

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.StateDirty, got.State)
	require.Equal(t, []byte{0x89, 'P', 'N', 'G'}, got.Icon)

	require.NoError(t, repo.SetIcon(ctx, id, nil))
	got, err = repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.Empty(t, got.Icon)

	require.ErrorIs(t, repo.SetState(ctx, id+1, models.StateDirty), common.ErrorNotFound)
}

func TestSQLiteRepository_ReplaceFiles(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	dsID := plantDatastore(t, db)
	id := plantProject(t, repo, dsID, models.StateAvailable)

	err := repo.ReplaceFiles(ctx, id, []*models.ProjectFile{
		{Path: "Package.ini", Size: 120},
		{Path: "bin/app.exe", Size: 99000},
	})
	require.NoError(t, err)

	err = repo.ReplaceFiles(ctx, id, []*models.ProjectFile{
		{Path: "Package.ini", Size: 130},
	})
	require.NoError(t, err)

	files, err := repo.GetFiles(ctx, id)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "Package.ini", files[0].Path)
	require.Equal(t, int64(130), files[0].Size)
	require.Equal(t, id, files[0].ProjectID)
}

func TestSQLiteRepository_DeleteCascadesFiles(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	dsID := plantDatastore(t, db)
	id := plantProject(t, repo, dsID, models.StateAvailable)
	require.NoError(t, repo.ReplaceFiles(ctx, id, []*models.ProjectFile{{Path: "Package.ini", Size: 1}}))

	require.NoError(t, repo.Delete(ctx, id))

	files, err := repo.GetFiles(ctx, id)
	require.NoError(t, err)
	require.Empty(t, files)
}
