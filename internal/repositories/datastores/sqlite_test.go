package datastores

import (
	"context"
	"database/sql"
	"testing"

	"github.com/packfactory/packfactory/internal/common"
	"github.com/packfactory/packfactory/internal/migrations"
	"github.com/packfactory/packfactory/internal/models"
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

func sample() *models.Datastore {
	return &models.Datastore{
		Name:     "share1",
		Domain:   "CORP",
		Username: "svc",
		Password: "pw",
		Server:   "filer",
		Share:    "captures",
		Status:   models.StatusOffline,
	}
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	id, err := repo.Create(ctx, sample())
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "share1", got.Name)
	require.Equal(t, models.StatusOffline, got.Status)
	require.Empty(t, got.LocalPath)

	byName, err := repo.GetByName(ctx, "share1")
	require.NoError(t, err)
	require.Equal(t, id, byName.ID)
}

func TestSQLiteRepository_GetMissing(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	_, err := repo.GetByID(ctx, 42)
	require.ErrorIs(t, err, common.ErrorNotFound)

	_, err = repo.GetByName(ctx, "nope")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSQLiteRepository_UniqueName(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	_, err := repo.Create(ctx, sample())
	require.NoError(t, err)
	_, err = repo.Create(ctx, sample())
	require.Error(t, err, "duplicate name must be rejected")
}

func TestSQLiteRepository_SetStatus(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	id, err := repo.Create(ctx, sample())
	require.NoError(t, err)

	require.NoError(t, repo.SetStatus(ctx, id, models.StatusOnline, "/mnt/datastores/1"))
	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.StatusOnline, got.Status)
	require.Equal(t, "/mnt/datastores/1", got.LocalPath)

	require.NoError(t, repo.SetStatus(ctx, id, models.StatusOffline, ""))
	got, err = repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.Empty(t, got.LocalPath)

	require.ErrorIs(t, repo.SetStatus(ctx, 99, models.StatusOnline, "x"), common.ErrorNotFound)
}

func TestSQLiteRepository_ListIDs(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.Empty(t, mustIDs(t, repo, ctx))

	a, err := repo.Create(ctx, sample())
	require.NoError(t, err)
	second := sample()
	second.Name = "share2"
	b, err := repo.Create(ctx, second)
	require.NoError(t, err)

	require.Equal(t, []int64{a, b}, mustIDs(t, repo, ctx))
}

func mustIDs(t *testing.T, repo Repository, ctx context.Context) []int64 {
	t.Helper()
	ids, err := repo.ListIDs(ctx)
	require.NoError(t, err)
	return ids
}

func TestSQLiteRepository_UpdateAndDelete(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	id, err := repo.Create(ctx, sample())
	require.NoError(t, err)

	ds, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	ds.Username = "svc2"
	ds.Server = "filer2"
	require.NoError(t, repo.Update(ctx, ds))

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "svc2", got.Username)
	require.Equal(t, "filer2", got.Server)

	require.NoError(t, repo.Delete(ctx, id))
	_, err = repo.GetByID(ctx, id)
	require.ErrorIs(t, err, common.ErrorNotFound)
	require.ErrorIs(t, repo.Delete(ctx, id), common.ErrorNotFound)
}
