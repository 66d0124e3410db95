package files

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

// plantTree inserts a root with the given children and returns
// (rootID, childIDs).
func plantTree(t *testing.T, repo Repository, paths ...string) (int64, []int64) {
	t.Helper()
	ctx := context.Background()

	rootID, err := repo.Insert(ctx, &models.FileNode{Path: "", IsDirectory: true})
	require.NoError(t, err)
	require.NoError(t, repo.SetRoot(ctx, rootID, rootID))

	var ids []int64
	for _, p := range paths {
		id, err := repo.Insert(ctx, &models.FileNode{
			ParentID: &rootID,
			RootID:   &rootID,
			Path:     p,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return rootID, ids
}

func TestSQLiteRepository_InsertAndLookup(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	rootID, ids := plantTree(t, repo, "a.txt", "b.txt")

	// The self-referencing root is addressable by the empty path.
	root, err := repo.GetByPath(ctx, rootID, "", true)
	require.NoError(t, err)
	require.Equal(t, rootID, root.ID)

	got, err := repo.GetByPath(ctx, rootID, "a.txt", false)
	require.NoError(t, err)
	require.Equal(t, ids[0], got.ID)
	require.Equal(t, &rootID, got.ParentID)

	// Kind mismatch is a miss.
	_, err = repo.GetByPath(ctx, rootID, "a.txt", true)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSQLiteRepository_ListChildren(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	rootID, ids := plantTree(t, repo, "b.txt", "a.txt")

	children, err := repo.ListChildren(ctx, rootID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	require.Equal(t, "a.txt", children[0].Path)
	require.Equal(t, "b.txt", children[1].Path)
	_ = ids
}

func TestSQLiteRepository_DeleteCascades(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	rootID, _ := plantTree(t, repo)
	dirID, err := repo.Insert(ctx, &models.FileNode{
		ParentID: &rootID, RootID: &rootID, Path: "sub", IsDirectory: true,
	})
	require.NoError(t, err)
	fileID, err := repo.Insert(ctx, &models.FileNode{
		ParentID: &dirID, RootID: &rootID, Path: "sub/f.txt",
	})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, dirID))

	ok, err := repo.Exists(ctx, fileID)
	require.NoError(t, err)
	require.False(t, ok, "descendants must be removed by cascade")
}

func TestSQLiteRepository_SetHidden(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	_, ids := plantTree(t, repo, "x.bin")
	require.NoError(t, repo.SetHidden(ctx, ids[0], true))

	got, err := repo.GetByID(ctx, ids[0])
	require.NoError(t, err)
	require.True(t, got.Hidden)
}

func TestSQLiteRepository_ExistsAndMissing(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	ok, err := repo.Exists(ctx, 12345)
	require.NoError(t, err)
	require.False(t, ok)

	require.ErrorIs(t, repo.Delete(ctx, 12345), common.ErrorNotFound)
	require.ErrorIs(t, repo.SetHidden(ctx, 12345, true), common.ErrorNotFound)
}
