package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/packfactory/packfactory/internal/common"
	"github.com/packfactory/packfactory/internal/dbx"
	"github.com/packfactory/packfactory/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or
// *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, n *models.FileNode) (int64, error) {
	query := `INSERT INTO file_nodes (parent_id, root_id, path, is_directory, hidden)
			VALUES (?, ?, ?, ?, ?) RETURNING id`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		n.ParentID, n.RootID, n.Path, n.IsDirectory, n.Hidden).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert file node: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) SetRoot(ctx context.Context, id, rootID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE file_nodes SET root_id=? WHERE id=?`, rootID, id)
	if err != nil {
		return fmt.Errorf("failed to set file node root: %w", err)
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.FileNode, error) {
	query := `SELECT id, parent_id, root_id, path, is_directory, hidden
			FROM file_nodes WHERE id = ?`
	return scanFileNode(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteRepository) GetByPath(ctx context.Context, rootID int64, path string, isDirectory bool) (*models.FileNode, error) {
	query := `SELECT id, parent_id, root_id, path, is_directory, hidden
			FROM file_nodes WHERE root_id = ? AND path = ? AND is_directory = ?`
	return scanFileNode(r.db.QueryRowContext(ctx, query, rootID, path, isDirectory))
}

func scanFileNode(row *sql.Row) (*models.FileNode, error) {
	n := &models.FileNode{}
	var parentID, rootID sql.NullInt64
	err := row.Scan(&n.ID, &parentID, &rootID, &n.Path, &n.IsDirectory, &n.Hidden)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan file node: %w", err)
	}
	if parentID.Valid {
		n.ParentID = &parentID.Int64
	}
	if rootID.Valid {
		n.RootID = &rootID.Int64
	}
	return n, nil
}

func (r *SQLiteRepository) ListChildren(ctx context.Context, parentID int64) ([]*models.FileNode, error) {
	query := `SELECT id, parent_id, root_id, path, is_directory, hidden
			FROM file_nodes WHERE parent_id = ? ORDER BY path`
	rows, err := r.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	var result []*models.FileNode
	for rows.Next() {
		n := &models.FileNode{}
		var pid, rid sql.NullInt64
		if err := rows.Scan(&n.ID, &pid, &rid, &n.Path, &n.IsDirectory, &n.Hidden); err != nil {
			return nil, err
		}
		if pid.Valid {
			n.ParentID = &pid.Int64
		}
		if rid.Valid {
			n.RootID = &rid.Int64
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) SetHidden(ctx context.Context, id int64, hidden bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE file_nodes SET hidden=? WHERE id=?`, hidden, id)
	if err != nil {
		return fmt.Errorf("failed to set hidden flag: %w", err)
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM file_nodes WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file node: %w", err)
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM file_nodes WHERE id=?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check file node: %w", err)
	}
	return true, nil
}

func requireOneRow(res sql.Result) error {
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrorNotFound
	}
	return nil
}
