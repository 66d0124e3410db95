package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/packfactory/packfactory/internal/dbx"
	"github.com/packfactory/packfactory/internal/models"
)

// PostgresRepository implements Repository over a PostgreSQL catalog.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository returns a new PostgresRepository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, n *models.FileNode) (int64, error) {
	query := `INSERT INTO file_nodes (parent_id, root_id, path, is_directory, hidden)
			VALUES ($1, $2, $3, $4, $5) RETURNING id`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		n.ParentID, n.RootID, n.Path, n.IsDirectory, n.Hidden).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert file node: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) SetRoot(ctx context.Context, id, rootID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE file_nodes SET root_id=$1 WHERE id=$2`, rootID, id)
	if err != nil {
		return fmt.Errorf("failed to set file node root: %w", err)
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.FileNode, error) {
	query := `SELECT id, parent_id, root_id, path, is_directory, hidden
			FROM file_nodes WHERE id = $1`
	return scanFileNode(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByPath(ctx context.Context, rootID int64, path string, isDirectory bool) (*models.FileNode, error) {
	query := `SELECT id, parent_id, root_id, path, is_directory, hidden
			FROM file_nodes WHERE root_id = $1 AND path = $2 AND is_directory = $3`
	return scanFileNode(r.db.QueryRowContext(ctx, query, rootID, path, isDirectory))
}

func (r *PostgresRepository) ListChildren(ctx context.Context, parentID int64) ([]*models.FileNode, error) {
	query := `SELECT id, parent_id, root_id, path, is_directory, hidden
			FROM file_nodes WHERE parent_id = $1 ORDER BY path`
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

func (r *PostgresRepository) SetHidden(ctx context.Context, id int64, hidden bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE file_nodes SET hidden=$1 WHERE id=$2`, hidden, id)
	if err != nil {
		return fmt.Errorf("failed to set hidden flag: %w", err)
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM file_nodes WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file node: %w", err)
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM file_nodes WHERE id=$1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check file node: %w", err)
	}
	return true, nil
}
