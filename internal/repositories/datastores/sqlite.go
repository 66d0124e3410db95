package datastores

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

func (r *SQLiteRepository) Create(ctx context.Context, ds *models.Datastore) (int64, error) {
	query := `INSERT INTO datastores (name, domain, username, password, local_path, server, share, status, base_url)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		ds.Name, ds.Domain, ds.Username, ds.Password, ds.LocalPath,
		ds.Server, ds.Share, ds.Status, ds.BaseURL).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert datastore: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.Datastore, error) {
	query := `SELECT id, name, domain, username, password, local_path, server, share, status, base_url
			FROM datastores WHERE id = ?`
	return scanDatastore(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteRepository) GetByName(ctx context.Context, name string) (*models.Datastore, error) {
	query := `SELECT id, name, domain, username, password, local_path, server, share, status, base_url
			FROM datastores WHERE name = ?`
	return scanDatastore(r.db.QueryRowContext(ctx, query, name))
}

func scanDatastore(row *sql.Row) (*models.Datastore, error) {
	ds := &models.Datastore{}
	var domain, username, password, localPath, server, share, baseURL sql.NullString
	err := row.Scan(&ds.ID, &ds.Name, &domain, &username, &password,
		&localPath, &server, &share, &ds.Status, &baseURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan datastore: %w", err)
	}
	ds.Domain = domain.String
	ds.Username = username.String
	ds.Password = password.String
	ds.LocalPath = localPath.String
	ds.Server = server.String
	ds.Share = share.String
	ds.BaseURL = baseURL.String
	return ds, nil
}

func (r *SQLiteRepository) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM datastores ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list datastores: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) Update(ctx context.Context, ds *models.Datastore) error {
	query := `UPDATE datastores SET name=?, domain=?, username=?, password=?, local_path=?, server=?, share=?, base_url=?
			WHERE id=?`
	res, err := r.db.ExecContext(ctx, query,
		ds.Name, ds.Domain, ds.Username, ds.Password, ds.LocalPath,
		ds.Server, ds.Share, ds.BaseURL, ds.ID)
	if err != nil {
		return fmt.Errorf("failed to update datastore: %w", err)
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) SetStatus(ctx context.Context, id int64, status, localPath string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE datastores SET status=?, local_path=? WHERE id=?`, status, localPath, id)
	if err != nil {
		return fmt.Errorf("failed to set datastore status: %w", err)
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) SetBaseURL(ctx context.Context, id int64, baseURL string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE datastores SET base_url=? WHERE id=?`, baseURL, id)
	if err != nil {
		return fmt.Errorf("failed to set datastore base url: %w", err)
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM datastores WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete datastore: %w", err)
	}
	return requireOneRow(res)
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
