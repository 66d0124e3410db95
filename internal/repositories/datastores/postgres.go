package datastores

import (
	"context"
	"fmt"

	"github.com/packfactory/packfactory/internal/dbx"
	"github.com/packfactory/packfactory/internal/models"
)

// PostgresRepository implements Repository over a PostgreSQL catalog. It
// shares row scanning with the SQLite implementation and differs only in
// placeholder syntax.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository returns a new PostgresRepository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, ds *models.Datastore) (int64, error) {
	query := `INSERT INTO datastores (name, domain, username, password, local_path, server, share, status, base_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		ds.Name, ds.Domain, ds.Username, ds.Password, ds.LocalPath,
		ds.Server, ds.Share, ds.Status, ds.BaseURL).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert datastore: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Datastore, error) {
	query := `SELECT id, name, domain, username, password, local_path, server, share, status, base_url
			FROM datastores WHERE id = $1`
	return scanDatastore(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*models.Datastore, error) {
	query := `SELECT id, name, domain, username, password, local_path, server, share, status, base_url
			FROM datastores WHERE name = $1`
	return scanDatastore(r.db.QueryRowContext(ctx, query, name))
}

func (r *PostgresRepository) ListIDs(ctx context.Context) ([]int64, error) {
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

func (r *PostgresRepository) Update(ctx context.Context, ds *models.Datastore) error {
	query := `UPDATE datastores SET name=$1, domain=$2, username=$3, password=$4, local_path=$5, server=$6, share=$7, base_url=$8
			WHERE id=$9`
	res, err := r.db.ExecContext(ctx, query,
		ds.Name, ds.Domain, ds.Username, ds.Password, ds.LocalPath,
		ds.Server, ds.Share, ds.BaseURL, ds.ID)
	if err != nil {
		return fmt.Errorf("failed to update datastore: %w", err)
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) SetStatus(ctx context.Context, id int64, status, localPath string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE datastores SET status=$1, local_path=$2 WHERE id=$3`, status, localPath, id)
	if err != nil {
		return fmt.Errorf("failed to set datastore status: %w", err)
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) SetBaseURL(ctx context.Context, id int64, baseURL string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE datastores SET base_url=$1 WHERE id=$2`, baseURL, id)
	if err != nil {
		return fmt.Errorf("failed to set datastore base url: %w", err)
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM datastores WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete datastore: %w", err)
	}
	return requireOneRow(res)
}
