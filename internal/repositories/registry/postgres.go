package registry

import (
	"context"

	"github.com/packfactory/packfactory/internal/dbx"
	"github.com/packfactory/packfactory/internal/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateKey(ctx context.Context, key *models.RegistryKey) (int64, error) {
	query := `INSERT INTO registry_keys (parent_id, path, isolation, intermediate)
			VALUES ($1, $2, $3, $4) RETURNING id`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		key.ParentID, key.Path, key.Isolation, key.Intermediate).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *PostgresRepository) GetKey(ctx context.Context, id int64) (*models.RegistryKey, error) {
	query := `SELECT id, parent_id, path, isolation, intermediate
			FROM registry_keys WHERE id = $1`
	return scanKey(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetChildByPath(ctx context.Context, parentID int64, path string) (*models.RegistryKey, error) {
	query := `SELECT id, parent_id, path, isolation, intermediate
			FROM registry_keys WHERE parent_id = $1 AND path = $2`
	return scanKey(r.db.QueryRowContext(ctx, query, parentID, path))
}

func (r *PostgresRepository) ListSubkeys(ctx context.Context, parentID int64) ([]*models.RegistryKey, error) {
	query := `SELECT id, parent_id, path, isolation, intermediate
			FROM registry_keys WHERE parent_id = $1 ORDER BY path`
	rows, err := r.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, err
	}
	return collectKeys(rows)
}

func (r *PostgresRepository) UpdateKey(ctx context.Context, key *models.RegistryKey) error {
	query := `UPDATE registry_keys SET path = $1, isolation = $2, intermediate = $3 WHERE id = $4`
	res, err := r.db.ExecContext(ctx, query,
		key.Path, key.Isolation, key.Intermediate, key.ID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) DeleteKey(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM registry_keys WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) InsertValue(ctx context.Context, v *models.RegistryValue) (int64, error) {
	query := `INSERT INTO registry_values (key_id, name, kind, data, name_expand, data_expand)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		v.KeyID, v.Name, v.Kind, v.Data, v.NameExpand, v.DataExpand).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *PostgresRepository) ListValues(ctx context.Context, keyID int64) ([]*models.RegistryValue, error) {
	query := `SELECT id, key_id, name, kind, data, name_expand, data_expand
			FROM registry_values WHERE key_id = $1 ORDER BY name NULLS FIRST`
	rows, err := r.db.QueryContext(ctx, query, keyID)
	if err != nil {
		return nil, err
	}
	return collectValues(rows)
}

func (r *PostgresRepository) UpdateValue(ctx context.Context, v *models.RegistryValue) error {
	query := `UPDATE registry_values
			SET name = $1, kind = $2, data = $3, name_expand = $4, data_expand = $5
			WHERE id = $6`
	res, err := r.db.ExecContext(ctx, query,
		v.Name, v.Kind, v.Data, v.NameExpand, v.DataExpand, v.ID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) DeleteValue(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM registry_values WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) ReplaceValues(ctx context.Context, keyID int64, want []*models.RegistryValue) error {
	return reconcileValues(ctx, r, keyID, want)
}
