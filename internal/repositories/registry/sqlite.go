package registry

import (
	"context"
	"database/sql"
	"errors"

	"github.com/packfactory/packfactory/internal/common"
	"github.com/packfactory/packfactory/internal/dbx"
	"github.com/packfactory/packfactory/internal/models"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateKey(ctx context.Context, key *models.RegistryKey) (int64, error) {
	query := `INSERT INTO registry_keys (parent_id, path, isolation, intermediate)
			VALUES (?, ?, ?, ?) RETURNING id`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		key.ParentID, key.Path, key.Isolation, key.Intermediate).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *SQLiteRepository) GetKey(ctx context.Context, id int64) (*models.RegistryKey, error) {
	query := `SELECT id, parent_id, path, isolation, intermediate
			FROM registry_keys WHERE id = ?`
	return scanKey(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteRepository) GetChildByPath(ctx context.Context, parentID int64, path string) (*models.RegistryKey, error) {
	query := `SELECT id, parent_id, path, isolation, intermediate
			FROM registry_keys WHERE parent_id = ? AND path = ?`
	return scanKey(r.db.QueryRowContext(ctx, query, parentID, path))
}

func (r *SQLiteRepository) ListSubkeys(ctx context.Context, parentID int64) ([]*models.RegistryKey, error) {
	query := `SELECT id, parent_id, path, isolation, intermediate
			FROM registry_keys WHERE parent_id = ? ORDER BY path`
	rows, err := r.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, err
	}
	return collectKeys(rows)
}

func (r *SQLiteRepository) UpdateKey(ctx context.Context, key *models.RegistryKey) error {
	query := `UPDATE registry_keys SET path = ?, isolation = ?, intermediate = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		key.Path, key.Isolation, key.Intermediate, key.ID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) DeleteKey(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM registry_keys WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) InsertValue(ctx context.Context, v *models.RegistryValue) (int64, error) {
	query := `INSERT INTO registry_values (key_id, name, kind, data, name_expand, data_expand)
			VALUES (?, ?, ?, ?, ?, ?) RETURNING id`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		v.KeyID, v.Name, v.Kind, v.Data, v.NameExpand, v.DataExpand).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *SQLiteRepository) ListValues(ctx context.Context, keyID int64) ([]*models.RegistryValue, error) {
	query := `SELECT id, key_id, name, kind, data, name_expand, data_expand
			FROM registry_values WHERE key_id = ? ORDER BY name IS NOT NULL, name`
	rows, err := r.db.QueryContext(ctx, query, keyID)
	if err != nil {
		return nil, err
	}
	return collectValues(rows)
}

func (r *SQLiteRepository) UpdateValue(ctx context.Context, v *models.RegistryValue) error {
	query := `UPDATE registry_values
			SET name = ?, kind = ?, data = ?, name_expand = ?, data_expand = ?
			WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		v.Name, v.Kind, v.Data, v.NameExpand, v.DataExpand, v.ID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) DeleteValue(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM registry_values WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) ReplaceValues(ctx context.Context, keyID int64, want []*models.RegistryValue) error {
	return reconcileValues(ctx, r, keyID, want)
}

func scanKey(row *sql.Row) (*models.RegistryKey, error) {
	var k models.RegistryKey
	var parent sql.NullInt64
	err := row.Scan(&k.ID, &parent, &k.Path, &k.Isolation, &k.Intermediate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, err
	}
	if parent.Valid {
		k.ParentID = &parent.Int64
	}
	return &k, nil
}

func collectKeys(rows *sql.Rows) ([]*models.RegistryKey, error) {
	defer rows.Close()
	var keys []*models.RegistryKey
	for rows.Next() {
		var k models.RegistryKey
		var parent sql.NullInt64
		if err := rows.Scan(&k.ID, &parent, &k.Path, &k.Isolation, &k.Intermediate); err != nil {
			return nil, err
		}
		if parent.Valid {
			k.ParentID = &parent.Int64
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func collectValues(rows *sql.Rows) ([]*models.RegistryValue, error) {
	defer rows.Close()
	var values []*models.RegistryValue
	for rows.Next() {
		var v models.RegistryValue
		var name sql.NullString
		err := rows.Scan(&v.ID, &v.KeyID, &name, &v.Kind, &v.Data, &v.NameExpand, &v.DataExpand)
		if err != nil {
			return nil, err
		}
		if name.Valid {
			v.Name = &name.String
		}
		values = append(values, &v)
	}
	return values, rows.Err()
}

// reconcileValues is the shared ReplaceValues implementation. It keys the
// existing rows by value name (nil meaning the default value), updates rows
// whose payload changed, deletes rows absent from want, and inserts the rest.
// Rows whose payload is already right are left untouched so their ids
// survive the reconcile.
func reconcileValues(ctx context.Context, repo Repository, keyID int64, want []*models.RegistryValue) error {
	existing, err := repo.ListValues(ctx, keyID)
	if err != nil {
		return err
	}

	byName := make(map[string]*models.RegistryValue, len(existing))
	for _, v := range existing {
		byName[valueName(v)] = v
	}

	for _, w := range want {
		cur, ok := byName[valueName(w)]
		if !ok {
			w.KeyID = keyID
			if _, err := repo.InsertValue(ctx, w); err != nil {
				return err
			}
			continue
		}
		delete(byName, valueName(w))
		if samePayload(cur, w) {
			continue
		}
		cur.Kind = w.Kind
		cur.Data = w.Data
		cur.NameExpand = w.NameExpand
		cur.DataExpand = w.DataExpand
		if err := repo.UpdateValue(ctx, cur); err != nil {
			return err
		}
	}

	for _, stale := range byName {
		if err := repo.DeleteValue(ctx, stale.ID); err != nil {
			return err
		}
	}
	return nil
}

func valueName(v *models.RegistryValue) string {
	if v.Name == nil {
		return ""
	}
	return *v.Name
}

func samePayload(a, b *models.RegistryValue) bool {
	return a.Kind == b.Kind && a.Data == b.Data &&
		a.NameExpand == b.NameExpand && a.DataExpand == b.DataExpand
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
