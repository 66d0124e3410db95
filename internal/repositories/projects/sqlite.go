package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

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

func (r *SQLiteRepository) Create(ctx context.Context, p *models.Project) (int64, error) {
	query := `INSERT INTO projects (runtime_id, subdir, state, icon, datastore_id, registry_id, directory_id)
			VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		p.RuntimeID, p.Subdir, p.State, p.Icon, p.DatastoreID, p.RegistryID, p.DirectoryID).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.Project, error) {
	query := `SELECT id, runtime_id, subdir, state, icon, datastore_id, registry_id, directory_id
			FROM projects WHERE id = ?`
	return scanProject(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteRepository) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM projects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

func (r *SQLiteRepository) ListByStates(ctx context.Context, states ...string) ([]int64, error) {
	if len(states) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(states)), ",")
	query := fmt.Sprintf(`SELECT id FROM projects WHERE state IN (%s) ORDER BY id`, placeholders)
	args := make([]any, len(states))
	for i, s := range states {
		args[i] = s
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

func (r *SQLiteRepository) ListByDatastore(ctx context.Context, datastoreID int64) ([]*models.Project, error) {
	query := `SELECT id, runtime_id, subdir, state, icon, datastore_id, registry_id, directory_id
			FROM projects WHERE datastore_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, datastoreID)
	if err != nil {
		return nil, err
	}
	return collectProjects(rows)
}

func (r *SQLiteRepository) Update(ctx context.Context, p *models.Project) error {
	query := `UPDATE projects
			SET runtime_id = ?, subdir = ?, state = ?, icon = ?, datastore_id = ?, registry_id = ?, directory_id = ?
			WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		p.RuntimeID, p.Subdir, p.State, p.Icon, p.DatastoreID, p.RegistryID, p.DirectoryID, p.ID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) SetState(ctx context.Context, id int64, state string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE projects SET state = ? WHERE id = ?`, state, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) SetIcon(ctx context.Context, id int64, icon []byte) error {
	res, err := r.db.ExecContext(ctx, `UPDATE projects SET icon = ? WHERE id = ?`, icon, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) ReplaceFiles(ctx context.Context, projectID int64, files []*models.ProjectFile) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM project_files WHERE project_id = ?`, projectID)
	if err != nil {
		return err
	}
	for _, f := range files {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO project_files (project_id, path, size) VALUES (?, ?, ?)`,
			projectID, f.Path, f.Size)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) GetFiles(ctx context.Context, projectID int64) ([]*models.ProjectFile, error) {
	query := `SELECT project_id, path, size FROM project_files WHERE project_id = ? ORDER BY path`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	return collectFiles(rows)
}

func scanProject(row *sql.Row) (*models.Project, error) {
	var p models.Project
	var registryID, directoryID sql.NullInt64
	err := row.Scan(&p.ID, &p.RuntimeID, &p.Subdir, &p.State, &p.Icon,
		&p.DatastoreID, &registryID, &directoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, err
	}
	if registryID.Valid {
		p.RegistryID = &registryID.Int64
	}
	if directoryID.Valid {
		p.DirectoryID = &directoryID.Int64
	}
	return &p, nil
}

func collectProjects(rows *sql.Rows) ([]*models.Project, error) {
	defer rows.Close()
	var out []*models.Project
	for rows.Next() {
		var p models.Project
		var registryID, directoryID sql.NullInt64
		err := rows.Scan(&p.ID, &p.RuntimeID, &p.Subdir, &p.State, &p.Icon,
			&p.DatastoreID, &registryID, &directoryID)
		if err != nil {
			return nil, err
		}
		if registryID.Valid {
			p.RegistryID = &registryID.Int64
		}
		if directoryID.Valid {
			p.DirectoryID = &directoryID.Int64
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func collectIDs(rows *sql.Rows) ([]int64, error) {
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

func collectFiles(rows *sql.Rows) ([]*models.ProjectFile, error) {
	defer rows.Close()
	var files []*models.ProjectFile
	for rows.Next() {
		var f models.ProjectFile
		if err := rows.Scan(&f.ProjectID, &f.Path, &f.Size); err != nil {
			return nil, err
		}
		files = append(files, &f)
	}
	return files, rows.Err()
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
