package projects

import (
	"context"
	"fmt"
	"strings"

	"github.com/packfactory/packfactory/internal/dbx"
	"github.com/packfactory/packfactory/internal/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.Project) (int64, error) {
	query := `INSERT INTO projects (runtime_id, subdir, state, icon, datastore_id, registry_id, directory_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		p.RuntimeID, p.Subdir, p.State, p.Icon, p.DatastoreID, p.RegistryID, p.DirectoryID).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Project, error) {
	query := `SELECT id, runtime_id, subdir, state, icon, datastore_id, registry_id, directory_id
			FROM projects WHERE id = $1`
	return scanProject(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM projects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

func (r *PostgresRepository) ListByStates(ctx context.Context, states ...string) ([]int64, error) {
	if len(states) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(states))
	args := make([]any, len(states))
	for i, s := range states {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = s
	}
	query := fmt.Sprintf(`SELECT id FROM projects WHERE state IN (%s) ORDER BY id`,
		strings.Join(placeholders, ","))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

func (r *PostgresRepository) ListByDatastore(ctx context.Context, datastoreID int64) ([]*models.Project, error) {
	query := `SELECT id, runtime_id, subdir, state, icon, datastore_id, registry_id, directory_id
			FROM projects WHERE datastore_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, datastoreID)
	if err != nil {
		return nil, err
	}
	return collectProjects(rows)
}

func (r *PostgresRepository) Update(ctx context.Context, p *models.Project) error {
	query := `UPDATE projects
			SET runtime_id = $1, subdir = $2, state = $3, icon = $4, datastore_id = $5, registry_id = $6, directory_id = $7
			WHERE id = $8`
	res, err := r.db.ExecContext(ctx, query,
		p.RuntimeID, p.Subdir, p.State, p.Icon, p.DatastoreID, p.RegistryID, p.DirectoryID, p.ID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) SetState(ctx context.Context, id int64, state string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE projects SET state = $1 WHERE id = $2`, state, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) SetIcon(ctx context.Context, id int64, icon []byte) error {
	res, err := r.db.ExecContext(ctx, `UPDATE projects SET icon = $1 WHERE id = $2`, icon, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) ReplaceFiles(ctx context.Context, projectID int64, files []*models.ProjectFile) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM project_files WHERE project_id = $1`, projectID)
	if err != nil {
		return err
	}
	for _, f := range files {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO project_files (project_id, path, size) VALUES ($1, $2, $3)`,
			projectID, f.Path, f.Size)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) GetFiles(ctx context.Context, projectID int64) ([]*models.ProjectFile, error) {
	query := `SELECT project_id, path, size FROM project_files WHERE project_id = $1 ORDER BY path`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	return collectFiles(rows)
}
