// Package projects persists project catalog rows and their cached file
// listings.
package projects

import (
	"context"

	"github.com/packfactory/packfactory/internal/models"
)

type Repository interface {
	Create(ctx context.Context, p *models.Project) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Project, error)
	ListIDs(ctx context.Context) ([]int64, error)
	// ListByStates returns the ids of projects whose state is any of the
	// given states.
	ListByStates(ctx context.Context, states ...string) ([]int64, error)
	// ListByDatastore returns every project on the given datastore.
	ListByDatastore(ctx context.Context, datastoreID int64) ([]*models.Project, error)
	Update(ctx context.Context, p *models.Project) error
	SetState(ctx context.Context, id int64, state string) error
	SetIcon(ctx context.Context, id int64, icon []byte) error
	Delete(ctx context.Context, id int64) error

	// ReplaceFiles swaps the cached file listing of a project.
	ReplaceFiles(ctx context.Context, projectID int64, files []*models.ProjectFile) error
	GetFiles(ctx context.Context, projectID int64) ([]*models.ProjectFile, error)
}
