// Package datastores provides the persistence layer for datastore rows:
// named storage locations, their connection details, and their
// online/offline status. Status changes and lease accounting are
// orchestrated by the datastore registry service; this package only owns
// the catalog rows.
package datastores

import (
	"context"

	"github.com/packfactory/packfactory/internal/models"
)

// Repository describes CRUD and status operations for datastore rows.
type Repository interface {
	// Create inserts a new datastore row and returns its id.
	Create(ctx context.Context, ds *models.Datastore) (int64, error)

	// GetByID returns a datastore by id, or common.ErrorNotFound.
	GetByID(ctx context.Context, id int64) (*models.Datastore, error)

	// GetByName returns a datastore by its unique name, or
	// common.ErrorNotFound.
	GetByName(ctx context.Context, name string) (*models.Datastore, error)

	// ListIDs returns the ids of every known datastore.
	ListIDs(ctx context.Context) ([]int64, error)

	// Update replaces the connection details of an existing row.
	Update(ctx context.Context, ds *models.Datastore) error

	// SetStatus records a status transition together with the local mount
	// path ("" clears it).
	SetStatus(ctx context.Context, id int64, status, localPath string) error

	// SetBaseURL records the externally visible base URL.
	SetBaseURL(ctx context.Context, id int64, baseURL string) error

	// Delete removes the row. Projects on the datastore are removed by
	// the schema's cascading delete.
	Delete(ctx context.Context, id int64) error
}
