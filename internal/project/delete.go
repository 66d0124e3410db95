package project

import (
	"context"
	"errors"
	"os"

	"github.com/packfactory/packfactory/internal/common"
	"github.com/packfactory/packfactory/internal/models"
)

// processDelete is the delete queue handler. The project ends up deleted
// even when the directory removal fails: the failure is logged, but the
// catalog no longer advertises content that cannot be rebuilt anyway.
func (s *Store) processDelete(ctx context.Context, id int64) error {
	repo := s.repos.Projects(s.db)
	p, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "delete for unknown project", "project", id)
			return nil
		}
		return err
	}

	lease, err := s.registry.Acquire(ctx, p.DatastoreID)
	if err != nil {
		s.logger.Error(ctx, "cannot lease datastore for delete, files left behind",
			"project", id, "error", err)
	} else {
		dir := projectDir(lease, p)
		// External tools leave read-only files that would break the
		// removal below.
		if err := FixPermissions(dir); err != nil && !os.IsNotExist(err) {
			s.logger.Warn(ctx, "permission fixup failed", "project", id, "error", err)
		}
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Error(ctx, "directory removal failed, project still marked deleted",
				"project", id, "dir", dir, "error", err)
		}
		s.releaseLease(ctx, lease)
	}

	// Null the icon so deleted projects do not accumulate blobs.
	if err := repo.SetIcon(ctx, id, nil); err != nil {
		s.logger.Error(ctx, "icon cleanup failed", "project", id, "error", err)
	}
	if err := repo.SetState(ctx, id, models.StateDeleted); err != nil {
		return err
	}
	s.logger.Info(ctx, "project deleted", "project", id)
	return nil
}
