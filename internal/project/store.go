// Package project implements the project store: lifecycle orchestration
// and filesystem/catalog consistency for captured application packages.
// Every filesystem access happens under a datastore lease; long-running
// transitions (delete, rebuild) run on supervised background queues.
package project

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/packfactory/packfactory/internal/config"
	"github.com/packfactory/packfactory/internal/datastore"
	"github.com/packfactory/packfactory/internal/dbx"
	"github.com/packfactory/packfactory/internal/logging"
	"github.com/packfactory/packfactory/internal/models"
	"github.com/packfactory/packfactory/internal/repositories/repomanager"
	"github.com/packfactory/packfactory/internal/workers"
	"golang.org/x/sync/semaphore"
)

// Store owns the project lifecycle state machine and mediates every
// file and registry mutation against a leased datastore path.
type Store struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	registry *datastore.Registry
	builder  BuildTool
	icons    IconExtractor
	logger   logging.Logger

	locks        *lockTable
	lockTimeout  time.Duration
	runtimesRoot string

	deleteQueue  *workers.Queue
	rebuildQueue *workers.Queue
}

// NewStore wires a Store with its two worker queues. The queues share a
// bounded pool so delete and rebuild work cannot saturate the process.
func NewStore(db *sql.DB, repos repomanager.RepositoryManager, registry *datastore.Registry,
	builder BuildTool, icons IconExtractor, cfg *config.Config, logger logging.Logger) *Store {

	s := &Store{
		db:           db,
		repos:        repos,
		registry:     registry,
		builder:      builder,
		icons:        icons,
		logger:       logger.With("component", "project-store"),
		locks:        newLockTable(),
		lockTimeout:  cfg.FileLockTimeout,
		runtimesRoot: cfg.RuntimesRoot,
	}

	pool := semaphore.NewWeighted(cfg.MaxConcurrentOps)
	s.deleteQueue = workers.NewQueue("delete", s.processDelete, pool, cfg.WorkerRestartDelay, logger)
	s.rebuildQueue = workers.NewQueue("rebuild", s.processRebuild, pool, cfg.WorkerRestartDelay, logger)
	return s
}

// Start launches the background queues.
func (s *Store) Start(ctx context.Context) {
	s.deleteQueue.Start(ctx)
	s.rebuildQueue.Start(ctx)
}

// Stop rejects new delete/rebuild requests and waits for in-flight work.
func (s *Store) Stop() {
	s.deleteQueue.Stop()
	s.rebuildQueue.Stop()
}

// GetProject returns one project row.
func (s *Store) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	return s.repos.Projects(s.db).GetByID(ctx, id)
}

// GetProjectFiles returns the project's deliverable file records.
func (s *Store) GetProjectFiles(ctx context.Context, id int64) ([]*models.ProjectFile, error) {
	return s.repos.Projects(s.db).GetFiles(ctx, id)
}

// releaseLease returns a lease, logging rather than propagating a failed
// release so deferred cleanup never masks the primary error.
func (s *Store) releaseLease(ctx context.Context, lease *datastore.Lease) {
	if err := s.registry.Release(lease); err != nil {
		s.logger.Warn(ctx, "lease release failed", "lease", lease.ID, "error", err)
	}
}

// projectDir resolves a project's absolute directory under a held lease.
func projectDir(lease *datastore.Lease, p *models.Project) string {
	return filepath.Join(lease.Share.LocalPath, p.Subdir)
}

// Create allocates a project on the datastore, derives its subdirectory
// from the new id, and builds the directory skeleton (bin/, Support/,
// build log). The whole operation runs under one lease and one catalog
// transaction; an offline datastore fails the call before any row exists.
func (s *Store) Create(ctx context.Context, datastoreID, runtimeID int64) (int64, error) {
	lease, err := s.registry.Acquire(ctx, datastoreID)
	if err != nil {
		return 0, err
	}
	defer s.releaseLease(ctx, lease)

	var id int64
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Projects(tx)
		id, err = repo.Create(ctx, &models.Project{
			RuntimeID:   runtimeID,
			State:       models.StateCreated,
			DatastoreID: datastoreID,
		})
		if err != nil {
			return err
		}

		p, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		p.Subdir = Subdir(id)
		if err := repo.Update(ctx, p); err != nil {
			return err
		}

		// Real directories before the commit: a crash leaves an orphan
		// directory, never a row pointing at nothing.
		dir := filepath.Join(lease.Share.LocalPath, p.Subdir)
		for _, d := range []string{dir, filepath.Join(dir, BinDirName), filepath.Join(dir, SupportDirName)} {
			if err := os.MkdirAll(d, 0o755); err != nil {
				return err
			}
		}
		f, err := os.OpenFile(filepath.Join(dir, SupportDirName, buildLogName),
			os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		return f.Close()
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info(ctx, "project created", "id", id, "datastore", datastoreID)
	return id, nil
}

// Import scans the datastore root for directories holding a descriptor
// file and registers each valid one as a new created project. Candidates
// missing required files are reported in the returned map instead of
// failing the call; directories already imported are skipped.
func (s *Store) Import(ctx context.Context, datastoreID, runtimeID int64) ([]int64, map[string][]string, error) {
	lease, err := s.registry.Acquire(ctx, datastoreID)
	if err != nil {
		return nil, nil, err
	}
	defer s.releaseLease(ctx, lease)

	valid, invalid, err := ScanProjectDirs(lease.Share.LocalPath)
	if err != nil {
		return nil, nil, err
	}

	repo := s.repos.Projects(s.db)
	existing, err := repo.ListByDatastore(ctx, datastoreID)
	if err != nil {
		return nil, nil, err
	}
	known := make(map[string]bool, len(existing))
	for _, p := range existing {
		known[p.Subdir] = true
	}

	var ids []int64
	for _, name := range valid {
		if known[name] {
			continue
		}
		id, err := repo.Create(ctx, &models.Project{
			RuntimeID:   runtimeID,
			Subdir:      name,
			State:       models.StateCreated,
			DatastoreID: datastoreID,
		})
		if err != nil {
			return ids, invalid, err
		}
		ids = append(ids, id)
	}

	s.logger.Info(ctx, "import finished", "datastore", datastoreID,
		"imported", len(ids), "invalid", len(invalid))
	return ids, invalid, nil
}

// Refresh re-derives the project's file tree and deliverable list from
// disk, imports the registry capture on first refresh, attempts a
// best-effort icon extraction, and leaves the project available. The disk
// walk runs before the catalog transaction opens so a slow share never
// holds catalog locks.
func (s *Store) Refresh(ctx context.Context, id int64) error {
	p, err := s.repos.Projects(s.db).GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch p.State {
	case models.StateCreated, models.StateAvailable, models.StateDirty:
	default:
		return fmt.Errorf("refresh in state %q: %w", p.State, ErrInvalidState)
	}
	return s.refresh(ctx, p)
}

// refresh is the ungated refresh body. The rebuild worker calls it
// directly so a successful build goes rebuilding→available without a
// visible stop in dirty.
func (s *Store) refresh(ctx context.Context, p *models.Project) error {
	id := p.ID

	lease, err := s.registry.Acquire(ctx, p.DatastoreID)
	if err != nil {
		return err
	}
	defer s.releaseLease(ctx, lease)

	dir := projectDir(lease, p)
	entries, deliverables, err := walkProjectDir(dir, p.Subdir)
	if err != nil {
		return err
	}

	var hiveRoot *hiveTree
	if p.RegistryID == nil {
		if hiveRoot, err = parseHiveFiles(dir); err != nil {
			return err
		}
	}

	icon, iconErr := s.extractIcon(ctx, dir, hiveRoot)
	if iconErr != nil {
		s.logger.Warn(ctx, "icon extraction failed", "project", id, "error", iconErr)
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		frepo := s.repos.Files(tx)
		prepoTx := s.repos.Projects(tx)

		// The old tree is removed only after the project row points at
		// the replacement, since the row references the old root.
		oldRootID := p.DirectoryID

		rootID, err := frepo.Insert(ctx, &models.FileNode{IsDirectory: true})
		if err != nil {
			return err
		}
		if err := frepo.SetRoot(ctx, rootID, rootID); err != nil {
			return err
		}

		idByPath := map[string]int64{"": rootID}
		for _, e := range entries {
			parentID := idByPath[parentPath(e.relPath)]
			nid, err := frepo.Insert(ctx, &models.FileNode{
				ParentID:    &parentID,
				RootID:      &rootID,
				Path:        e.relPath,
				IsDirectory: e.isDir,
				Hidden:      e.hidden,
			})
			if err != nil {
				return err
			}
			idByPath[e.relPath] = nid
		}

		if err := prepoTx.ReplaceFiles(ctx, id, deliverables); err != nil {
			return err
		}

		if hiveRoot != nil {
			regRootID, err := storeHiveTree(ctx, s.repos.Registry(tx), hiveRoot)
			if err != nil {
				return err
			}
			p.RegistryID = &regRootID
		}

		p.DirectoryID = &rootID
		p.State = models.StateAvailable
		if icon != nil {
			p.Icon = icon
		}
		if err := prepoTx.Update(ctx, p); err != nil {
			return err
		}

		if oldRootID != nil {
			if err := frepo.Delete(ctx, *oldRootID); err != nil {
				return err
			}
		}
		return nil
	})
}

// Rebuild flips the project to rebuilding synchronously so a second
// request is rejected, then hands the work to the rebuild queue.
func (s *Store) Rebuild(ctx context.Context, id int64) error {
	repo := s.repos.Projects(s.db)
	p, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.State != models.StateAvailable && p.State != models.StateDirty {
		return fmt.Errorf("rebuild in state %q: %w", p.State, ErrInvalidState)
	}
	if err := repo.SetState(ctx, id, models.StateRebuilding); err != nil {
		return err
	}
	if err := s.rebuildQueue.Enqueue(id); err != nil {
		if revertErr := repo.SetState(ctx, id, models.StateDirty); revertErr != nil {
			s.logger.Error(ctx, "state revert failed", "project", id, "error", revertErr)
		}
		return err
	}
	return nil
}

// Delete flips the project to deleting synchronously, then enqueues the
// cleanup. An enqueue rejected by a stopping worker reverts the state.
func (s *Store) Delete(ctx context.Context, id int64) error {
	repo := s.repos.Projects(s.db)
	p, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch p.State {
	case models.StateCreated, models.StateAvailable, models.StateDirty:
	default:
		return fmt.Errorf("delete in state %q: %w", p.State, ErrInvalidState)
	}
	if err := repo.SetState(ctx, id, models.StateDeleting); err != nil {
		return err
	}
	if err := s.deleteQueue.Enqueue(id); err != nil {
		if revertErr := repo.SetState(ctx, id, p.State); revertErr != nil {
			s.logger.Error(ctx, "state revert failed", "project", id, "error", revertErr)
		}
		return err
	}
	return nil
}

// Fsck reconciles projects stranded by a crash: an interrupted delete is
// considered done, an interrupted rebuild left the content unreviewed.
func (s *Store) Fsck(ctx context.Context) error {
	repo := s.repos.Projects(s.db)

	stranded, err := repo.ListByStates(ctx, models.StateDeleting)
	if err != nil {
		return err
	}
	for _, id := range stranded {
		s.logger.Warn(ctx, "project stuck deleting, marking deleted", "project", id)
		if err := repo.SetState(ctx, id, models.StateDeleted); err != nil {
			return err
		}
	}

	stranded, err = repo.ListByStates(ctx, models.StateRebuilding)
	if err != nil {
		return err
	}
	for _, id := range stranded {
		s.logger.Warn(ctx, "project stuck rebuilding, marking dirty", "project", id)
		if err := repo.SetState(ctx, id, models.StateDirty); err != nil {
			return err
		}
	}
	return nil
}

// markDirty records that the project's content changed since its last
// successful refresh or rebuild. Only an available project transitions;
// dirty stays dirty and created stays created.
func (s *Store) markDirty(ctx context.Context, p *models.Project) error {
	if p.State != models.StateAvailable {
		return nil
	}
	return s.repos.Projects(s.db).SetState(ctx, p.ID, models.StateDirty)
}
