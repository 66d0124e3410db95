// Package datastore implements the datastore registry: the single source
// of truth for which shares are reachable and who is using them. Shares
// are attached and detached through an external mounter, and every
// filesystem consumer must hold a lease for the duration of its access.
package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/packfactory/packfactory/internal/common"
	"github.com/packfactory/packfactory/internal/logging"
	"github.com/packfactory/packfactory/internal/models"
	"github.com/packfactory/packfactory/internal/repositories/repomanager"
	"golang.org/x/sys/unix"
)

// The reserved datastores exist from first boot, are never mounted or
// unmounted, and cannot be deleted.
const (
	SystemDatastoreName   = "system"
	InternalDatastoreName = "internal"
)

func reservedName(name string) bool {
	return name == SystemDatastoreName || name == InternalDatastoreName
}

// Lease is an ephemeral, in-memory hold on a datastore. It snapshots the
// share's connection details at acquisition time; the snapshot stays valid
// for the lease's lifetime even if the row changes underneath. Leases do
// not survive a process restart.
type Lease struct {
	ID          int64
	DatastoreID int64
	Share       *models.Share
}

// Status is a point-in-time view of one datastore for monitoring clients.
type Status struct {
	Name        string
	Status      string
	Leases      int
	Size        uint64
	Used        uint64
	MountAtBoot bool
}

// Registry tracks known shares, their online/offline status, and
// outstanding leases. All lease state is process-local.
type Registry struct {
	db      *sql.DB
	repos   repomanager.RepositoryManager
	mounter Mounter
	logger  logging.Logger

	mu        sync.Mutex
	nextLease int64
	leases    map[int64]int64 // lease id -> datastore id
	counts    map[int64]int   // datastore id -> outstanding leases
}

func NewRegistry(db *sql.DB, m repomanager.RepositoryManager, mounter Mounter, logger logging.Logger) *Registry {
	return &Registry{
		db:      db,
		repos:   m,
		mounter: mounter,
		logger:  logger.With("component", "datastore-registry"),
		leases:  make(map[int64]int64),
		counts:  make(map[int64]int),
	}
}

// Acquire leases the datastore for one operation. It fails fast: unknown
// ids, the system datastore, and offline datastores are errors, never
// waits. The row is read fresh so a stale in-memory "online" cannot leak
// into the snapshot.
func (r *Registry) Acquire(ctx context.Context, id int64) (*Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ds, err := r.repos.Datastores(r.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ds.Name == SystemDatastoreName {
		return nil, ErrSystemReadOnly
	}
	if ds.Status != models.StatusOnline {
		return nil, fmt.Errorf("datastore %q: %w", ds.Name, ErrDatastoreOffline)
	}

	r.nextLease++
	lease := &Lease{ID: r.nextLease, DatastoreID: id, Share: ds.AsShare()}
	r.leases[lease.ID] = id
	r.counts[id]++
	return lease, nil
}

// Release returns a lease. Releasing an unknown lease id (double release,
// or a lease minted before a restart) fails without touching any other
// lease's count.
func (r *Registry) Release(lease *Lease) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dsID, ok := r.leases[lease.ID]
	if !ok {
		return fmt.Errorf("lease %d: %w", lease.ID, ErrLeaseNotFound)
	}
	delete(r.leases, lease.ID)
	if r.counts[dsID]--; r.counts[dsID] == 0 {
		delete(r.counts, dsID)
	}
	return nil
}

// LeaseCount reports the outstanding leases for a datastore.
func (r *Registry) LeaseCount(id int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[id]
}

// VerifyLeases asserts the datastore has no outstanding leases. A nonzero
// count is an error, not a wait; callers must retry.
func (r *Registry) VerifyLeases(id int64) error {
	if n := r.LeaseCount(id); n > 0 {
		return fmt.Errorf("datastore %d has %d outstanding leases: %w", id, n, ErrDatastoreInUse)
	}
	return nil
}

// GoOnline attaches the datastore's share. It is idempotent; for the
// reserved datastores only the status flag flips.
func (r *Registry) GoOnline(ctx context.Context, id int64) error {
	repo := r.repos.Datastores(r.db)
	ds, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if ds.Status == models.StatusOnline {
		return nil
	}

	localPath := ds.LocalPath
	if !reservedName(ds.Name) {
		localPath, err = r.mounter.Mount(ctx, ds)
		if err != nil {
			return fmt.Errorf("datastore %q: %w: %v", ds.Name, ErrMountFailed, err)
		}
	}

	if err := repo.SetStatus(ctx, id, models.StatusOnline, localPath); err != nil {
		return err
	}
	r.logger.Info(ctx, "datastore online", "name", ds.Name, "path", localPath)
	return nil
}

// GoOffline detaches the datastore's share. It requires a zero lease
// count and is idempotent. A nonzero unmount exit means the share was
// probably already detached, so it is logged and the transition still
// succeeds.
func (r *Registry) GoOffline(ctx context.Context, id int64) error {
	if err := r.VerifyLeases(id); err != nil {
		return err
	}

	repo := r.repos.Datastores(r.db)
	ds, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if ds.Status == models.StatusOffline {
		return nil
	}

	// Reserved datastores only flip the status flag; their configured
	// path must survive offline/online cycles.
	localPath := ds.LocalPath
	if !reservedName(ds.Name) {
		if err := r.mounter.Unmount(ctx, ds); err != nil {
			r.logger.Warn(ctx, "unmount failed, assuming already detached",
				"name", ds.Name, "error", err)
		}
		localPath = ""
	}

	if err := repo.SetStatus(ctx, id, models.StatusOffline, localPath); err != nil {
		return err
	}
	r.logger.Info(ctx, "datastore offline", "name", ds.Name)
	return nil
}

// EnsureReservedDatastores creates the system and internal datastore
// rows when missing, so they exist from first boot. They are never
// mounted: their local paths come straight from configuration and
// GoOnline/GoOffline only flip their status.
func (r *Registry) EnsureReservedDatastores(ctx context.Context, systemPath, internalPath string) error {
	repo := r.repos.Datastores(r.db)
	for _, res := range []struct{ name, path string }{
		{SystemDatastoreName, systemPath},
		{InternalDatastoreName, internalPath},
	} {
		_, err := repo.GetByName(ctx, res.name)
		if err == nil {
			continue
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		row, err := models.DatastoreFromShare(&models.Share{Name: res.name, LocalPath: res.path})
		if err != nil {
			return err
		}
		if _, err := repo.Create(ctx, row); err != nil {
			return err
		}
		r.logger.Info(ctx, "reserved datastore created", "name", res.name, "path", res.path)
	}
	return nil
}

// CreateDatastore registers a new share, offline. Reserved names are
// rejected.
func (r *Registry) CreateDatastore(ctx context.Context, share *models.Share) (int64, error) {
	if reservedName(share.Name) {
		return 0, fmt.Errorf("name %q: %w", share.Name, ErrReservedDatastore)
	}

	ds, err := models.DatastoreFromShare(share)
	if err != nil {
		return 0, err
	}

	repo := r.repos.Datastores(r.db)
	id, err := repo.Create(ctx, ds)
	if err != nil {
		return 0, err
	}
	if share.BaseURL != "" {
		if err := repo.SetBaseURL(ctx, id, share.BaseURL); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// UpdateDatastore replaces a datastore's connection details. The
// datastore must be offline, and reserved datastores cannot be renamed.
func (r *Registry) UpdateDatastore(ctx context.Context, id int64, share *models.Share) error {
	repo := r.repos.Datastores(r.db)
	ds, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if ds.Status == models.StatusOnline {
		return fmt.Errorf("datastore %q is online: %w", ds.Name, ErrDatastoreInUse)
	}
	if reservedName(ds.Name) && share.Name != ds.Name {
		return fmt.Errorf("datastore %q: %w", ds.Name, ErrReservedDatastore)
	}
	if reservedName(share.Name) && share.Name != ds.Name {
		return fmt.Errorf("name %q: %w", share.Name, ErrReservedDatastore)
	}

	updated, err := models.DatastoreFromShare(share)
	if err != nil {
		return err
	}
	updated.ID = id
	updated.Status = ds.Status
	return repo.Update(ctx, updated)
}

// DeleteDatastore takes the datastore offline and removes it. Reserved
// datastores cannot be deleted; outstanding leases block the operation.
func (r *Registry) DeleteDatastore(ctx context.Context, id int64) error {
	repo := r.repos.Datastores(r.db)
	ds, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if reservedName(ds.Name) {
		return fmt.Errorf("datastore %q: %w", ds.Name, ErrReservedDatastore)
	}
	if err := r.VerifyLeases(id); err != nil {
		return err
	}
	if err := r.GoOffline(ctx, id); err != nil {
		return err
	}
	return repo.Delete(ctx, id)
}

// statfs is a seam for testing GetStatus without a mounted share.
var statfs = unix.Statfs

// GetStatus reports one datastore's current state. Capacity figures are
// read from the mounted filesystem and are zero while offline.
func (r *Registry) GetStatus(ctx context.Context, id int64) (*Status, error) {
	ds, err := r.repos.Datastores(r.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	st := &Status{
		Name:        ds.Name,
		Status:      ds.Status,
		Leases:      r.LeaseCount(id),
		MountAtBoot: true,
	}
	if ds.Status == models.StatusOnline && ds.LocalPath != "" {
		var fs unix.Statfs_t
		if err := statfs(ds.LocalPath, &fs); err != nil {
			r.logger.Warn(ctx, "statfs failed", "name", ds.Name, "error", err)
		} else {
			st.Size = fs.Blocks * uint64(fs.Bsize)
			st.Used = (fs.Blocks - fs.Bfree) * uint64(fs.Bsize)
		}
	}
	return st, nil
}

// ResetAll forces every non-reserved datastore offline at startup. Leases
// cannot survive a restart, so the persisted status is not trusted.
// Unmount failures are logged, not fatal.
func (r *Registry) ResetAll(ctx context.Context) error {
	repo := r.repos.Datastores(r.db)
	ids, err := repo.ListIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		ds, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if reservedName(ds.Name) {
			continue
		}
		if err := r.mounter.Unmount(ctx, ds); err != nil {
			r.logger.Warn(ctx, "startup unmount failed", "name", ds.Name, "error", err)
		}
		if err := repo.SetStatus(ctx, id, models.StatusOffline, ""); err != nil {
			return err
		}
	}
	return nil
}

// BringDefaultsOnline attempts to bring every mount-at-boot datastore
// online. One datastore's failure does not block the others.
func (r *Registry) BringDefaultsOnline(ctx context.Context) {
	ids, err := r.repos.Datastores(r.db).ListIDs(ctx)
	if err != nil {
		r.logger.Error(ctx, "listing datastores failed", "error", err)
		return
	}
	for _, id := range ids {
		if err := r.GoOnline(ctx, id); err != nil {
			r.logger.Error(ctx, "bring-up failed", "id", id, "error", err)
		}
	}
}
