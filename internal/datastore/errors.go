package datastore

import "errors"

var (
	// ErrLeaseNotFound is returned by Release for a lease id that was
	// never acquired or was already released.
	ErrLeaseNotFound = errors.New("lease not found")

	// ErrDatastoreInUse is returned when an operation requires zero
	// outstanding leases but some remain. Callers should retry later.
	ErrDatastoreInUse = errors.New("datastore has outstanding leases")

	// ErrDatastoreOffline is returned by Acquire when the datastore is
	// not online.
	ErrDatastoreOffline = errors.New("datastore is offline")

	// ErrSystemReadOnly is returned when a caller tries to lease or
	// modify the read-only system datastore.
	ErrSystemReadOnly = errors.New("system datastore is read-only")

	// ErrReservedDatastore is returned when a caller tries to delete or
	// rename one of the reserved datastores.
	ErrReservedDatastore = errors.New("reserved datastore")

	// ErrMountFailed wraps a nonzero exit from the external mounter
	// while going online.
	ErrMountFailed = errors.New("mount failed")
)
