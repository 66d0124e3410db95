package project

import "errors"

var (
	// ErrInvalidState is returned when a lifecycle transition is
	// requested from a state that does not allow it.
	ErrInvalidState = errors.New("invalid project state")

	// ErrPathOutsideProject is returned when a file path escapes the
	// project's subdirectory.
	ErrPathOutsideProject = errors.New("path escapes project directory")

	// ErrRestrictedPath is returned when a non-internal caller touches a
	// restricted file.
	ErrRestrictedPath = errors.New("restricted path")

	// ErrCaseCollision is returned when a new name collides with an
	// existing sibling differing only by letter case.
	ErrCaseCollision = errors.New("name differs only by case from an existing entry")

	// ErrLockTimeout is returned when a per-file lock could not be
	// acquired within the configured timeout.
	ErrLockTimeout = errors.New("file lock timeout")

	// ErrFileVanished is returned when a file's catalog row disappeared
	// between lookup and lock acquisition.
	ErrFileVanished = errors.New("file no longer exists in catalog")

	// ErrDirectoryNotEmpty is returned when deleting a directory whose
	// children are more than the single attributes file.
	ErrDirectoryNotEmpty = errors.New("directory not empty")

	// ErrIsDirectory is returned when a file operation targets a
	// directory node.
	ErrIsDirectory = errors.New("target is a directory")

	// ErrParentNotFound is returned when the parent directory of a new
	// entry has no catalog row.
	ErrParentNotFound = errors.New("parent directory not found")
)
