package project

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/packfactory/packfactory/internal/datastore"
	"github.com/packfactory/packfactory/internal/dbx"
	"github.com/packfactory/packfactory/internal/models"
	"github.com/packfactory/packfactory/internal/repositories/files"
)

// leasedFile keeps the datastore lease alive for as long as the caller
// reads from the file.
type leasedFile struct {
	*os.File
	release func()
}

func (f *leasedFile) Close() error {
	err := f.File.Close()
	f.release()
	return err
}

// OpenProjectFile opens a project file for reading. The returned reader
// holds a datastore lease until closed. Locked files may still be read;
// a concurrent writer can never expose a partial file thanks to the
// rename-based write protocol.
func (s *Store) OpenProjectFile(ctx context.Context, projectID int64, relPath string) (io.ReadCloser, error) {
	relPath, err := cleanProjectPath(relPath)
	if err != nil {
		return nil, err
	}

	p, err := s.repos.Projects(s.db).GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.DirectoryID == nil {
		return nil, fmt.Errorf("project %d has no file tree: %w", projectID, ErrParentNotFound)
	}

	lease, err := s.registry.Acquire(ctx, p.DatastoreID)
	if err != nil {
		return nil, err
	}

	frepo := s.repos.Files(s.db)
	if _, err := frepo.GetByPath(ctx, *p.DirectoryID, relPath, false); err != nil {
		s.releaseLease(ctx, lease)
		if _, dirErr := frepo.GetByPath(ctx, *p.DirectoryID, relPath, true); dirErr == nil {
			return nil, fmt.Errorf("%q: %w", relPath, ErrIsDirectory)
		}
		return nil, err
	}

	f, err := os.Open(filepath.Join(projectDir(lease, p), filepath.FromSlash(relPath)))
	if err != nil {
		s.releaseLease(ctx, lease)
		return nil, err
	}
	return &leasedFile{File: f, release: func() { s.releaseLease(ctx, lease) }}, nil
}

// WriteProjectFile replaces (or creates) a project file with the bytes
// read from r, atomically, and marks the project dirty.
func (s *Store) WriteProjectFile(ctx context.Context, projectID int64, relPath string, r io.Reader) error {
	return s.writeProjectFile(ctx, projectID, relPath, r, writeOptions{markDirty: true})
}

type writeOptions struct {
	// internal callers may touch restricted paths.
	internal bool
	// markDirty records the write as a content change.
	markDirty bool
}

// writeProjectFile is the atomic write path: the payload goes to a
// uniquely named temporary file in the target directory and is renamed
// over the target only on success, so a concurrent reader never observes
// a partial file. A failed write removes the temporary file and leaves
// the original untouched. New files enter the catalog hidden and are
// unhidden after the rename, except restricted names, which stay hidden.
func (s *Store) writeProjectFile(ctx context.Context, projectID int64, relPath string, r io.Reader, opts writeOptions) error {
	relPath, err := cleanProjectPath(relPath)
	if err != nil {
		return err
	}
	if !opts.internal && restrictedPath(relPath) {
		return fmt.Errorf("%q: %w", relPath, ErrRestrictedPath)
	}

	p, err := s.repos.Projects(s.db).GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if p.DirectoryID == nil {
		return fmt.Errorf("project %d has no file tree: %w", projectID, ErrParentNotFound)
	}
	rootID := *p.DirectoryID

	lease, err := s.registry.Acquire(ctx, p.DatastoreID)
	if err != nil {
		return err
	}
	defer s.releaseLease(ctx, lease)

	frepo := s.repos.Files(s.db)

	if _, err := frepo.GetByPath(ctx, rootID, relPath, true); err == nil {
		return fmt.Errorf("%q: %w", relPath, ErrIsDirectory)
	}

	nodeID, isNew, err := s.resolveWriteTarget(ctx, frepo, rootID, relPath)
	if err != nil {
		return err
	}

	unlock, err := s.locks.acquire(ctx, nodeID, s.lockTimeout)
	if err != nil {
		if isNew {
			_ = frepo.Delete(ctx, nodeID)
		}
		return err
	}
	defer unlock()

	// The row may have vanished while we waited for the lock.
	if exists, err := frepo.Exists(ctx, nodeID); err != nil {
		return err
	} else if !exists {
		return fmt.Errorf("file %d: %w", nodeID, ErrFileVanished)
	}

	dir := projectDir(lease, p)
	target := filepath.Join(dir, filepath.FromSlash(relPath))
	tmp := filepath.Join(filepath.Dir(target), "."+uuid.NewString()+".tmp")

	if err := copyToFile(tmp, r); err != nil {
		os.Remove(tmp)
		if isNew {
			_ = frepo.Delete(ctx, nodeID)
		}
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		if isNew {
			_ = frepo.Delete(ctx, nodeID)
		}
		return err
	}

	if isNew && !restrictedPath(relPath) {
		if err := frepo.SetHidden(ctx, nodeID, false); err != nil {
			return err
		}
	}

	if opts.markDirty {
		return s.markDirty(ctx, p)
	}
	return nil
}

// resolveWriteTarget finds the catalog row for relPath or creates a new
// hidden one. A sibling whose name differs only by letter case rejects
// the write, since the files ultimately land on a case-insensitive
// filesystem.
func (s *Store) resolveWriteTarget(ctx context.Context, frepo files.Repository, rootID int64, relPath string) (nodeID int64, isNew bool, err error) {
	if node, err := frepo.GetByPath(ctx, rootID, relPath, false); err == nil {
		return node.ID, false, nil
	}

	parentID, err := s.resolveParent(ctx, frepo, rootID, relPath)
	if err != nil {
		return 0, false, err
	}
	if err := checkCaseCollision(ctx, frepo, parentID, relPath); err != nil {
		return 0, false, err
	}

	id, err := frepo.Insert(ctx, &models.FileNode{
		ParentID: &parentID,
		RootID:   &rootID,
		Path:     relPath,
		Hidden:   true,
	})
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (s *Store) resolveParent(ctx context.Context, frepo files.Repository, rootID int64, relPath string) (int64, error) {
	parent := parentPath(relPath)
	if parent == "" {
		return rootID, nil
	}
	node, err := frepo.GetByPath(ctx, rootID, parent, true)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", parent, ErrParentNotFound)
	}
	return node.ID, nil
}

// checkCaseCollision rejects a new name that matches an existing sibling
// under case folding. Exact matches are handled by the caller.
func checkCaseCollision(ctx context.Context, frepo files.Repository, parentID int64, relPath string) error {
	siblings, err := frepo.ListChildren(ctx, parentID)
	if err != nil {
		return err
	}
	base := path.Base(relPath)
	for _, sib := range siblings {
		if strings.EqualFold(path.Base(sib.Path), base) {
			return fmt.Errorf("%q vs %q: %w", relPath, sib.Path, ErrCaseCollision)
		}
	}
	return nil
}

func copyToFile(dst string, r io.Reader) error {
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// CreateDirectory adds a directory to the project: the real directory is
// created before the catalog row, so a crash in between leaves a
// harmless empty directory rather than a row pointing at nothing.
func (s *Store) CreateDirectory(ctx context.Context, projectID int64, relPath string) error {
	relPath, err := cleanProjectPath(relPath)
	if err != nil {
		return err
	}
	if top, _, _ := strings.Cut(relPath, "/"); top == BinDirName || top == SupportDirName {
		return fmt.Errorf("%q: %w", relPath, ErrRestrictedPath)
	}

	p, err := s.repos.Projects(s.db).GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if p.DirectoryID == nil {
		return fmt.Errorf("project %d has no file tree: %w", projectID, ErrParentNotFound)
	}
	rootID := *p.DirectoryID

	lease, err := s.registry.Acquire(ctx, p.DatastoreID)
	if err != nil {
		return err
	}
	defer s.releaseLease(ctx, lease)

	frepo := s.repos.Files(s.db)
	if _, err := frepo.GetByPath(ctx, rootID, relPath, true); err == nil {
		return fmt.Errorf("%q already exists", relPath)
	}
	if _, err := frepo.GetByPath(ctx, rootID, relPath, false); err == nil {
		return fmt.Errorf("%q already exists as a file", relPath)
	}

	parentID, err := s.resolveParent(ctx, frepo, rootID, relPath)
	if err != nil {
		return err
	}
	if err := checkCaseCollision(ctx, frepo, parentID, relPath); err != nil {
		return err
	}

	real := filepath.Join(projectDir(lease, p), filepath.FromSlash(relPath))
	if err := os.Mkdir(real, 0o755); err != nil {
		return err
	}

	_, err = frepo.Insert(ctx, &models.FileNode{
		ParentID:    &parentID,
		RootID:      &rootID,
		Path:        relPath,
		IsDirectory: true,
	})
	if err != nil {
		os.Remove(real)
		return err
	}
	return s.markDirty(ctx, p)
}

// DeleteFile removes a file or directory node and its on-disk
// counterpart, then marks the project dirty.
func (s *Store) DeleteFile(ctx context.Context, projectID, nodeID int64) error {
	p, err := s.repos.Projects(s.db).GetByID(ctx, projectID)
	if err != nil {
		return err
	}

	lease, err := s.registry.Acquire(ctx, p.DatastoreID)
	if err != nil {
		return err
	}
	defer s.releaseLease(ctx, lease)

	if err := s.deleteFileNode(ctx, lease, p, nodeID, false); err != nil {
		return err
	}
	return s.markDirty(ctx, p)
}

// deleteFileNode deletes one node. A non-empty directory is deletable
// only when its sole child is the attributes file, which is removed
// first. The catalog row goes before the unlink; a file already gone from
// disk is success, since it only means an earlier attempt got that far.
func (s *Store) deleteFileNode(ctx context.Context, lease *datastore.Lease, p *models.Project, nodeID int64, internal bool) error {
	frepo := s.repos.Files(s.db)
	node, err := frepo.GetByID(ctx, nodeID)
	if err != nil {
		return err
	}
	if p.DirectoryID == nil || node.RootID == nil || *node.RootID != *p.DirectoryID {
		return fmt.Errorf("node %d does not belong to project %d", nodeID, p.ID)
	}
	if !internal && restrictedPath(node.Path) {
		return fmt.Errorf("%q: %w", node.Path, ErrRestrictedPath)
	}

	if node.IsDirectory {
		children, err := frepo.ListChildren(ctx, nodeID)
		if err != nil {
			return err
		}
		switch {
		case len(children) == 0:
		case len(children) == 1 && !children[0].IsDirectory &&
			strings.EqualFold(path.Base(children[0].Path), AttributesFileName):
			if err := s.deleteFileNode(ctx, lease, p, children[0].ID, true); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%q: %w", node.Path, ErrDirectoryNotEmpty)
		}
	}

	unlock, err := s.locks.acquire(ctx, nodeID, s.lockTimeout)
	if err != nil {
		return err
	}
	defer unlock()

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repos.Files(tx).Delete(ctx, nodeID)
	})
	if err != nil {
		return err
	}

	real := filepath.Join(projectDir(lease, p), filepath.FromSlash(node.Path))
	if err := os.Remove(real); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
