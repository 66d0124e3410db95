// Package files provides the persistence layer for file-tree nodes: one
// catalog row per real file or directory under a project's subdirectory.
// Deleting a node removes its descendants through the schema's cascading
// delete on parent_id.
package files

import (
	"context"

	"github.com/packfactory/packfactory/internal/models"
)

// Repository describes operations on file-tree node rows.
type Repository interface {
	// Insert adds a node and returns its id.
	Insert(ctx context.Context, n *models.FileNode) (int64, error)

	// SetRoot records the node's tree-root reference. The root node
	// references itself so that path lookups can address it uniformly.
	SetRoot(ctx context.Context, id, rootID int64) error

	// GetByID returns a node, or common.ErrorNotFound.
	GetByID(ctx context.Context, id int64) (*models.FileNode, error)

	// GetByPath returns the node with the given tree-relative path and
	// kind within the tree rooted at rootID, or common.ErrorNotFound.
	GetByPath(ctx context.Context, rootID int64, path string, isDirectory bool) (*models.FileNode, error)

	// ListChildren returns the direct children of a node.
	ListChildren(ctx context.Context, parentID int64) ([]*models.FileNode, error)

	// SetHidden flips the node's hidden flag.
	SetHidden(ctx context.Context, id int64, hidden bool) error

	// Delete removes the node (and, through the schema, its subtree).
	Delete(ctx context.Context, id int64) error

	// Exists reports whether the node row is still present.
	Exists(ctx context.Context, id int64) (bool, error)
}
