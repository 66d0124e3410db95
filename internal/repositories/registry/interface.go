// Package registry persists the per-project registry mirror: a tree of
// keys with isolation modes plus their named values. Key rows cascade,
// so dropping a subtree root removes everything beneath it.
package registry

import (
	"context"

	"github.com/packfactory/packfactory/internal/models"
)

type Repository interface {
	// Keys.
	CreateKey(ctx context.Context, key *models.RegistryKey) (int64, error)
	GetKey(ctx context.Context, id int64) (*models.RegistryKey, error)
	// GetChildByPath resolves a direct child of parentID whose full path
	// matches exactly, byte for byte. Keys are stored with the letter
	// case the capture used, so lookups must present the same case.
	GetChildByPath(ctx context.Context, parentID int64, path string) (*models.RegistryKey, error)
	ListSubkeys(ctx context.Context, parentID int64) ([]*models.RegistryKey, error)
	UpdateKey(ctx context.Context, key *models.RegistryKey) error
	DeleteKey(ctx context.Context, id int64) error

	// Values.
	InsertValue(ctx context.Context, v *models.RegistryValue) (int64, error)
	ListValues(ctx context.Context, keyID int64) ([]*models.RegistryValue, error)
	UpdateValue(ctx context.Context, v *models.RegistryValue) error
	DeleteValue(ctx context.Context, id int64) error
	// ReplaceValues reconciles the stored values of keyID against want:
	// values whose name matches an existing row keep that row (updated in
	// place only when their payload changed), rows with no counterpart in
	// want are deleted, and the rest are inserted.
	ReplaceValues(ctx context.Context, keyID int64, want []*models.RegistryValue) error
}
