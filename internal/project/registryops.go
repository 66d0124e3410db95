package project

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/packfactory/packfactory/internal/common"
	"github.com/packfactory/packfactory/internal/dbx"
	"github.com/packfactory/packfactory/internal/hive"
	"github.com/packfactory/packfactory/internal/models"
	"github.com/packfactory/packfactory/internal/repositories/registry"
)

type hiveTree = hive.Key

// parseHiveFiles reads every hive capture file present in dir and merges
// them under one synthetic root. Absent files are skipped; an empty
// project yields an empty root.
func parseHiveFiles(dir string) (*hiveTree, error) {
	root := hive.NewKey("", "", true)
	for _, name := range HiveFileNames {
		f, err := os.Open(filepath.Join(dir, name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		parsed, err := hive.Parse(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		for seg, sub := range parsed.Subkeys {
			root.Subkeys[seg] = sub
		}
	}
	return root, nil
}

// storeHiveTree persists an in-memory hive forest and returns the id of
// the synthetic root row.
func storeHiveTree(ctx context.Context, repo registry.Repository, root *hiveTree) (int64, error) {
	rootID, err := repo.CreateKey(ctx, &models.RegistryKey{Path: "", Intermediate: true})
	if err != nil {
		return 0, err
	}
	if err := storeHiveSubkeys(ctx, repo, rootID, root); err != nil {
		return 0, err
	}
	return rootID, nil
}

func storeHiveSubkeys(ctx context.Context, repo registry.Repository, parentID int64, k *hiveTree) error {
	for _, name := range k.SubkeyNames() {
		sub := k.Subkeys[name]
		id, err := repo.CreateKey(ctx, &models.RegistryKey{
			ParentID:     &parentID,
			Path:         sub.Path,
			Isolation:    sub.Isolation,
			Intermediate: sub.Intermediate,
		})
		if err != nil {
			return err
		}
		for _, v := range sub.Values {
			_, err := repo.InsertValue(ctx, &models.RegistryValue{
				KeyID:      id,
				Name:       v.Name,
				Kind:       v.Kind,
				Data:       v.Data,
				NameExpand: v.NameExpand,
				DataExpand: v.DataExpand,
			})
			if err != nil {
				return err
			}
		}
		if err := storeHiveSubkeys(ctx, repo, id, sub); err != nil {
			return err
		}
	}
	return nil
}

// loadHiveKey reconstructs the in-memory tree below one catalog key.
func loadHiveKey(ctx context.Context, repo registry.Repository, key *models.RegistryKey) (*hiveTree, error) {
	h := hive.NewKey(key.Path, key.Isolation, key.Intermediate)

	values, err := repo.ListValues(ctx, key.ID)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		h.Values = append(h.Values, &hive.Value{
			Name:       v.Name,
			Kind:       v.Kind,
			Data:       v.Data,
			NameExpand: v.NameExpand,
			DataExpand: v.DataExpand,
		})
	}

	subkeys, err := repo.ListSubkeys(ctx, key.ID)
	if err != nil {
		return nil, err
	}
	for _, sub := range subkeys {
		child, err := loadHiveKey(ctx, repo, sub)
		if err != nil {
			return nil, err
		}
		h.Subkeys[lastSegment(sub.Path)] = child
	}
	return h, nil
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, `\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// WriteRegistry exports the project's registry capture back to its
// on-disk hive files, one per top-level subkey, each reconstructed under
// a fresh synthetic root. The rebuild flow passes markDirty=false so the
// export itself does not count as a content change.
func (s *Store) WriteRegistry(ctx context.Context, projectID int64, markDirty bool) error {
	p, err := s.repos.Projects(s.db).GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if p.RegistryID == nil {
		return nil
	}

	repo := s.repos.Registry(s.db)
	rootKey, err := repo.GetKey(ctx, *p.RegistryID)
	if err != nil {
		return err
	}
	root, err := loadHiveKey(ctx, repo, rootKey)
	if err != nil {
		return err
	}

	for _, name := range root.SubkeyNames() {
		out := hive.NewKey("", "", true)
		out.Subkeys[name] = root.Subkeys[name]

		var buf bytes.Buffer
		if err := hive.Write(&buf, out); err != nil {
			return err
		}
		err := s.writeProjectFile(ctx, projectID, name+".txt", &buf,
			writeOptions{internal: true, markDirty: markDirty})
		if err != nil {
			return err
		}
	}
	return nil
}

// CreateRegistryKey adds a key under an existing parent and marks the
// project dirty.
func (s *Store) CreateRegistryKey(ctx context.Context, projectID, parentID int64, path, isolation string) (int64, error) {
	p, err := s.repos.Projects(s.db).GetByID(ctx, projectID)
	if err != nil {
		return 0, err
	}

	var id int64
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Registry(tx)
		if _, err := repo.GetKey(ctx, parentID); err != nil {
			return err
		}
		id, err = repo.CreateKey(ctx, &models.RegistryKey{
			ParentID:  &parentID,
			Path:      path,
			Isolation: isolation,
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, s.markDirty(ctx, p)
}

// UpdateRegistryKey replaces a key's isolation mode and reconciles its
// value set: unchanged values keep their rows, changed ones are updated
// in place, and only genuine adds and drops touch other rows. A no-op
// edit therefore causes no catalog churn, but any real change marks the
// project dirty.
func (s *Store) UpdateRegistryKey(ctx context.Context, projectID, keyID int64, isolation string, values []*models.RegistryValue) error {
	p, err := s.repos.Projects(s.db).GetByID(ctx, projectID)
	if err != nil {
		return err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Registry(tx)
		key, err := repo.GetKey(ctx, keyID)
		if err != nil {
			return err
		}
		if key.Isolation != isolation || key.Intermediate {
			key.Isolation = isolation
			key.Intermediate = false
			if err := repo.UpdateKey(ctx, key); err != nil {
				return err
			}
		}
		return repo.ReplaceValues(ctx, keyID, values)
	})
	if err != nil {
		return err
	}
	return s.markDirty(ctx, p)
}

// GetRegistryKeyFromPath resolves a full backslash-separated key path by
// descending segment by segment from the project's registry root. Every
// level must match exactly, including letter case, and the resolved
// key's full path must equal the query, so a deeper key can never
// satisfy a prefix of itself.
func (s *Store) GetRegistryKeyFromPath(ctx context.Context, projectID int64, path string) (*models.RegistryKey, error) {
	p, err := s.repos.Projects(s.db).GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.RegistryID == nil {
		return nil, common.ErrorNotFound
	}

	repo := s.repos.Registry(s.db)
	segments := strings.Split(path, `\`)
	currentID := *p.RegistryID
	var key *models.RegistryKey
	for i := range segments {
		prefix := strings.Join(segments[:i+1], `\`)
		key, err = repo.GetChildByPath(ctx, currentID, prefix)
		if err != nil {
			return nil, err
		}
		currentID = key.ID
	}
	if key.Path != path {
		return nil, common.ErrorNotFound
	}
	return key, nil
}

// GetRegistryValues lists a key's values.
func (s *Store) GetRegistryValues(ctx context.Context, keyID int64) ([]*models.RegistryValue, error) {
	return s.repos.Registry(s.db).ListValues(ctx, keyID)
}

// DataKind selects the catalog entity targeted by DeleteProjectData.
type DataKind string

const (
	DataFile          DataKind = "file"
	DataRegistryKey   DataKind = "registrykey"
	DataRegistryValue DataKind = "registryvalue"
)

// DeleteProjectData removes one catalog entity of the project and marks
// it dirty. File deletion goes through the full file protocol; registry
// deletions are row operations (key rows cascade to their subtree). The
// registry root itself cannot be removed.
func (s *Store) DeleteProjectData(ctx context.Context, projectID int64, kind DataKind, id int64) error {
	switch kind {
	case DataFile:
		return s.DeleteFile(ctx, projectID, id)
	case DataRegistryKey:
		p, err := s.repos.Projects(s.db).GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if p.RegistryID != nil && *p.RegistryID == id {
			return fmt.Errorf("registry root: %w", ErrRestrictedPath)
		}
		if err := s.repos.Registry(s.db).DeleteKey(ctx, id); err != nil {
			return err
		}
		return s.markDirty(ctx, p)
	case DataRegistryValue:
		p, err := s.repos.Projects(s.db).GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if err := s.repos.Registry(s.db).DeleteValue(ctx, id); err != nil {
			return err
		}
		return s.markDirty(ctx, p)
	default:
		return fmt.Errorf("unknown data kind %q", kind)
	}
}
