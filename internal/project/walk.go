package project

import (
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/packfactory/packfactory/internal/models"
)

// walkEntry is one catalog-bound filesystem entry, in parents-first order.
type walkEntry struct {
	relPath string
	isDir   bool
	hidden  bool
}

// walkProjectDir walks a project directory and splits its contents into
// catalog entries and deliverable records. bin/ and Support/ never enter
// the file tree: Support/ is scratch space, and bin/ holds the build
// output, which is instead recorded as deliverable paths with sizes.
// Restricted files (attributes, descriptor, build script, hive
// captures) enter the tree hidden.
func walkProjectDir(dir, subdir string) ([]walkEntry, []*models.ProjectFile, error) {
	var entries []walkEntry
	var deliverables []*models.ProjectFile

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		top, _, _ := strings.Cut(rel, "/")
		switch top {
		case SupportDirName:
			if d.IsDir() && rel == top {
				return filepath.SkipDir
			}
			return nil
		case BinDirName:
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			deliverables = append(deliverables, &models.ProjectFile{
				Path: subdir + "/" + rel,
				Size: info.Size(),
			})
			return nil
		}

		// Internally managed files (attributes, descriptor, build script,
		// hive captures) register hidden, as they are not client content.
		entries = append(entries, walkEntry{
			relPath: rel,
			isDir:   d.IsDir(),
			hidden:  restrictedPath(rel),
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return entries, deliverables, nil
}

// parentPath returns the catalog path of an entry's parent, "" for
// entries at the project root.
func parentPath(relPath string) string {
	dir := path.Dir(relPath)
	if dir == "." {
		return ""
	}
	return dir
}
