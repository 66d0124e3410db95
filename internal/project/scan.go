package project

import (
	"io/fs"
	"os"
	"path/filepath"
)

// ScanProjectDirs inspects a datastore root for importable project
// directories. A directory containing the descriptor file is a candidate;
// candidates missing any required companion file are reported in the
// invalid map keyed by directory name, with the names of the missing
// files.
func ScanProjectDirs(root string) (valid []string, invalid map[string][]string, err error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, err
	}

	invalid = make(map[string][]string)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, DescriptorFileName)); err != nil {
			continue
		}
		if missing := CheckRequiredProjectFiles(dir); len(missing) > 0 {
			invalid[e.Name()] = missing
			continue
		}
		valid = append(valid, e.Name())
	}
	return valid, invalid, nil
}

// CheckRequiredProjectFiles returns the required import files absent from
// dir, in their canonical order.
func CheckRequiredProjectFiles(dir string) []string {
	var missing []string
	for _, name := range requiredImportFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// FixPermissions makes every file under root readable and writable
// (0644, directories 0755). Some external build tools leave read-only
// files behind, which would otherwise break deletion. Symlinks are
// skipped.
func FixPermissions(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		mode := os.FileMode(0o644)
		if d.IsDir() {
			mode = 0o755
		}
		return os.Chmod(p, mode)
	})
}
