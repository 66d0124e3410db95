package project

import (
	"fmt"
	"path"
	"strings"
)

// Fixed names of a project's on-disk layout.
const (
	DescriptorFileName = "Package.ini"
	BuildScriptName    = "build.bat"
	AttributesFileName = "##Attributes.ini"
	BinDirName         = "bin"
	SupportDirName     = "Support"
	buildLogName       = "Build.log"
)

// HiveFileNames are the per-hive capture files found at a project's root,
// one per supported top-level registry hive.
var HiveFileNames = []string{
	"HKEY_CLASSES_ROOT.txt",
	"HKEY_CURRENT_USER.txt",
	"HKEY_LOCAL_MACHINE.txt",
	"HKEY_USERS.txt",
	"HKEY_CURRENT_CONFIG.txt",
}

// requiredImportFiles must all exist next to the descriptor for a scanned
// directory to be importable.
var requiredImportFiles = []string{
	BuildScriptName,
	"HKEY_CURRENT_USER.txt",
	"HKEY_LOCAL_MACHINE.txt",
	"HKEY_USERS.txt",
}

// restrictedRootNames may only be written or deleted by internal callers,
// and only matter at the project root.
var restrictedRootNames = func() map[string]bool {
	m := map[string]bool{
		DescriptorFileName: true,
		BuildScriptName:    true,
	}
	for _, h := range HiveFileNames {
		m[h] = true
	}
	return m
}()

// Subdir derives a project's immutable subdirectory name from its id.
func Subdir(id int64) string {
	return fmt.Sprintf("project-%d", id)
}

// restrictedPath reports whether relPath is off limits to external
// callers. The attributes file is restricted at any depth; the descriptor,
// build script, and hive files only at the root.
func restrictedPath(relPath string) bool {
	base := path.Base(relPath)
	if strings.EqualFold(base, AttributesFileName) {
		return true
	}
	if !strings.Contains(relPath, "/") {
		return restrictedRootNames[base]
	}
	return false
}

// cleanProjectPath normalizes a client-supplied relative path and rejects
// anything that would escape the project root. Both slash styles are
// accepted; the result uses forward slashes.
func cleanProjectPath(p string) (string, error) {
	p = strings.ReplaceAll(p, `\`, "/")
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%q: %w", p, ErrPathOutsideProject)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%q: %w", p, ErrPathOutsideProject)
	}
	return cleaned, nil
}
