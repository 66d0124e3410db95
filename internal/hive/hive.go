// Package hive implements the text format used to capture registry hives
// on disk. Each hive is serialized to one file; a file is a sequence of
// key lines, each followed by the key's value lines:
//
//	isolation writecopy HKEY_LOCAL_MACHINE\SOFTWARE\Vendor
//	  REG_SZ "InstallDir" "C:\\Program Files\\Vendor" expand-data
//	  REG_DWORD @ "1"
//
// A key line carries the key's isolation mode ("-" for intermediate keys
// that were only created on the way to a deeper key) and its full
// backslash-separated path. Value lines are indented two spaces and carry
// the value kind, the quoted value name ("@" for the default value), the
// quoted data, and optional expand-name/expand-data flags. The format
// round-trips exactly.
package hive

import "sort"

// Value is one value of a key. Name is nil for the default value.
type Value struct {
	Name       *string
	Kind       string
	Data       string
	NameExpand bool
	DataExpand bool
}

// Key is a node of an in-memory hive tree. Path is the full
// backslash-separated path; the synthetic root has an empty path, no
// isolation and no parent semantics.
type Key struct {
	Path         string
	Isolation    string
	Intermediate bool
	Values       []*Value
	Subkeys      map[string]*Key
}

// NewKey returns a key with an empty subkey table.
func NewKey(path, isolation string, intermediate bool) *Key {
	return &Key{
		Path:         path,
		Isolation:    isolation,
		Intermediate: intermediate,
		Subkeys:      make(map[string]*Key),
	}
}

// SubkeyNames returns the key's child segment names in sorted order, so
// that traversal and export are deterministic.
func (k *Key) SubkeyNames() []string {
	names := make([]string, 0, len(k.Subkeys))
	for name := range k.Subkeys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sortedValues orders values with the default value first, then by name.
func sortedValues(values []*Value) []*Value {
	out := make([]*Value, len(values))
	copy(out, values)
	sort.SliceStable(out, func(i, j int) bool {
		ni, nj := out[i].Name, out[j].Name
		if ni == nil {
			return nj != nil
		}
		if nj == nil {
			return false
		}
		return *ni < *nj
	})
	return out
}
