// Package models defines the catalog entities shared by the repositories
// and services: datastores, projects, file-tree nodes, registry keys and
// values, and deliverable file records.
package models

import (
	"fmt"
	"regexp"
)

// Datastore statuses.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Project lifecycle states. A project is in exactly one of these at all
// times.
const (
	StateCreated    = "created"
	StateAvailable  = "available"
	StateDirty      = "dirty"
	StateRebuilding = "rebuilding"
	StateDeleting   = "deleting"
	StateDeleted    = "deleted"
)

// ProjectStates lists every valid lifecycle state.
var ProjectStates = []string{
	StateCreated, StateAvailable, StateDirty,
	StateRebuilding, StateDeleting, StateDeleted,
}

// Registry key isolation modes.
const (
	IsolationFull      = "full"
	IsolationMerged    = "merged"
	IsolationWriteCopy = "writecopy"
	IsolationSbOnly    = "sb_only"
)

// Registry value kinds.
const (
	RegNone                     = "REG_NONE"
	RegSz                       = "REG_SZ"
	RegExpandSz                 = "REG_EXPAND_SZ"
	RegBinary                   = "REG_BINARY"
	RegDword                    = "REG_DWORD"
	RegDwordBigEndian           = "REG_DWORD_BIG_ENDIAN"
	RegLink                     = "REG_LINK"
	RegMultiSz                  = "REG_MULTI_SZ"
	RegResourceList             = "REG_RESOURCE_LIST"
	RegFullResourceDescriptor   = "REG_FULL_RESOURCE_DESCRIPTOR"
	RegResourceRequirementsList = "REG_RESOURCE_REQUIREMENTS_LIST"
	RegQword                    = "REG_QWORD"
)

// RegistryKinds lists every supported registry value kind.
var RegistryKinds = []string{
	RegNone, RegSz, RegExpandSz, RegBinary, RegDword, RegDwordBigEndian,
	RegLink, RegMultiSz, RegResourceList, RegFullResourceDescriptor,
	RegResourceRequirementsList, RegQword,
}

// Share carries the connection details of an SMB share. It is a plain data
// object detached from the catalog; leases snapshot one of these.
type Share struct {
	Name      string
	LocalPath string
	UNCPath   string
	Domain    string
	Username  string
	Password  string
	BaseURL   string
}

// FullUsername returns domain\username when the domain is set, otherwise
// just the username.
func (s *Share) FullUsername() string {
	if s.Domain != "" {
		return s.Domain + `\` + s.Username
	}
	return s.Username
}

var serverRe = regexp.MustCompile(`^\\\\([^\\]+)\\(.*)$`)

// Datastore is a named, leasable storage location backed by a network
// share or local path. LocalPath is set only while the datastore is
// online.
type Datastore struct {
	ID        int64
	Name      string
	Domain    string
	Username  string
	Password  string
	LocalPath string
	Server    string
	Share     string
	Status    string
	BaseURL   string
}

// DatastoreFromShare builds a catalog row from share connection details.
// The UNC path, when present, must be in \\server\share form.
func DatastoreFromShare(share *Share) (*Datastore, error) {
	ds := &Datastore{
		Name:      share.Name,
		Domain:    share.Domain,
		Username:  share.Username,
		Password:  share.Password,
		LocalPath: share.LocalPath,
		BaseURL:   share.BaseURL,
		Status:    StatusOffline,
	}

	// The internal share doesn't have a UNC path so it's optional.
	if share.UNCPath != "" {
		m := serverRe.FindStringSubmatch(share.UNCPath)
		if m == nil {
			return nil, fmt.Errorf("malformed UNC path %q", share.UNCPath)
		}
		ds.Server, ds.Share = m[1], m[2]
	}

	return ds, nil
}

// AsShare converts the datastore row back into detached share details.
func (d *Datastore) AsShare() *Share {
	unc := ""
	if d.Server != "" {
		unc = `\\` + d.Server + `\` + d.Share
	}
	return &Share{
		Name:      d.Name,
		LocalPath: d.LocalPath,
		UNCPath:   unc,
		Domain:    d.Domain,
		Username:  d.Username,
		Password:  d.Password,
		BaseURL:   d.BaseURL,
	}
}

// Project is a captured application package tracked through an explicit
// lifecycle. RegistryID and DirectoryID are nil only while the project is
// in the created state.
type Project struct {
	ID          int64
	RuntimeID   int64
	Subdir      string
	State       string
	Icon        []byte
	DatastoreID int64
	RegistryID  *int64
	DirectoryID *int64
}

// ProjectFile records a deliverable produced under a project's bin/
// directory: its path relative to the datastore root and its size in
// bytes.
type ProjectFile struct {
	ProjectID int64
	Path      string
	Size      int64
}

// FileNode mirrors one real file or directory of a project. RootID is
// denormalized so that "which tree does this node belong to" is a single
// column read; it is nil for the root node itself.
type FileNode struct {
	ID          int64
	ParentID    *int64
	RootID      *int64
	Path        string
	IsDirectory bool
	Hidden      bool
}

// RegistryKey is one key of a project's registry capture. The synthetic
// root key has an empty path, no isolation and no parent. Intermediate
// keys exist only to connect a deeper key and are not exported unless
// they acquire values.
type RegistryKey struct {
	ID           int64
	ParentID     *int64
	Path         string
	Isolation    string
	Intermediate bool
}

// RegistryValue is one value of a registry key. Name is nil for the
// default value. NameExpand/DataExpand mark variables to be expanded at
// consumption time.
type RegistryValue struct {
	ID         int64
	KeyID      int64
	Name       *string
	Kind       string
	Data       string
	NameExpand bool
	DataExpand bool
}
