package datastore

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/packfactory/packfactory/internal/models"
)

// Mounter attaches and detaches datastore shares. The local mount path is
// derived from the datastore id so it is predictable across restarts.
type Mounter interface {
	// Mount attaches the share and returns the local mount path.
	Mount(ctx context.Context, ds *models.Datastore) (string, error)

	// Unmount detaches the share. A nonzero helper exit is returned as an
	// error; callers going offline treat it as "probably already
	// detached".
	Unmount(ctx context.Context, ds *models.Datastore) error
}

// ExecMounter shells out to the cifsmount/cifsumount helpers.
type ExecMounter struct {
	// BinDir is the directory holding the helper binaries.
	BinDir string

	// MountRoot is the directory under which shares are attached, one
	// subdirectory per datastore id.
	MountRoot string
}

func (m *ExecMounter) localPath(id int64) string {
	return filepath.Join(m.MountRoot, strconv.FormatInt(id, 10))
}

func (m *ExecMounter) Mount(ctx context.Context, ds *models.Datastore) (string, error) {
	unc := `\\` + ds.Server + `\` + ds.Share
	args := []string{
		"--datastore", strconv.FormatInt(ds.ID, 10),
		"--unc", unc,
		"--username", ds.Username,
		"--password", ds.Password,
	}
	if ds.Domain != "" {
		args = append(args, "--domain", ds.Domain)
	}

	cmd := exec.CommandContext(ctx, filepath.Join(m.BinDir, "cifsmount"), args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("cifsmount %q: %w: %s", ds.Name, err, out)
	}
	return m.localPath(ds.ID), nil
}

func (m *ExecMounter) Unmount(ctx context.Context, ds *models.Datastore) error {
	cmd := exec.CommandContext(ctx, filepath.Join(m.BinDir, "cifsumount"),
		"--datastore", strconv.FormatInt(ds.ID, 10))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("cifsumount %q: %w: %s", ds.Name, err, out)
	}
	return nil
}
