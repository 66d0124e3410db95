package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/packfactory/packfactory/internal/common"
	"github.com/packfactory/packfactory/internal/models"
)

// execCommand is a seam for tests that stub external tools.
var execCommand = exec.CommandContext

// BuildTool turns a project directory into deliverables under bin/.
// Failure is a nonzero exit; some failures additionally leave marker
// files behind, which the caller checks separately.
type BuildTool interface {
	Build(ctx context.Context, projectDir, runtimeDir string) error
}

// ExecBuildTool runs the project's build script with the runtime
// directory as its argument.
type ExecBuildTool struct{}

func (b *ExecBuildTool) Build(ctx context.Context, projectDir, runtimeDir string) error {
	cmd := execCommand(ctx, filepath.Join(projectDir, BuildScriptName), runtimeDir)
	cmd.Dir = projectDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("build script: %w: %s", err, out)
	}
	return nil
}

// runtimeFiles must exist in the runtime directory before a build is
// attempted.
var runtimeFiles = []string{"vregtool.exe", "vftool.exe", "tlink.exe"}

// buildMarkerGlob matches intermediate files the build tool leaves in
// bin/ when it fails despite a zero exit.
const buildMarkerGlob = "package.ro.tvr*"

// processRebuild is the rebuild queue handler. Failures are absorbed into
// the dirty state since the requester has long returned; only a handler
// panic would restart the loop.
func (s *Store) processRebuild(ctx context.Context, id int64) error {
	repo := s.repos.Projects(s.db)
	p, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "rebuild for unknown project", "project", id)
			return nil
		}
		return err
	}

	fail := func(reason string, cause error) error {
		s.logger.Error(ctx, "rebuild failed", "project", id, "reason", reason, "error", cause)
		if err := repo.SetState(ctx, id, models.StateDirty); err != nil {
			s.logger.Error(ctx, "state update failed", "project", id, "error", err)
		}
		return nil
	}

	// Export the modeled registry over the hive files the build consumes.
	// This is not a content change, so the dirty flag stays untouched.
	if err := s.WriteRegistry(ctx, id, false); err != nil {
		return fail("registry export", err)
	}

	lease, err := s.registry.Acquire(ctx, p.DatastoreID)
	if err != nil {
		return fail("lease", err)
	}
	defer s.releaseLease(ctx, lease)

	dir := projectDir(lease, p)
	bin := filepath.Join(dir, BinDirName)
	if err := os.RemoveAll(bin); err != nil {
		return fail("clearing bin", err)
	}
	if err := os.MkdirAll(bin, 0o755); err != nil {
		return fail("clearing bin", err)
	}

	runtimeDir := filepath.Join(s.runtimesRoot, strconv.FormatInt(p.RuntimeID, 10))
	for _, name := range runtimeFiles {
		if _, err := os.Stat(filepath.Join(runtimeDir, name)); err != nil {
			return fail("runtime check", fmt.Errorf("missing %s: %w", name, err))
		}
	}

	if err := s.builder.Build(ctx, dir, runtimeDir); err != nil {
		return fail("build tool", err)
	}
	if markers, _ := filepath.Glob(filepath.Join(bin, buildMarkerGlob)); len(markers) > 0 {
		return fail("leftover markers", fmt.Errorf("%d marker files in bin", len(markers)))
	}

	// Success: re-derive the tree and the deliverable list, which leaves
	// the project available. The ungated refresh path is used so the
	// project never shows dirty between build and refresh.
	if err := s.refresh(ctx, p); err != nil {
		return fail("post-build refresh", err)
	}
	s.logger.Info(ctx, "rebuild finished", "project", id)
	return nil
}
