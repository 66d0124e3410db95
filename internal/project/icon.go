package project

import (
	"context"
	"fmt"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// IconExtractor pulls an icon group out of a Windows binary and writes
// the individual images as PNG files into a directory.
type IconExtractor interface {
	Extract(ctx context.Context, binary string, index int, destDir string) error
}

// ExecIconExtractor shells out to icotool from icoutils.
type ExecIconExtractor struct{}

func (e *ExecIconExtractor) Extract(ctx context.Context, binary string, index int, destDir string) error {
	cmd := execCommand(ctx, "icotool", "-x", "-i", strconv.Itoa(index), "-o", destDir, binary)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("icotool: %w: %s", err, out)
	}
	return nil
}

// preferredIconSizes are tried in order before falling back to the
// largest square image available.
var preferredIconSizes = []int{64, 48, 32}

// extractIcon attempts a best-effort icon for the project: the
// descriptor's InventoryIcon wins, then an uninstall DisplayIcon found in
// the freshly parsed registry capture. A nil result without error means
// no icon source was found.
func (s *Store) extractIcon(ctx context.Context, dir string, hiveRoot *hiveTree) ([]byte, error) {
	source, index := descriptorIcon(dir)
	if source == "" && hiveRoot != nil {
		source, index = displayIcon(dir, hiveRoot)
	}
	if source == "" {
		return nil, nil
	}

	tmp, err := os.MkdirTemp("", "icons-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	if err := s.icons.Extract(ctx, source, index, tmp); err != nil {
		return nil, err
	}
	return chooseIcon(tmp)
}

// descriptorIcon reads BuildOptions.InventoryIcon from the descriptor
// file. The value is "<path>[,<index>]"; paths containing unexpanded
// macros cannot be resolved locally and are skipped.
func descriptorIcon(dir string) (string, int) {
	cfg, err := ini.Load(filepath.Join(dir, DescriptorFileName))
	if err != nil {
		return "", 0
	}
	value := cfg.Section("BuildOptions").Key("InventoryIcon").String()
	if value == "" {
		return "", 0
	}
	p, index := splitIconRef(value)
	if p == "" || strings.Contains(p, "%") {
		return "", 0
	}
	full := filepath.Join(dir, filepath.FromSlash(strings.ReplaceAll(p, `\`, "/")))
	if _, err := os.Stat(full); err != nil {
		return "", 0
	}
	return full, index
}

// displayIcon hunts the capture for an uninstall DisplayIcon value and
// tries to locate the referenced binary somewhere under the project
// directory by base name, since the captured path is a guest path.
func displayIcon(dir string, root *hiveTree) (string, int) {
	var ref string
	var walk func(k *hiveTree)
	walk = func(k *hiveTree) {
		if ref != "" {
			return
		}
		if strings.Contains(k.Path, `\Uninstall\`) {
			for _, v := range k.Values {
				if v.Name != nil && strings.EqualFold(*v.Name, "DisplayIcon") && v.Data != "" {
					ref = v.Data
					return
				}
			}
		}
		for _, name := range k.SubkeyNames() {
			walk(k.Subkeys[name])
		}
	}
	walk(root)
	if ref == "" {
		return "", 0
	}

	p, index := splitIconRef(ref)
	base := p
	if i := strings.LastIndexAny(base, `\/`); i >= 0 {
		base = base[i+1:]
	}
	if base == "" {
		return "", 0
	}

	var found string
	_ = filepath.WalkDir(dir, func(wp string, d fs.DirEntry, err error) error {
		if err != nil || found != "" || d.IsDir() {
			return err
		}
		if strings.EqualFold(d.Name(), base) {
			found = wp
		}
		return nil
	})
	return found, index
}

// splitIconRef splits "path,index", tolerating a missing index and quotes.
func splitIconRef(ref string) (string, int) {
	ref = strings.Trim(ref, `"`)
	if i := strings.LastIndex(ref, ","); i >= 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(ref[i+1:])); err == nil {
			return strings.TrimSpace(ref[:i]), n
		}
	}
	return strings.TrimSpace(ref), 0
}

// chooseIcon picks the best extracted image: a square of a preferred
// size if present, otherwise the largest square.
func chooseIcon(dir string) ([]byte, error) {
	type candidate struct {
		path string
		size int
	}
	var squares []candidate

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".png") {
			continue
		}
		p := filepath.Join(dir, e.Name())
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		cfg, err := png.DecodeConfig(f)
		f.Close()
		if err != nil || cfg.Width != cfg.Height {
			continue
		}
		squares = append(squares, candidate{path: p, size: cfg.Width})
	}
	if len(squares) == 0 {
		return nil, fmt.Errorf("no square icon images extracted")
	}

	best := squares[0]
	for _, want := range preferredIconSizes {
		for _, c := range squares {
			if c.size == want {
				return os.ReadFile(c.path)
			}
		}
	}
	for _, c := range squares[1:] {
		if c.size > best.size {
			best = c
		}
	}
	return os.ReadFile(best.path)
}
