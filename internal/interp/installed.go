package interp

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/cruciblehq/offstage/internal/fault"
	"github.com/cruciblehq/offstage/internal/rootfs"
	"github.com/cruciblehq/offstage/internal/wheel"
)

// A distribution already present in site-packages.
type Installed struct {
	Name     string // Escaped name from the .dist-info directory.
	Version  string // Version from the .dist-info directory.
	DistInfo string // Directory name, e.g. "bar-1.0.dist-info".
}

// Lists the distributions installed in sitePackages inside root, keyed by
// normalized name. A missing directory yields an empty map.
func ScanInstalled(root *rootfs.Root, sitePackages string) (map[string]Installed, error) {
	out := make(map[string]Installed)

	dir, err := root.Path(sitePackages)
	if err != nil {
		return nil, fault.Wrap(fault.ErrFileSystem, err)
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.ErrFileSystem, err)
	}

	for _, e := range entries {
		stem, ok := strings.CutSuffix(e.Name(), ".dist-info")
		if !ok || !e.IsDir() {
			continue
		}
		name, ver, ok := strings.Cut(stem, "-")
		if !ok {
			continue
		}
		out[wheel.Normalize(name)] = Installed{Name: name, Version: ver, DistInfo: e.Name()}
	}
	return out, nil
}
