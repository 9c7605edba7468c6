package finalize

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cruciblehq/offstage/internal/fault"
	"github.com/cruciblehq/offstage/internal/paths"
	"github.com/cruciblehq/offstage/internal/rootfs"
)

// Controls [CopyTree].
type CopyOptions struct {
	SkipCaches bool // Leave out __pycache__ directories and .pyc files.
}

// Copies the host directory src to dest inside root.
//
// Regular files keep their mode and modification time, symlinks are
// recreated as-is and special files are skipped. Returns the number of
// entries written. Errors wrap [fault.ErrFileSystem].
func CopyTree(ctx context.Context, root *rootfs.Root, src, dest string, opts CopyOptions) (int, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, fault.Wrap(fault.ErrFileSystem, err)
	}
	if !info.IsDir() {
		return 0, fault.Wrapf(fault.ErrFileSystem, "%w: %s is not a directory", ErrSource, src)
	}

	n := 0
	err = filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if opts.SkipCaches && isCache(d) {
			slog.Debug("skipping compiled cache", "path", p)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		entry := rootfs.Entry{
			Path:    path.Join(dest, filepath.ToSlash(rel)),
			Mode:    fi.Mode().Perm(),
			ModTime: fi.ModTime(),
		}

		switch {
		case fi.IsDir():
			entry.Type = rootfs.TypeDir
			err = root.WriteEntry(entry, nil)
		case fi.Mode().IsRegular():
			entry.Type = rootfs.TypeFile
			err = copyFile(root, entry, p)
		case fi.Mode()&fs.ModeSymlink != 0:
			entry.Type = rootfs.TypeSymlink
			if entry.Linkname, err = os.Readlink(p); err == nil {
				err = root.WriteEntry(entry, nil)
			}
		default:
			slog.Debug("skipping special file", "path", p, "mode", fi.Mode().String())
			return nil
		}
		if err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return n, err
		}
		return n, fault.Wrap(fault.ErrFileSystem, err)
	}

	slog.Info("copied application tree", "src", src, "dest", dest, "entries", n)
	return n, nil
}

func copyFile(root *rootfs.Root, entry rootfs.Entry, hostPath string) error {
	f, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return root.WriteEntry(entry, f)
}

// Reports whether the entry is an interpreter bytecode cache.
func isCache(d fs.DirEntry) bool {
	if d.IsDir() {
		return d.Name() == "__pycache__"
	}
	return strings.HasSuffix(d.Name(), ".pyc")
}

// Copies the running executable to [paths.SelfBinary] inside root so the
// image can start the launcher.
func InstallSelf(root *rootfs.Root) error {
	exe, err := os.Executable()
	if err != nil {
		return fault.Wrap(fault.ErrFileSystem, err)
	}
	return installBinary(root, exe)
}

func installBinary(root *rootfs.Root, exe string) error {
	f, err := os.Open(exe)
	if err != nil {
		return fault.Wrap(fault.ErrFileSystem, err)
	}
	defer f.Close()

	target, err := root.Path(paths.SelfBinary)
	if err != nil {
		return fault.Wrap(fault.ErrFileSystem, err)
	}
	if same, _ := sameFile(exe, target); same {
		slog.Debug("launcher binary already in place", "path", paths.SelfBinary)
		return nil
	}

	if err := root.WriteEntry(rootfs.Entry{Path: paths.SelfBinary, Type: rootfs.TypeFile, Mode: 0755}, f); err != nil {
		return err
	}
	slog.Info("installed launcher binary", "path", paths.SelfBinary)
	return nil
}

// Reports whether a and b name the same file.
func sameFile(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(ai, bi), nil
}
