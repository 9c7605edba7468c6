package rootfs

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/cruciblehq/offstage/internal/fault"
	"github.com/cruciblehq/offstage/internal/paths"
)

// Kind of filesystem entry written by [Root.WriteEntry].
type EntryType int

const (
	TypeFile EntryType = iota
	TypeDir
	TypeSymlink
	TypeHardlink
)

// A single filesystem entry extracted from an archive.
type Entry struct {
	Path     string      // Slash-separated path relative to the root.
	Type     EntryType   // Kind of entry.
	Mode     fs.FileMode // Permission bits.
	Linkname string      // Symlink target, or root-relative hardlink source.
	ModTime  time.Time   // Modification time applied to files. Zero keeps the current time.
}

// The runtime filesystem being assembled.
type Root struct {
	dir string
}

// Opens the root at dir, creating it if necessary.
func New(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fault.Wrap(fault.ErrFileSystem, err)
	}
	if err := os.MkdirAll(abs, paths.DefaultDirMode); err != nil {
		return nil, fault.Wrap(fault.ErrFileSystem, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fault.Wrap(fault.ErrFileSystem, err)
	}
	if !info.IsDir() {
		return nil, fault.Wrapf(fault.ErrFileSystem, "%s: %w", abs, ErrNotDirectory)
	}
	return &Root{dir: abs}, nil
}

// Returns the absolute host path of the root directory.
func (r *Root) Dir() string {
	return r.dir
}

// Resolves p to a host path inside the root, following symlinks within the
// tree.
func (r *Root) Path(p string) (string, error) {
	return securejoin.SecureJoin(r.dir, p)
}

// Resolves the parent of p inside the root and appends the final component
// unresolved, so the entry itself (possibly a symlink) can be replaced.
func (r *Root) leaf(p string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(p))
	parent, err := securejoin.SecureJoin(r.dir, path.Dir(clean))
	if err != nil {
		return "", err
	}
	return filepath.Join(parent, path.Base(clean)), nil
}

// Creates a directory and its parents inside the root.
func (r *Root) MkdirAll(p string, mode fs.FileMode) error {
	full, err := r.Path(p)
	if err != nil {
		return fault.Wrap(fault.ErrFileSystem, err)
	}
	if err := os.MkdirAll(full, mode); err != nil {
		return fault.Wrap(fault.ErrFileSystem, err)
	}
	return nil
}

// Reads a file inside the root.
func (r *Root) ReadFile(p string) ([]byte, error) {
	full, err := r.Path(p)
	if err != nil {
		return nil, fault.Wrap(fault.ErrFileSystem, err)
	}
	return os.ReadFile(full)
}

// Reports whether p exists inside the root.
func (r *Root) Exists(p string) bool {
	full, err := r.leaf(p)
	if err != nil {
		return false
	}
	_, err = os.Lstat(full)
	return err == nil
}

// Returns file info for p without following a final symlink.
func (r *Root) Lstat(p string) (fs.FileInfo, error) {
	full, err := r.leaf(p)
	if err != nil {
		return nil, fault.Wrap(fault.ErrFileSystem, err)
	}
	return os.Lstat(full)
}

// Writes data to p atomically, creating parent directories.
//
// The content is written to a temporary sibling and renamed into place, so
// readers never observe a partially written database file.
func (r *Root) WriteFile(p string, data []byte, mode fs.FileMode) error {
	full, err := r.leaf(p)
	if err != nil {
		return fault.Wrap(fault.ErrFileSystem, err)
	}
	if err := os.MkdirAll(filepath.Dir(full), paths.DefaultDirMode); err != nil {
		return fault.Wrap(fault.ErrFileSystem, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), "."+filepath.Base(full)+".tmp-*")
	if err != nil {
		return fault.Wrap(fault.ErrFileSystem, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fault.Wrap(fault.ErrFileSystem, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fault.Wrap(fault.ErrFileSystem, err)
	}
	if err := tmp.Close(); err != nil {
		return fault.Wrap(fault.ErrFileSystem, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return fault.Wrap(fault.ErrFileSystem, err)
	}
	return nil
}

// Removes a file, symlink or empty directory. Missing entries are ignored.
func (r *Root) Remove(p string) error {
	full, err := r.leaf(p)
	if err != nil {
		return fault.Wrap(fault.ErrFileSystem, err)
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fault.Wrap(fault.ErrFileSystem, err)
	}
	return nil
}

// Materializes a single archive entry inside the root.
//
// Parent directories are created as needed. An existing non-directory entry
// at the same path is replaced; an existing directory is kept and only its
// mode is updated. Regular file content is read from body.
func (r *Root) WriteEntry(e Entry, body io.Reader) error {
	full, err := r.leaf(e.Path)
	if err != nil {
		return fault.Wrap(fault.ErrFileSystem, err)
	}
	if full == r.dir {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(full), paths.DefaultDirMode); err != nil {
		return fault.Wrap(fault.ErrFileSystem, err)
	}

	switch e.Type {
	case TypeDir:
		err = writeDir(full, e.Mode)
	case TypeFile:
		err = writeFile(full, e, body)
	case TypeSymlink:
		err = replace(full, func() error { return os.Symlink(e.Linkname, full) })
	case TypeHardlink:
		var src string
		if src, err = r.Path(e.Linkname); err == nil {
			err = replace(full, func() error { return os.Link(src, full) })
		}
	default:
		err = fault.Wrapf(ErrUnsupportedEntry, "%s", e.Path)
	}
	if err != nil {
		return fault.Wrap(fault.ErrFileSystem, err)
	}
	return nil
}

// Creates a directory or updates the mode of an existing one.
func writeDir(full string, mode fs.FileMode) error {
	info, err := os.Lstat(full)
	if err == nil && info.IsDir() {
		return os.Chmod(full, mode.Perm()|0700)
	}
	if err == nil {
		if err := os.Remove(full); err != nil {
			return err
		}
	}
	return os.MkdirAll(full, mode.Perm()|0700)
}

// Writes a regular file, replacing whatever non-directory is at full.
func writeFile(full string, e Entry, body io.Reader) error {
	if body == nil {
		body = bytes.NewReader(nil)
	}
	err := replace(full, func() error {
		f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, e.Mode.Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, body); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if err != nil {
		return err
	}
	if err := os.Chmod(full, e.Mode.Perm()); err != nil {
		return err
	}
	if !e.ModTime.IsZero() {
		return os.Chtimes(full, e.ModTime, e.ModTime)
	}
	return nil
}

// Removes an existing non-directory entry before calling create.
func replace(full string, create func() error) error {
	if info, err := os.Lstat(full); err == nil {
		if info.IsDir() {
			return &fs.PathError{Op: "replace", Path: full, Err: fs.ErrExist}
		}
		if err := os.Remove(full); err != nil {
			return err
		}
	}
	return create()
}
