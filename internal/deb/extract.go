package deb

import (
	"archive/tar"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/cruciblehq/offstage/internal/rootfs"
)

// Checks every regular file of the data archive against md5sums.
//
// The archive is fully decompressed, so truncated or corrupt members are
// detected too. Every md5sums entry must correspond to a regular file in
// the archive.
func (p *Package) Verify() error {
	seen := make(map[string]bool, len(p.MD5Sums))

	err := p.walkData(func(hdr *tar.Header, r io.Reader) error {
		if hdr.Typeflag != tar.TypeReg {
			return nil
		}
		name := cleanPath(hdr.Name)
		h := md5.New()
		if _, err := io.Copy(h, r); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
		}
		want, ok := p.MD5Sums[name]
		if !ok {
			return nil
		}
		seen[name] = true
		if got := hex.EncodeToString(h.Sum(nil)); got != want {
			return fmt.Errorf("%w: /%s: got %s, want %s", ErrChecksum, name, got, want)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, name := range p.md5Paths() {
		if !seen[name] {
			return fmt.Errorf("%w: /%s listed in md5sums but not shipped", ErrChecksum, name)
		}
	}
	return nil
}

// Unpacks the data archive into root.
//
// Returns the installed paths in archive order, formatted like dpkg's
// .list files ("/." first, absolute paths without trailing slashes).
func (p *Package) Extract(root *rootfs.Root) ([]string, error) {
	files := []string{"/."}

	err := p.walkData(func(hdr *tar.Header, r io.Reader) error {
		name := cleanPath(hdr.Name)
		if name == "" || name == "." {
			return nil
		}

		entry := rootfs.Entry{
			Path:    "/" + name,
			Mode:    fs.FileMode(hdr.Mode).Perm(),
			ModTime: hdr.ModTime,
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			entry.Type = rootfs.TypeDir
		case tar.TypeReg:
			entry.Type = rootfs.TypeFile
		case tar.TypeSymlink:
			entry.Type = rootfs.TypeSymlink
			entry.Linkname = hdr.Linkname
		case tar.TypeLink:
			entry.Type = rootfs.TypeHardlink
			entry.Linkname = "/" + cleanPath(hdr.Linkname)
		default:
			slog.Debug("skipping special file", "package", p.Name, "path", entry.Path, "type", string(hdr.Typeflag))
			return nil
		}

		if err := root.WriteEntry(entry, r); err != nil {
			return err
		}
		files = append(files, entry.Path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Calls fn for every entry of the data archive.
func (p *Package) walkData(fn func(*tar.Header, io.Reader) error) error {
	data, err := p.openData()
	if err != nil {
		return err
	}
	defer data.Close()

	tr := tar.NewReader(data)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: data archive: %v", ErrMalformed, err)
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}
