package testutil

import (
	"archive/tar"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/blakesmith/ar"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Timestamp stamped on every archive entry.
var Epoch = time.Unix(1700000000, 0).UTC()

// Describes a Debian binary package to build.
type Deb struct {
	Name        string            // Package name.
	Version     string            // Package version.
	Arch        string            // Architecture, defaults to "all".
	Depends     string            // Raw Depends field.
	PreDepends  string            // Raw Pre-Depends field.
	Provides    string            // Raw Provides field.
	Files       map[string]string // File contents by absolute path.
	Symlinks    map[string]string // Symlink targets by absolute path.
	Scripts     map[string]string // Maintainer scripts by name (e.g. "postinst").
	Compression string            // "gz" (default), "xz", "zst" or "none".
	BadMD5      string            // Path whose md5sums entry is corrupted.
}

// Writes the package to dir as <name>_<version>_<arch>.deb and returns its
// path.
func WriteDeb(t testing.TB, dir string, d Deb) string {
	t.Helper()

	if d.Arch == "" {
		d.Arch = "all"
	}
	if d.Compression == "" {
		d.Compression = "gz"
	}

	data, md5sums := buildData(t, d)
	control := buildControl(t, d, md5sums)

	var buf bytes.Buffer
	w := ar.NewWriter(&buf)
	must(t, w.WriteGlobalHeader())
	writeMember(t, w, "debian-binary", []byte("2.0\n"))
	writeMember(t, w, "control.tar.gz", control)
	name := "data.tar"
	if d.Compression != "none" {
		name += "." + d.Compression
	}
	writeMember(t, w, name, compress(t, d.Compression, data))

	p := filepath.Join(dir, fmt.Sprintf("%s_%s_%s.deb", d.Name, d.Version, d.Arch))
	must(t, os.WriteFile(p, buf.Bytes(), 0644))
	return p
}

// Builds the uncompressed data tar and the md5sums body.
func buildData(t testing.TB, d Deb) ([]byte, string) {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	dirs := map[string]bool{}
	var md5sums bytes.Buffer

	addDirs := func(p string) {
		var parents []string
		for dir := path.Dir(p); dir != "/" && !dirs[dir]; dir = path.Dir(dir) {
			parents = append(parents, dir)
			dirs[dir] = true
		}
		for i := len(parents) - 1; i >= 0; i-- {
			must(t, tw.WriteHeader(&tar.Header{
				Name: "." + parents[i] + "/", Typeflag: tar.TypeDir, Mode: 0755, ModTime: Epoch,
			}))
		}
	}

	must(t, tw.WriteHeader(&tar.Header{Name: "./", Typeflag: tar.TypeDir, Mode: 0755, ModTime: Epoch}))
	for _, p := range sortedKeys(d.Files) {
		addDirs(p)
		body := []byte(d.Files[p])
		must(t, tw.WriteHeader(&tar.Header{
			Name: "." + p, Typeflag: tar.TypeReg, Mode: 0644, Size: int64(len(body)), ModTime: Epoch,
		}))
		_, err := tw.Write(body)
		must(t, err)

		sum := md5.Sum(body)
		hexSum := hex.EncodeToString(sum[:])
		if p == d.BadMD5 {
			hexSum = "00000000000000000000000000000000"
		}
		fmt.Fprintf(&md5sums, "%s  %s\n", hexSum, p[1:])
	}
	for _, p := range sortedKeys(d.Symlinks) {
		addDirs(p)
		must(t, tw.WriteHeader(&tar.Header{
			Name: "." + p, Typeflag: tar.TypeSymlink, Linkname: d.Symlinks[p], Mode: 0777, ModTime: Epoch,
		}))
	}
	must(t, tw.Close())
	return buf.Bytes(), md5sums.String()
}

// Builds the gzip-compressed control archive.
func buildControl(t testing.TB, d Deb, md5sums string) []byte {
	t.Helper()

	var control bytes.Buffer
	fmt.Fprintf(&control, "Package: %s\nVersion: %s\nArchitecture: %s\n", d.Name, d.Version, d.Arch)
	if d.PreDepends != "" {
		fmt.Fprintf(&control, "Pre-Depends: %s\n", d.PreDepends)
	}
	if d.Depends != "" {
		fmt.Fprintf(&control, "Depends: %s\n", d.Depends)
	}
	if d.Provides != "" {
		fmt.Fprintf(&control, "Provides: %s\n", d.Provides)
	}
	fmt.Fprintf(&control, "Maintainer: Test <test@example.com>\nDescription: %s test package\n", d.Name)

	files := map[string]string{"control": control.String(), "md5sums": md5sums}
	for name, body := range d.Scripts {
		files[name] = body
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	must(t, tw.WriteHeader(&tar.Header{Name: "./", Typeflag: tar.TypeDir, Mode: 0755, ModTime: Epoch}))
	for _, name := range sortedKeys(files) {
		body := []byte(files[name])
		must(t, tw.WriteHeader(&tar.Header{
			Name: "./" + name, Typeflag: tar.TypeReg, Mode: 0755, Size: int64(len(body)), ModTime: Epoch,
		}))
		_, err := tw.Write(body)
		must(t, err)
	}
	must(t, tw.Close())
	return compress(t, "gz", buf.Bytes())
}

// Compresses data with the named codec.
func compress(t testing.TB, codec string, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch codec {
	case "none":
		return data
	case "gz":
		w = gzip.NewWriter(&buf)
	case "xz":
		w, err = xz.NewWriter(&buf)
	case "zst":
		w, err = zstd.NewWriter(&buf)
	default:
		t.Fatalf("unknown codec %q", codec)
	}
	must(t, err)
	_, err = w.Write(data)
	must(t, err)
	must(t, w.Close())
	return buf.Bytes()
}

func writeMember(t testing.TB, w *ar.Writer, name string, body []byte) {
	t.Helper()
	must(t, w.WriteHeader(&ar.Header{Name: name, Size: int64(len(body)), Mode: 0644, ModTime: Epoch}))
	_, err := w.Write(body)
	must(t, err)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func must(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
