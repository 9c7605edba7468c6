package runtime

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type tarEntry struct {
	Name     string
	Type     byte
	Linkname string
	Body     string
	Uid      int
	Uname    string
}

func readTar(t *testing.T, r io.Reader) []tarEntry {
	t.Helper()

	var entries []tarEntry
	tr := tar.NewReader(r)
	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return entries
		}
		if err != nil {
			t.Fatalf("reading tar: %v", err)
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			t.Fatal(err)
		}
		entries = append(entries, tarEntry{
			Name:     h.Name,
			Type:     h.Typeflag,
			Linkname: h.Linkname,
			Body:     string(body),
			Uid:      h.Uid,
			Uname:    h.Uname,
		})
	}
}

func TestWriteDirToTar(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "usr", "lib"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "usr", "lib", "libfoo.so.1"), []byte("elf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("libfoo.so.1", filepath.Join(dir, "usr", "lib", "libfoo.so")); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := writeDirToTar(tw, dir); err != nil {
		t.Fatalf("writeDirToTar: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	want := []tarEntry{
		{Name: "usr/", Type: tar.TypeDir, Uname: "root"},
		{Name: "usr/lib/", Type: tar.TypeDir, Uname: "root"},
		{Name: "usr/lib/libfoo.so", Type: tar.TypeSymlink, Linkname: "libfoo.so.1", Uname: "root"},
		{Name: "usr/lib/libfoo.so.1", Type: tar.TypeReg, Body: "elf", Uname: "root"},
	}
	if diff := cmp.Diff(want, readTar(t, &buf)); diff != "" {
		t.Errorf("archive mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteDirToTarMissing(t *testing.T) {
	tw := tar.NewWriter(io.Discard)
	if err := writeDirToTar(tw, filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
