package rootfs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cruciblehq/offstage/internal/fault"
)

func newRoot(t *testing.T) *Root {
	t.Helper()
	r, err := New(filepath.Join(t.TempDir(), "root"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestWriteEntryFile(t *testing.T) {
	r := newRoot(t)
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

	err := r.WriteEntry(Entry{Path: "/usr/share/doc/x/README", Type: TypeFile, Mode: 0640, ModTime: mtime}, strings.NewReader("hi"))
	if err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}

	full := filepath.Join(r.Dir(), "usr/share/doc/x/README")
	data, err := os.ReadFile(full)
	if err != nil || string(data) != "hi" {
		t.Fatalf("content = %q, %v", data, err)
	}
	info, _ := os.Stat(full)
	if info.Mode().Perm() != 0640 {
		t.Fatalf("mode = %v, want 0640", info.Mode().Perm())
	}
	if !info.ModTime().Equal(mtime) {
		t.Fatalf("mtime = %v, want %v", info.ModTime(), mtime)
	}
}

func TestWriteEntryConfinesTraversal(t *testing.T) {
	r := newRoot(t)
	outside := filepath.Join(filepath.Dir(r.Dir()), "escaped")

	err := r.WriteEntry(Entry{Path: "../escaped", Type: TypeFile, Mode: 0644}, strings.NewReader("x"))
	if err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if _, err := os.Stat(outside); err == nil {
		t.Fatal("entry escaped the root")
	}
	if _, err := os.Stat(filepath.Join(r.Dir(), "escaped")); err != nil {
		t.Fatalf("entry not written inside root: %v", err)
	}
}

func TestWriteEntryConfinesSymlinkParent(t *testing.T) {
	r := newRoot(t)
	if err := r.WriteEntry(Entry{Path: "/lib", Type: TypeSymlink, Linkname: "/"}, nil); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := r.WriteEntry(Entry{Path: "/lib/file", Type: TypeFile, Mode: 0644}, strings.NewReader("x")); err != nil {
		t.Fatalf("WriteEntry through symlink: %v", err)
	}
	if _, err := os.Stat(filepath.Join(r.Dir(), "file")); err != nil {
		t.Fatalf("expected file resolved inside root: %v", err)
	}
}

func TestWriteEntryReplacesFile(t *testing.T) {
	r := newRoot(t)
	for _, body := range []string{"one", "two"} {
		if err := r.WriteEntry(Entry{Path: "/f", Type: TypeFile, Mode: 0644}, strings.NewReader(body)); err != nil {
			t.Fatalf("WriteEntry: %v", err)
		}
	}
	data, _ := r.ReadFile("/f")
	if string(data) != "two" {
		t.Fatalf("content = %q, want two", data)
	}
}

func TestWriteEntryHardlink(t *testing.T) {
	r := newRoot(t)
	if err := r.WriteEntry(Entry{Path: "/a", Type: TypeFile, Mode: 0644}, strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if err := r.WriteEntry(Entry{Path: "/b", Type: TypeHardlink, Linkname: "/a"}, nil); err != nil {
		t.Fatalf("hardlink: %v", err)
	}
	data, _ := r.ReadFile("/b")
	if string(data) != "x" {
		t.Fatalf("content = %q", data)
	}
}

func TestWriteEntryDirOverFileFails(t *testing.T) {
	r := newRoot(t)
	if err := r.WriteEntry(Entry{Path: "/d", Type: TypeDir, Mode: 0755}, nil); err != nil {
		t.Fatal(err)
	}
	err := r.WriteEntry(Entry{Path: "/d", Type: TypeFile, Mode: 0644}, strings.NewReader("x"))
	if !errors.Is(err, fault.ErrFileSystem) {
		t.Fatalf("err = %v, want filesystem error", err)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	r := newRoot(t)
	if err := r.WriteFile("/var/lib/db", []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	if !r.Exists("/var/lib/db") {
		t.Fatal("file missing")
	}
	entries, _ := os.ReadDir(filepath.Join(r.Dir(), "var/lib"))
	if len(entries) != 1 {
		t.Fatalf("leftover temp files: %v", entries)
	}
	if err := r.Remove("/var/lib/db"); err != nil {
		t.Fatal(err)
	}
	if r.Exists("/var/lib/db") {
		t.Fatal("file not removed")
	}
}

func TestNewRejectsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	os.WriteFile(f, nil, 0644)
	if _, err := New(f); err == nil {
		t.Fatal("expected error for non-directory root")
	}
}
