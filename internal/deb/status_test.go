package deb

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/cruciblehq/offstage/internal/rootfs"
)

const statusFixture = `Package: libc6
Status: install ok installed
Version: 2.36-9
Provides: libc6-abi (= 2.36)

Package: oldpkg
Status: deinstall ok config-files
Version: 1.0

Package: half
Status: install ok unpacked
Version: 0.1
`

func TestStatusQueries(t *testing.T) {
	s, err := ParseStatus(strings.NewReader(statusFixture))
	if err != nil {
		t.Fatal(err)
	}

	if v, ok := s.Installed("libc6"); !ok || v != "2.36-9" {
		t.Fatalf("Installed(libc6) = %q, %v", v, ok)
	}
	if _, ok := s.Installed("oldpkg"); ok {
		t.Fatal("config-files package reported as installed")
	}
	if _, ok := s.Installed("half"); !ok {
		t.Fatal("unpacked package should count as present")
	}

	prov := s.Providers("libc6-abi")
	if len(prov) != 1 || prov[0].Name != "libc6" || prov[0].Version != "2.36" {
		t.Fatalf("Providers = %v", prov)
	}
}

func TestStatusWriteSorted(t *testing.T) {
	root, err := rootfs.New(filepath.Join(t.TempDir(), "root"))
	if err != nil {
		t.Fatal(err)
	}

	s, err := ReadStatus(root)
	if err != nil {
		t.Fatalf("ReadStatus on empty root: %v", err)
	}

	for _, name := range []string{"zlib", "acl"} {
		var p Paragraph
		p.Set("Package", name)
		p.Set("Status", StatusInstalled)
		p.Set("Version", "1")
		s.Put(p)
	}
	if err := s.Write(root); err != nil {
		t.Fatal(err)
	}

	back, err := ReadStatus(root)
	if err != nil {
		t.Fatal(err)
	}
	if names := back.Names(); len(names) != 2 || names[0] != "acl" {
		t.Fatalf("Names = %v", names)
	}
	if !strings.HasPrefix(string(back.Bytes()), "Package: acl\n") {
		t.Fatalf("status not sorted:\n%s", back.Bytes())
	}
}

func TestStatusParagraph(t *testing.T) {
	var control Paragraph
	control.Set("Package", "libfoo")
	control.Set("Version", "1.0")
	control.Set("Architecture", "all")

	p := StatusParagraph(&Package{Name: "libfoo", Control: control}, StatusUnpacked)
	keys := p.Keys()
	if keys[0] != "Package" || keys[1] != "Status" {
		t.Fatalf("keys = %v, want Package, Status first", keys)
	}
	if p.Get("Status") != StatusUnpacked || p.Get("Version") != "1.0" {
		t.Fatalf("paragraph = %s", p)
	}
}
