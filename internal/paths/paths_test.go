package paths

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestSitePackages(t *testing.T) {
	got := SitePackages("3.11")
	want := "/usr/local/lib/python3.11/site-packages"
	if got != want {
		t.Fatalf("SitePackages = %q, want %q", got, want)
	}
}

func TestConfigFiles(t *testing.T) {
	files := ConfigFiles()
	if len(files) < 2 {
		t.Fatalf("ConfigFiles() = %v, want at least system and user files", files)
	}
	if files[0] != "/etc/offstage/config.json" {
		t.Fatalf("first file = %q, want system config", files[0])
	}
	for _, f := range files {
		if filepath.Base(f) != "config.json" || !strings.Contains(f, programName) {
			t.Fatalf("unexpected config path %q", f)
		}
	}
}
