package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/cruciblehq/offstage/internal"
	"github.com/cruciblehq/offstage/internal/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if got := strings.TrimSpace(out); got != internal.VersionString() {
		t.Errorf("version output = %q, want %q", got, internal.VersionString())
	}
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	_, err := execute(t, "build", "--no-such-flag")
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("error = %v, want %v", err, ErrUsage)
	}
}

func TestList(t *testing.T) {
	debs, wheels := t.TempDir(), t.TempDir()
	testutil.WriteDeb(t, debs, testutil.Deb{Name: "libfoo", Version: "1.0", Depends: "libc6 (>= 2.36)"})
	testutil.WriteWheel(t, wheels, testutil.Wheel{Name: "bar", Version: "1.0", Requires: []string{"baz>=2.0"}})

	out, err := execute(t, "list", "--native-dir", debs, "--interpreter-dir", wheels)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	var got []struct {
		Name    string   `yaml:"name"`
		Version string   `yaml:"version"`
		Kind    string   `yaml:"kind"`
		Depends []string `yaml:"depends"`
	}
	if err := yaml.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("parsing output: %v\n%s", err, out)
	}

	type row struct{ Name, Version, Kind, Depends string }
	var rows []row
	for _, a := range got {
		rows = append(rows, row{a.Name, a.Version, a.Kind, strings.Join(a.Depends, ",")})
	}
	want := []row{
		{"libfoo", "1.0", "native", "libc6 (>= 2.36)"},
		{"bar", "1.0", "interpreter", "baz>=2.0"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan(t *testing.T) {
	base := t.TempDir()
	debs, wheels, root := filepath.Join(base, "debs"), filepath.Join(base, "wheels"), filepath.Join(base, "root")
	for _, dir := range []string{debs, wheels} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	manifest := filepath.Join(base, "requirements.txt")
	if err := os.WriteFile(manifest, []byte("bar==1.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	testutil.WriteDeb(t, debs, testutil.Deb{Name: "libfoo", Version: "1.0"})
	testutil.WriteWheel(t, wheels, testutil.Wheel{Name: "bar", Version: "1.0", Requires: []string{"baz"}})
	testutil.WriteWheel(t, wheels, testutil.Wheel{Name: "baz", Version: "2.0"})

	out, err := execute(t, "plan",
		"--root", root,
		"--native-dir", debs,
		"--interpreter-dir", wheels,
		"--manifest", manifest,
		"--arch", "amd64",
	)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	var got planView
	if err := yaml.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("parsing output: %v\n%s", err, out)
	}
	want := planView{
		Native: []plannedPackage{{Name: "libfoo", Version: "1.0", Action: "install"}},
		Interpreter: []plannedPackage{
			{Name: "bar", Version: "1.0", Action: "install", RequiredBy: []string{manifest + ":1"}},
			{Name: "baz", Version: "2.0", Action: "install", RequiredBy: []string{"bar 1.0"}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}
