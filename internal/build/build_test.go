package build

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cruciblehq/offstage/internal/fault"
	"github.com/cruciblehq/offstage/internal/finalize"
	"github.com/cruciblehq/offstage/internal/paths"
	"github.com/cruciblehq/offstage/internal/testutil"
)

// A staged set of inputs for one run.
type fixture struct {
	native      string
	interpreter string
	manifest    string
	app         string
}

func newFixture(t *testing.T, manifestBody string) fixture {
	t.Helper()

	base := t.TempDir()
	f := fixture{
		native:      filepath.Join(base, "debs"),
		interpreter: filepath.Join(base, "wheels"),
		manifest:    filepath.Join(base, "requirements.txt"),
		app:         filepath.Join(base, "src", "app"),
	}
	for _, dir := range []string{f.native, f.interpreter, f.app} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	writeFile(t, f.manifest, manifestBody)
	writeFile(t, filepath.Join(f.app, "main.py"), "from fastapi import FastAPI\napp = FastAPI()\n")
	writeFile(t, filepath.Join(f.app, "models.py"), "ITEMS = {}\n")
	return f
}

func (f fixture) deb(t *testing.T, d testutil.Deb) {
	t.Helper()
	testutil.WriteDeb(t, f.native, d)
}

func (f fixture) wheel(t *testing.T, w testutil.Wheel) {
	t.Helper()
	testutil.WriteWheel(t, f.interpreter, w)
}

func (f fixture) options(root string) Options {
	return Options{
		Root:           root,
		NativeDir:      f.native,
		InterpreterDir: f.interpreter,
		Manifest:       f.manifest,
		AppSource:      f.app,
		Arch:           "amd64",
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Stages libfoo, bar 1.0 and baz 2.0 with bar depending on baz.
func scenarioFixture(t *testing.T) fixture {
	t.Helper()

	f := newFixture(t, "bar==1.0\n")
	f.deb(t, testutil.Deb{
		Name:    "libfoo",
		Version: "1.0-1",
		Files:   map[string]string{"/usr/lib/libfoo.so.1": "elf"},
	})
	f.wheel(t, testutil.Wheel{
		Name:     "bar",
		Version:  "1.0",
		Requires: []string{"baz>=2.0"},
		Files:    map[string]string{"bar/__init__.py": "import baz\n"},
	})
	f.wheel(t, testutil.Wheel{
		Name:    "baz",
		Version: "2.0",
		Files:   map[string]string{"baz/__init__.py": ""},
	})
	return f
}

// Returns every regular file and symlink under dir with its contents.
func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()

	out := map[string]string{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, p)
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return err
			}
			out[rel] = "-> " + target
		case d.Type().IsRegular():
			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			out[rel] = string(data)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func assertExists(t *testing.T, root string, rel ...string) {
	t.Helper()
	for _, r := range rel {
		if _, err := os.Lstat(filepath.Join(root, r)); err != nil {
			t.Errorf("%s: %v", r, err)
		}
	}
}

func assertPhaseError(t *testing.T, err error, phase Phase) {
	t.Helper()
	var pe *PhaseError
	if !errors.As(err, &pe) {
		t.Fatalf("error %v is not a PhaseError", err)
	}
	if pe.Phase != phase {
		t.Fatalf("failed phase = %s, want %s", pe.Phase, phase)
	}
}

func TestRunScenario(t *testing.T) {
	f := scenarioFixture(t)
	root := t.TempDir()

	result, err := Run(context.Background(), f.options(root))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := &Result{
		Phase:       PhaseComplete,
		History:     []Phase{PhaseStart, PhaseNativeInstall, PhaseInterpreterInstall, PhaseFinalize, PhaseComplete},
		Native:      Report{Installed: []string{"libfoo 1.0-1"}},
		Interpreter: Report{Installed: []string{"bar 1.0", "baz 2.0"}},
		AppEntries:  3,
	}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	site := paths.SitePackages(paths.PythonVersion)
	assertExists(t, root,
		"usr/lib/libfoo.so.1",
		"var/lib/dpkg/status",
		"var/lib/dpkg/info/libfoo.list",
		filepath.Join(site, "bar", "__init__.py"),
		filepath.Join(site, "bar-1.0.dist-info", "RECORD"),
		filepath.Join(site, "baz-2.0.dist-info", "METADATA"),
		"app/main.py",
		"app/models.py",
		"etc/offstage/runtime.env",
	)
}

func TestRunNoMatchingVersion(t *testing.T) {
	f := newFixture(t, "bar==1.0\n")
	f.deb(t, testutil.Deb{Name: "libfoo", Version: "1.0", Files: map[string]string{"/usr/lib/libfoo.so.1": "elf"}})
	f.wheel(t, testutil.Wheel{Name: "bar", Version: "0.9"})
	root := t.TempDir()

	result, err := Run(context.Background(), f.options(root))
	if !errors.Is(err, fault.ErrResolution) {
		t.Fatalf("Run error = %v, want resolution error", err)
	}
	assertPhaseError(t, err, PhaseInterpreterInstall)

	var pe *fault.PackageError
	if !errors.As(err, &pe) || pe.Package != "bar" || pe.Constraint != "==1.0" {
		t.Fatalf("package error = %+v, want bar ==1.0", pe)
	}
	if got := fault.ExitCode(err); got != fault.ExitResolution {
		t.Errorf("exit code = %d, want %d", got, fault.ExitResolution)
	}
	if result.Phase != PhaseAborted {
		t.Errorf("phase = %s, want Aborted", result.Phase)
	}
	if _, err := os.Stat(filepath.Join(root, "app")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("application copied after a failed phase")
	}
}

func TestRunMissingNativeDependency(t *testing.T) {
	f := scenarioFixture(t)
	f.deb(t, testutil.Deb{Name: "libssl-dev", Version: "3.0", Depends: "libssl3 (>= 3.0)"})
	root := t.TempDir()

	result, err := Run(context.Background(), f.options(root))
	if !errors.Is(err, fault.ErrResolution) {
		t.Fatalf("Run error = %v, want resolution error", err)
	}
	assertPhaseError(t, err, PhaseNativeInstall)
	if name, _ := fault.PackageOf(err); name != "libssl-dev" && name != "libssl3" {
		t.Errorf("offending package = %q", name)
	}

	want := []Phase{PhaseStart, PhaseNativeInstall, PhaseAborted}
	if diff := cmp.Diff(want, result.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	if got := snapshot(t, root); len(got) != 0 {
		t.Errorf("root modified before planning failed: %v", got)
	}
}

func TestRunIntegrityFailure(t *testing.T) {
	f := newFixture(t, "")
	f.deb(t, testutil.Deb{
		Name:    "libfoo",
		Version: "1.0",
		Files:   map[string]string{"/usr/lib/libfoo.so.1": "elf"},
		BadMD5:  "/usr/lib/libfoo.so.1",
	})
	root := t.TempDir()

	_, err := Run(context.Background(), f.options(root))
	if !errors.Is(err, fault.ErrIntegrity) {
		t.Fatalf("Run error = %v, want integrity error", err)
	}
	assertPhaseError(t, err, PhaseNativeInstall)
	if name, _ := fault.PackageOf(err); name != "libfoo" {
		t.Errorf("offending package = %q, want libfoo", name)
	}
	if _, err := os.Stat(filepath.Join(root, "usr/lib/libfoo.so.1")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("package unpacked despite failed verification")
	}
}

func TestRunMissingManifest(t *testing.T) {
	f := newFixture(t, "")
	f.manifest = filepath.Join(t.TempDir(), "missing.txt")

	_, err := Run(context.Background(), f.options(t.TempDir()))
	if !errors.Is(err, fault.ErrFileSystem) {
		t.Fatalf("Run error = %v, want filesystem error", err)
	}
	assertPhaseError(t, err, PhaseInterpreterInstall)
}

func TestRunIdempotent(t *testing.T) {
	f := scenarioFixture(t)
	root := t.TempDir()

	if _, err := Run(context.Background(), f.options(root)); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	before := snapshot(t, root)

	result, err := Run(context.Background(), f.options(root))
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	wantNative := Report{Skipped: []string{"libfoo 1.0-1"}}
	if diff := cmp.Diff(wantNative, result.Native); diff != "" {
		t.Errorf("native report mismatch (-want +got):\n%s", diff)
	}
	wantInterp := Report{Skipped: []string{"bar 1.0", "baz 2.0"}}
	if diff := cmp.Diff(wantInterp, result.Interpreter); diff != "" {
		t.Errorf("interpreter report mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(before, snapshot(t, root)); diff != "" {
		t.Errorf("second run changed the root (-before +after):\n%s", diff)
	}
}

func TestRunDeterministic(t *testing.T) {
	f := scenarioFixture(t)
	a, b := t.TempDir(), t.TempDir()

	for _, root := range []string{a, b} {
		if _, err := Run(context.Background(), f.options(root)); err != nil {
			t.Fatalf("Run(%s): %v", root, err)
		}
	}
	if diff := cmp.Diff(snapshot(t, a), snapshot(t, b)); diff != "" {
		t.Errorf("runs differ (-first +second):\n%s", diff)
	}
}

func TestRunCancelled(t *testing.T) {
	f := scenarioFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := Run(ctx, f.options(t.TempDir()))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want %v", err, context.Canceled)
	}
	assertPhaseError(t, err, PhaseStart)
	if result.Phase != PhaseAborted {
		t.Errorf("phase = %s, want Aborted", result.Phase)
	}
}

func TestRunWritesFlags(t *testing.T) {
	f := newFixture(t, "")
	root := t.TempDir()
	opts := f.options(root)
	opts.Flags = &finalize.Flags{FlushOutput: true, CacheCompiledArtifacts: false}

	if _, err := Run(context.Background(), opts); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "etc/offstage/runtime.env"))
	if err != nil {
		t.Fatal(err)
	}
	want := "# Written by offstage. Read by offstage serve.\nPYTHONDONTWRITEBYTECODE=1\nPYTHONUNBUFFERED=1\n"
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("runtime.env mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanDoesNotModifyRoot(t *testing.T) {
	f := scenarioFixture(t)
	root := t.TempDir()

	preview, err := Plan(f.options(root))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if got := len(preview.Native.Installs()); got != 1 {
		t.Errorf("native installs = %d, want 1", got)
	}
	if got := len(preview.Interpreter.Installs()); got != 2 {
		t.Errorf("interpreter installs = %d, want 2", got)
	}
	if got := snapshot(t, root); len(got) != 0 {
		t.Errorf("Plan modified the root: %v", got)
	}
}

func TestImageConfig(t *testing.T) {
	got := imageConfig(finalize.Flags{FlushOutput: true, CacheCompiledArtifacts: true}, "/app")
	want := ocispec.ImageConfig{
		Entrypoint:   []string{"/usr/local/bin/offstage", "serve"},
		Env:          []string{"PYTHONUNBUFFERED=1"},
		ExposedPorts: map[string]struct{}{"8000/tcp": {}},
		WorkingDir:   "/app",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("image config mismatch (-want +got):\n%s", diff)
	}
}
