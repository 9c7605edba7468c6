package interp

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/opencontainers/go-digest"

	"github.com/cruciblehq/offstage/internal/fault"
	"github.com/cruciblehq/offstage/internal/manifest"
	"github.com/cruciblehq/offstage/internal/testutil"
	"github.com/cruciblehq/offstage/internal/wheel"
)

func stage(t *testing.T, specs ...testutil.Wheel) []*wheel.Wheel {
	t.Helper()
	dir := t.TempDir()
	var out []*wheel.Wheel
	for _, s := range specs {
		w, err := wheel.Open(testutil.WriteWheel(t, dir, s))
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, w)
	}
	return out
}

func parseManifest(t *testing.T, body string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Parse(strings.NewReader(body), "requirements.txt")
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func selected(p *Plan) []string {
	var out []string
	for _, s := range p.Selections {
		out = append(out, string(s.Action)+" "+s.Wheel.String())
	}
	return out
}

func TestResolveTransitive(t *testing.T) {
	available := stage(t,
		testutil.Wheel{Name: "bar", Version: "1.0", Requires: []string{"baz>=2.0", "qux"}},
		testutil.Wheel{Name: "baz", Version: "2.0"},
		testutil.Wheel{Name: "qux", Version: "0.3", Requires: []string{`winonly; sys_platform == "win32"`}},
	)

	plan, err := Resolve(parseManifest(t, "bar==1.0\n"), available, testEnv())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"install bar 1.0", "install baz 2.0", "install qux 0.3"}
	if diff := cmp.Diff(want, selected(plan)); diff != "" {
		t.Fatalf("selection mismatch (-want +got):\n%s", diff)
	}
	if got := plan.Selections[1].RequiredBy; len(got) != 1 || got[0] != "bar 1.0" {
		t.Fatalf("RequiredBy = %v", got)
	}
}

func TestResolveNoMatch(t *testing.T) {
	available := stage(t, testutil.Wheel{Name: "bar", Version: "0.9"})

	_, err := Resolve(parseManifest(t, "bar==1.0\n"), available, testEnv())
	if !errors.Is(err, fault.ErrResolution) || !errors.Is(err, ErrNoMatch) {
		t.Fatalf("err = %v, want no-match resolution error", err)
	}
	var pe *fault.PackageError
	if !errors.As(err, &pe) || pe.Package != "bar" || pe.Constraint != "==1.0" {
		t.Fatalf("package error = %+v", pe)
	}
	if !strings.Contains(err.Error(), "0.9") {
		t.Fatalf("error %q does not list available versions", err)
	}
}

func TestResolveAmbiguous(t *testing.T) {
	available := stage(t,
		testutil.Wheel{Name: "bar", Version: "1.0"},
		testutil.Wheel{Name: "bar", Version: "1.1"},
	)
	_, err := Resolve(parseManifest(t, "bar>=1.0\n"), available, testEnv())
	if !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("err = %v, want ErrAmbiguous", err)
	}

	plan, err := Resolve(parseManifest(t, "bar>=1.0\nbar<1.1\n"), available, testEnv())
	if err != nil {
		t.Fatal(err)
	}
	if plan.Selections[0].Wheel.Version.String() != "1.0" {
		t.Fatalf("selected %s", plan.Selections[0].Wheel)
	}
}

func TestResolveIndependentOfLineOrder(t *testing.T) {
	available := stage(t,
		testutil.Wheel{Name: "bar", Version: "1.0", Requires: []string{"foo==2.0"}},
		testutil.Wheel{Name: "foo", Version: "1.0"},
		testutil.Wheel{Name: "foo", Version: "2.0"},
	)
	want := []string{"install bar 1.0", "install foo 2.0"}

	for _, body := range []string{"bar==1.0\nfoo\n", "foo\nbar==1.0\n"} {
		plan, err := Resolve(parseManifest(t, body), available, testEnv())
		if err != nil {
			t.Fatalf("%q: %v", body, err)
		}
		if diff := cmp.Diff(want, selected(plan)); diff != "" {
			t.Fatalf("%q: selection mismatch (-want +got):\n%s", body, diff)
		}
	}
}

func TestResolveSameVersionPrefersSpecificTag(t *testing.T) {
	available := stage(t,
		testutil.Wheel{Name: "fast", Version: "1.0"},
		testutil.Wheel{Name: "fast", Version: "1.0", Tag: "cp312-cp312-manylinux_2_17_x86_64"},
		testutil.Wheel{Name: "fast", Version: "1.0", Tag: "cp312-cp312-win_amd64"},
	)
	plan, err := Resolve(parseManifest(t, "fast\n"), available, testEnv())
	if err != nil {
		t.Fatal(err)
	}
	if tag := plan.Selections[0].Wheel.Filename.Platform; tag != "manylinux_2_17_x86_64" {
		t.Fatalf("selected platform %q", tag)
	}
}

func TestResolveRequiresPython(t *testing.T) {
	available := stage(t,
		testutil.Wheel{Name: "bar", Version: "1.0", RequiresPython: ">=3.13"},
		testutil.Wheel{Name: "bar", Version: "0.9", RequiresPython: ">=3.8"},
	)
	plan, err := Resolve(parseManifest(t, "bar\n"), available, testEnv())
	if err != nil {
		t.Fatal(err)
	}
	if v := plan.Selections[0].Wheel.Version.String(); v != "0.9" {
		t.Fatalf("selected %s", v)
	}
}

func TestResolveExtrasAndMarkers(t *testing.T) {
	available := stage(t,
		testutil.Wheel{Name: "requests", Version: "2.31.0", Requires: []string{
			"urllib3>=1.21",
			`PySocks!=1.5.7,>=1.5.6; extra == "socks"`,
		}},
		testutil.Wheel{Name: "urllib3", Version: "2.0.7"},
		testutil.Wheel{Name: "PySocks", Version: "1.7.1"},
	)

	plan, err := Resolve(parseManifest(t, "requests\n"), available, testEnv())
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Selections) != 2 {
		t.Fatalf("without extra: %v", selected(plan))
	}

	plan, err = Resolve(parseManifest(t, "requests[socks]\n"), available, testEnv())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"install requests 2.31.0", "install PySocks 1.7.1", "install urllib3 2.0.7"}
	if diff := cmp.Diff(want, selected(plan)); diff != "" {
		t.Fatalf("selection mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveConflict(t *testing.T) {
	available := stage(t,
		testutil.Wheel{Name: "bar", Version: "1.0", Requires: []string{"baz<2"}},
		testutil.Wheel{Name: "baz", Version: "2.0"},
	)
	_, err := Resolve(parseManifest(t, "baz==2.0\nbar\n"), available, testEnv())
	if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrNoMatch) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if name, _ := fault.PackageOf(err); name != "baz" {
		t.Fatalf("error names %q", name)
	}
}

func TestResolveHashes(t *testing.T) {
	available := stage(t, testutil.Wheel{Name: "bar", Version: "1.0"})
	good := available[0].Digest

	if _, err := Resolve(parseManifest(t, "bar==1.0 --hash="+good.String()+"\n"), available, testEnv()); err != nil {
		t.Fatal(err)
	}

	bad := digest.FromString("something else")
	_, err := Resolve(parseManifest(t, "bar==1.0 --hash="+bad.String()+"\n"), available, testEnv())
	if !errors.Is(err, fault.ErrIntegrity) || !errors.Is(err, ErrHashMissing) {
		t.Fatalf("err = %v, want integrity error", err)
	}
}

func TestResolveRejectsTransitiveURL(t *testing.T) {
	available := stage(t, testutil.Wheel{Name: "bar", Version: "1.0", Requires: []string{"baz @ https://example.com/baz.whl"}})
	_, err := Resolve(parseManifest(t, "bar\n"), available, testEnv())
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}

func TestResolveSkipsInstalled(t *testing.T) {
	available := stage(t,
		testutil.Wheel{Name: "bar", Version: "1.0"},
		testutil.Wheel{Name: "baz", Version: "2.0"},
	)
	env := testEnv()
	env.Installed = map[string]Installed{
		"bar": {Name: "bar", Version: "1.0", DistInfo: "bar-1.0.dist-info"},
		"baz": {Name: "baz", Version: "1.9", DistInfo: "baz-1.9.dist-info"},
	}

	plan, err := Resolve(parseManifest(t, "bar\nbaz\n"), available, env)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"skip bar 1.0", "install baz 2.0"}
	if diff := cmp.Diff(want, selected(plan)); diff != "" {
		t.Fatalf("selection mismatch (-want +got):\n%s", diff)
	}
	if r := plan.Selections[1].Replaces; r == nil || r.Version != "1.9" {
		t.Fatalf("Replaces = %+v", r)
	}
}
