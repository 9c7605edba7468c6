package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
)

const sha = "sha256:2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae"

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParse(t *testing.T) {
	in := `# pinned application dependencies
--index-url https://pypi.org/simple
bar==1.0 \
    --hash=` + sha + `
requests[socks]>=2.0 # inline comment
tomli; python_version < "3.11"
--pre
`
	m, err := Parse(strings.NewReader(in), "requirements.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Requirements) != 3 {
		t.Fatalf("requirements = %v", m.Requirements)
	}

	bar := m.Requirements[0]
	if bar.Key() != "bar" || bar.Specifier != "==1.0" || bar.Source != "requirements.txt:3" {
		t.Fatalf("bar = %+v", bar)
	}
	if len(bar.Hashes) != 1 || bar.Hashes[0] != digest.Digest(sha) {
		t.Fatalf("hashes = %v", bar.Hashes)
	}
	if r := m.Requirements[1]; r.Extras[0] != "socks" || r.Specifier != ">=2.0" {
		t.Fatalf("requests = %+v", r)
	}
	if m.Requirements[2].Marker == nil {
		t.Fatal("marker dropped")
	}
	if !m.Pre {
		t.Fatal("--pre not recorded")
	}
}

func TestLoadIncludes(t *testing.T) {
	dir := t.TempDir()
	os.Mkdir(filepath.Join(dir, "sub"), 0755)
	writeFile(t, dir, "sub/base.txt", "baz>=2\n-c constraints.txt\n")
	writeFile(t, dir, "sub/constraints.txt", "baz<3\n")
	p := writeFile(t, dir, "requirements.txt", "bar==1.0\n-r sub/base.txt\n")

	m, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Requirements) != 2 || m.Requirements[1].Key() != "baz" {
		t.Fatalf("requirements = %v", m.Requirements)
	}
	if len(m.Constraints) != 1 || m.Constraints[0].Specifier != "<3" {
		t.Fatalf("constraints = %v", m.Constraints)
	}
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", "-r a.txt\n")
	p := writeFile(t, dir, "a.txt", "-r b.txt\n")

	if _, err := Load(p); !errors.Is(err, ErrInclude) {
		t.Fatalf("err = %v, want ErrInclude", err)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not exist", err)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"pip @ https://example.com/pip.whl\n", ErrUnsupported},
		{"-e ./src\n", ErrUnsupported},
		{"--bogus\n", ErrSyntax},
		{"bar==1.0 --hash=md5\n", ErrSyntax},
		{"bar==1.0 --hash\n", ErrSyntax},
		{"-r\n", ErrSyntax},
	}
	for _, tt := range tests {
		if _, err := Parse(strings.NewReader(tt.in), "r.txt"); !errors.Is(err, tt.want) {
			t.Errorf("Parse(%q) err = %v, want %v", tt.in, err, tt.want)
		}
	}
}
