package wheel

import (
	"errors"
	"testing"

	version "github.com/aquasecurity/go-pep440-version"
)

func TestParseRequirement(t *testing.T) {
	tests := []struct {
		in        string
		name      string
		extras    []string
		specifier string
		url       string
		marker    bool
	}{
		{in: "bar==1.0", name: "bar", specifier: "==1.0"},
		{in: "baz", name: "baz"},
		{in: "requests[socks, Security] (>=2.8.1, <3)", name: "requests", extras: []string{"security", "socks"}, specifier: ">=2.8.1,<3"},
		{in: `tomli>=1.1.0; python_version < "3.11"`, name: "tomli", specifier: ">=1.1.0", marker: true},
		{in: "pip @ https://example.com/pip.whl", name: "pip", url: "https://example.com/pip.whl"},
		{in: "zope.interface ~= 6.0", name: "zope.interface", specifier: "~=6.0"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, err := ParseRequirement(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if r.Name != tt.name || r.Specifier != tt.specifier || r.URL != tt.url {
				t.Fatalf("got %+v", r)
			}
			if len(r.Extras) != len(tt.extras) {
				t.Fatalf("extras = %v, want %v", r.Extras, tt.extras)
			}
			for i := range tt.extras {
				if r.Extras[i] != tt.extras[i] {
					t.Fatalf("extras = %v, want %v", r.Extras, tt.extras)
				}
			}
			if (r.Marker != nil) != tt.marker {
				t.Fatalf("marker = %v, want present=%v", r.Marker, tt.marker)
			}
		})
	}
}

func TestParseRequirementErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"-bar",
		"bar[extra",
		"bar (>=1.0",
		"bar >=> 1",
		`bar; os_name =! "posix"`,
	} {
		if _, err := ParseRequirement(in); !errors.Is(err, ErrRequirement) {
			t.Errorf("ParseRequirement(%q) err = %v, want ErrRequirement", in, err)
		}
	}
}

func TestRequirementAllows(t *testing.T) {
	r, err := ParseRequirement("bar>=1.0,<2")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		v    string
		pre  bool
		want bool
	}{
		{"1.0", false, true},
		{"1.9.9", false, true},
		{"2.0", false, false},
		{"0.9", false, false},
		{"1.5rc1", false, false},
		{"1.5rc1", true, true},
	}
	for _, tt := range tests {
		if got := r.Allows(version.MustParse(tt.v), tt.pre); got != tt.want {
			t.Errorf("Allows(%s, pre=%v) = %v, want %v", tt.v, tt.pre, got, tt.want)
		}
	}

	unbounded, _ := ParseRequirement("bar")
	if !unbounded.Allows(version.MustParse("0.0.1"), false) {
		t.Error("empty specifier should allow any version")
	}
}
