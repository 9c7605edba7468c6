package deb

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseClauses(t *testing.T) {
	got, err := ParseClauses("libc6 (>= 2.34), libfoo:any | libbar (<< 2.0) [amd64], python3 <!nocheck>,\n debconf (> 0.5)")
	if err != nil {
		t.Fatalf("ParseClauses: %v", err)
	}
	want := []Clause{
		{{Name: "libc6", Op: OpGreaterEqual, Version: "2.34"}},
		{{Name: "libfoo", Arch: "any"}, {Name: "libbar", Op: OpLess, Version: "2.0"}},
		{{Name: "python3"}},
		{{Name: "debconf", Op: OpGreaterEqual, Version: "0.5"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("clauses mismatch (-want +got):\n%s", diff)
	}
}

func TestParseClausesEmpty(t *testing.T) {
	got, err := ParseClauses("  ")
	if err != nil || got != nil {
		t.Fatalf("got %v, %v; want nil, nil", got, err)
	}
}

func TestParseRelationErrors(t *testing.T) {
	for _, in := range []string{"", "foo (>= )", "foo (~ 1.0)", "foo bar", "foo (>= 1.0"} {
		if _, err := ParseRelation(in); err == nil {
			t.Errorf("ParseRelation(%q): expected error", in)
		}
	}
}

func TestRelationSatisfiedBy(t *testing.T) {
	tests := []struct {
		rel     string
		version string
		want    bool
	}{
		{"a", "", true},
		{"a (>= 1.0)", "1.0", true},
		{"a (>= 1.0)", "0.9", false},
		{"a (>> 1.0)", "1.0", false},
		{"a (<< 2.0)", "1.9~rc1", true},
		{"a (<= 2.0)", "2.0", true},
		{"a (= 1:1.0-1)", "1:1.0-1", true},
		{"a (= 1:1.0-1)", "1.0-1", false},
		{"a (>= 1.0)", "", false},
		{"a (>= 1.0~beta)", "1.0~alpha", false},
	}
	for _, tt := range tests {
		t.Run(tt.rel+"/"+tt.version, func(t *testing.T) {
			rel, err := ParseRelation(tt.rel)
			if err != nil {
				t.Fatal(err)
			}
			got, err := rel.SatisfiedBy(tt.version)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("SatisfiedBy(%q) = %v, want %v", tt.version, got, tt.want)
			}
		})
	}
}

func TestClauseString(t *testing.T) {
	c := Clause{{Name: "a", Arch: "any"}, {Name: "b", Op: OpGreater, Version: "1"}}
	if got, want := c.String(), "a:any | b (>> 1)"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestCompareVersions(t *testing.T) {
	c, err := CompareVersions("1.10", "1.9")
	if err != nil || c != 1 {
		t.Fatalf("CompareVersions = %d, %v", c, err)
	}
	if _, err := CompareVersions("", "1"); err == nil {
		t.Fatal("expected error for empty version")
	}
}
