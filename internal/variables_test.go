package internal

import (
	"runtime"
	"strings"
	"testing"
)

func setVars(t *testing.T, v, s, c string) {
	t.Helper()
	oldV, oldS, oldC := version, stage, gitCommit
	version, stage, gitCommit = v, s, c
	t.Cleanup(func() { version, stage, gitCommit = oldV, oldS, oldC })
}

func TestVersionStringLocal(t *testing.T) {
	setVars(t, "1.0.0", "", "abc")
	if got := VersionString(); got != defaultLocalBuild {
		t.Fatalf("VersionString() = %q, want %q", got, defaultLocalBuild)
	}
}

func TestVersionStringMain(t *testing.T) {
	setVars(t, "V1.2.3", "main", "abc123")
	want := "1.2.3 abc123 [" + runtime.GOARCH + "]"
	if got := VersionString(); got != want {
		t.Fatalf("VersionString() = %q, want %q", got, want)
	}
}

func TestVersionStringBranch(t *testing.T) {
	setVars(t, "1.2.3", "Staging", "abc123")
	if got := VersionString(); !strings.HasPrefix(got, "1.2.3+staging abc123") {
		t.Fatalf("VersionString() = %q, want 1.2.3+staging prefix", got)
	}
}

func TestUndefined(t *testing.T) {
	setVars(t, " ", "", "")
	if Version() != defaultUndefined || Stage() != defaultUndefined || GitCommit() != defaultUndefined {
		t.Fatalf("expected undefined values, got %q %q %q", Version(), Stage(), GitCommit())
	}
}
