package fault

import (
	"errors"
	"io/fs"
	"testing"
)

var errLocal = errors.New("local")

func TestWrapKeepsKindAndCause(t *testing.T) {
	err := Wrap(ErrFileSystem, fs.ErrNotExist)
	if !errors.Is(err, ErrFileSystem) {
		t.Fatal("kind not reachable")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatal("cause not reachable")
	}
	if got, want := err.Error(), "filesystem error: file does not exist"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(ErrRuntime, nil) != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
}

func TestWrapfPreservesVerbW(t *testing.T) {
	err := Wrapf(ErrIntegrity, "checking %s: %w", "x", errLocal)
	if !errors.Is(err, errLocal) || !errors.Is(err, ErrIntegrity) {
		t.Fatalf("chain broken: %v", err)
	}
}

func TestPackageError(t *testing.T) {
	err := Wrap(ErrResolution, &PackageError{Package: "bar", Constraint: "==1.0", Err: errLocal})
	name, ok := PackageOf(err)
	if !ok || name != "bar" {
		t.Fatalf("PackageOf = %q, %v", name, ok)
	}
	if got, want := err.Error(), "resolution error: package bar (==1.0): local"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, errLocal) {
		t.Fatal("package error cause not reachable")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"resolution", Wrap(ErrResolution, errLocal), ExitResolution},
		{"integrity", Wrap(ErrIntegrity, errLocal), ExitIntegrity},
		{"filesystem", Wrap(ErrFileSystem, errLocal), ExitFileSystem},
		{"runtime", Wrap(ErrRuntime, errLocal), ExitRuntime},
		{"other", errLocal, ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Fatalf("ExitCode = %d, want %d", got, tt.want)
			}
		})
	}
}
