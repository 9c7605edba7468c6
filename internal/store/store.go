package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/cruciblehq/offstage/internal/deb"
	"github.com/cruciblehq/offstage/internal/wheel"
)

// Kind of artifact.
type Kind string

const (
	KindNative      Kind = "native"
	KindInterpreter Kind = "interpreter"
)

// A summary of one staged artifact.
type Artifact struct {
	Name    string        `yaml:"name"`
	Version string        `yaml:"version"`
	Kind    Kind          `yaml:"kind"`
	Path    string        `yaml:"path"`
	Digest  digest.Digest `yaml:"digest"`
	Depends []string      `yaml:"depends,omitempty"`
}

// The parsed contents of the artifact directories.
type Store struct {
	Native      []*deb.Package // Sorted by name, then path.
	Interpreter []*wheel.Wheel // Sorted by normalized name, then path.
}

// Parses every artifact in the native and interpreter directories.
func Open(nativeDir, interpreterDir string) (*Store, error) {
	debs, err := LoadNative(nativeDir)
	if err != nil {
		return nil, err
	}
	wheels, err := LoadInterpreter(interpreterDir)
	if err != nil {
		return nil, err
	}
	return &Store{Native: debs, Interpreter: wheels}, nil
}

// Parses every .deb file in dir.
func LoadNative(dir string) ([]*deb.Package, error) {
	paths, err := scan(dir, ".deb")
	if err != nil {
		return nil, err
	}

	out := make([]*deb.Package, 0, len(paths))
	for _, p := range paths {
		pkg, err := deb.Open(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		slog.Debug("found native package", "package", pkg.Name, "version", pkg.Version, "path", p)
		out = append(out, pkg)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

// Parses every .whl file in dir.
func LoadInterpreter(dir string) ([]*wheel.Wheel, error) {
	paths, err := scan(dir, ".whl")
	if err != nil {
		return nil, err
	}

	out := make([]*wheel.Wheel, 0, len(paths))
	for _, p := range paths {
		w, err := wheel.Open(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		slog.Debug("found interpreter package", "package", w.Name, "version", w.Version.String(), "path", p)
		out = append(out, w)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Key() != out[j].Key() {
			return out[i].Key() < out[j].Key()
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

// Returns a summary of every artifact, native packages first.
func (s *Store) Artifacts() []Artifact {
	out := make([]Artifact, 0, len(s.Native)+len(s.Interpreter))
	for _, p := range s.Native {
		a := Artifact{Name: p.Name, Version: p.Version, Kind: KindNative, Path: p.Path, Digest: p.Digest}
		for _, c := range p.Requirements() {
			a.Depends = append(a.Depends, c.String())
		}
		out = append(out, a)
	}
	for _, w := range s.Interpreter {
		a := Artifact{Name: w.Name, Version: w.Version.String(), Kind: KindInterpreter, Path: w.Path, Digest: w.Digest}
		for _, r := range w.Requires {
			a.Depends = append(a.Depends, r.String())
		}
		out = append(out, a)
	}
	return out
}

// Returns the sorted paths of regular files in dir with the given suffix.
func scan(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("artifact directory does not exist", "dir", dir)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() && e.Type()&fs.ModeSymlink == 0 {
			continue
		}
		if strings.HasSuffix(e.Name(), suffix) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}
