package deb

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"sort"
	"strings"

	"github.com/cruciblehq/offstage/internal/paths"
	"github.com/cruciblehq/offstage/internal/rootfs"
)

// Values of the Status field written by the installer.
const (
	StatusInstalled = "install ok installed"
	StatusUnpacked  = "install ok unpacked"
)

// Package states that count as present on the target.
var presentStates = map[string]bool{
	"installed":        true,
	"unpacked":         true,
	"half-configured":  true,
	"triggers-awaited": true,
	"triggers-pending": true,
}

// The dpkg status database of a target filesystem.
type Status struct {
	paras map[string]Paragraph
}

// A package or virtual package available on the target.
type Provided struct {
	Name    string // Providing (real) package.
	Version string // Version of the provided name, empty if unversioned.
}

// Returns an empty status database.
func NewStatus() *Status {
	return &Status{paras: make(map[string]Paragraph)}
}

// Reads var/lib/dpkg/status from root. A missing file yields an empty
// database.
func ReadStatus(root *rootfs.Root) (*Status, error) {
	data, err := root.ReadFile(paths.DpkgStatus)
	if errors.Is(err, fs.ErrNotExist) {
		return NewStatus(), nil
	}
	if err != nil {
		return nil, err
	}
	return ParseStatus(bytes.NewReader(data))
}

// Parses a status file.
func ParseStatus(r io.Reader) (*Status, error) {
	paras, err := ParseParagraphs(r)
	if err != nil {
		return nil, err
	}
	s := NewStatus()
	for _, p := range paras {
		if name := p.Get("Package"); name != "" {
			s.paras[name] = p
		}
	}
	return s, nil
}

// Returns the paragraph recorded for a package.
func (s *Status) Lookup(name string) (Paragraph, bool) {
	p, ok := s.paras[name]
	return p, ok
}

// Returns the version of a package present on the target.
func (s *Status) Installed(name string) (string, bool) {
	p, ok := s.paras[name]
	if !ok || !isPresent(p) {
		return "", false
	}
	return p.Get("Version"), true
}

// Returns the present packages that provide the virtual package name,
// sorted by providing package.
func (s *Status) Providers(name string) []Provided {
	var out []Provided
	for _, pkg := range s.Names() {
		p := s.paras[pkg]
		if !isPresent(p) {
			continue
		}
		clauses, err := ParseClauses(p.Get("Provides"))
		if err != nil {
			continue
		}
		for _, c := range clauses {
			for _, r := range c {
				if r.Name == name {
					out = append(out, Provided{Name: pkg, Version: r.Version})
				}
			}
		}
	}
	return out
}

// Records or replaces the paragraph of a package.
func (s *Status) Put(p Paragraph) {
	s.paras[p.Get("Package")] = p
}

// Returns the recorded package names in sorted order.
func (s *Status) Names() []string {
	out := make([]string, 0, len(s.paras))
	for name := range s.paras {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Serializes the database with paragraphs sorted by package name.
func (s *Status) Bytes() []byte {
	var b bytes.Buffer
	for i, name := range s.Names() {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(s.paras[name].String())
	}
	return b.Bytes()
}

// Writes the database back to root.
func (s *Status) Write(root *rootfs.Root) error {
	return root.WriteFile(paths.DpkgStatus, s.Bytes(), paths.DefaultFileMode)
}

// Builds the status paragraph recorded for an installed package.
func StatusParagraph(pkg *Package, status string) Paragraph {
	var out Paragraph
	out.Set("Package", pkg.Name)
	out.Set("Status", status)
	for _, k := range pkg.Control.Keys() {
		if strings.EqualFold(k, "Package") || strings.EqualFold(k, "Status") {
			continue
		}
		out.Set(k, pkg.Control.Get(k))
	}
	return out
}

// Reports whether the paragraph's Status names a present state.
func isPresent(p Paragraph) bool {
	fields := strings.Fields(p.Get("Status"))
	if len(fields) != 3 {
		return false
	}
	return presentStates[fields[2]]
}
