package wheel

import (
	"fmt"
	"strings"
)

// A single compatibility tag triple.
type Tag struct {
	Interpreter string // e.g. "py3", "cp312".
	ABI         string // e.g. "none", "abi3", "cp312".
	Platform    string // e.g. "any", "manylinux_2_17_x86_64".
}

func (t Tag) String() string {
	return t.Interpreter + "-" + t.ABI + "-" + t.Platform
}

// The components of a wheel filename.
type Filename struct {
	Name        string // Escaped distribution name.
	Version     string // Version string.
	Build       string // Optional build tag.
	Interpreter string // Compressed interpreter tag set, e.g. "py2.py3".
	ABI         string // Compressed ABI tag set.
	Platform    string // Compressed platform tag set.
}

// Parses "{name}-{version}(-{build})?-{interpreter}-{abi}-{platform}.whl".
func ParseFilename(base string) (Filename, error) {
	stem, ok := strings.CutSuffix(base, ".whl")
	if !ok {
		return Filename{}, fmt.Errorf("%w: %q: missing .whl suffix", ErrFilename, base)
	}

	parts := strings.Split(stem, "-")
	var f Filename
	switch len(parts) {
	case 5:
		f = Filename{Name: parts[0], Version: parts[1], Interpreter: parts[2], ABI: parts[3], Platform: parts[4]}
	case 6:
		f = Filename{Name: parts[0], Version: parts[1], Build: parts[2], Interpreter: parts[3], ABI: parts[4], Platform: parts[5]}
		if f.Build == "" || f.Build[0] < '0' || f.Build[0] > '9' {
			return Filename{}, fmt.Errorf("%w: %q: build tag must start with a digit", ErrFilename, base)
		}
	default:
		return Filename{}, fmt.Errorf("%w: %q", ErrFilename, base)
	}

	for _, p := range parts {
		if p == "" {
			return Filename{}, fmt.Errorf("%w: %q: empty component", ErrFilename, base)
		}
	}
	return f, nil
}

// Expands the compressed tag sets into every tag triple the wheel supports.
func (f Filename) Tags() []Tag {
	var tags []Tag
	for _, i := range strings.Split(f.Interpreter, ".") {
		for _, a := range strings.Split(f.ABI, ".") {
			for _, p := range strings.Split(f.Platform, ".") {
				tags = append(tags, Tag{Interpreter: i, ABI: a, Platform: p})
			}
		}
	}
	return tags
}

func (f Filename) String() string {
	parts := []string{f.Name, f.Version}
	if f.Build != "" {
		parts = append(parts, f.Build)
	}
	parts = append(parts, f.Interpreter, f.ABI, f.Platform)
	return strings.Join(parts, "-") + ".whl"
}
