package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/cruciblehq/offstage/internal/wheel"
)

// Options that only affect where pip looks for packages. They carry no
// meaning for a pre-staged artifact store.
var ignoredOptions = map[string]bool{
	"-i":                true,
	"--index-url":       true,
	"--extra-index-url": true,
	"-f":                true,
	"--find-links":      true,
	"--trusted-host":    true,
	"--no-index":        true,
	"--prefer-binary":   true,
	"--only-binary":     true,
	"--no-binary":       true,
	"--use-feature":     true,
}

// Options that take a value as the next word when not written as "--opt=value".
var valuedOptions = map[string]bool{
	"-i": true, "--index-url": true, "--extra-index-url": true,
	"-f": true, "--find-links": true, "--trusted-host": true,
	"--only-binary": true, "--no-binary": true, "--use-feature": true,
	"-r": true, "--requirement": true, "-c": true, "--constraint": true,
}

// A single requirement line.
type Entry struct {
	wheel.Requirement
	Hashes []digest.Digest // Accepted artifact digests from --hash, empty when unpinned.
	Source string          // "file:line" where the entry was declared.
}

// A parsed requirements file including everything it pulls in.
type Manifest struct {
	Requirements []Entry // Top-level requirements in declaration order.
	Constraints  []Entry // Constraints from -c files, applied only to names that are required.
	Pre          bool    // Whether --pre was given.
}

// Reads the requirements file at path and every file it includes.
func Load(path string) (*Manifest, error) {
	l := &loader{m: &Manifest{}, active: map[string]bool{}}
	if err := l.load(path, false); err != nil {
		return nil, err
	}
	return l.m, nil
}

// Parses requirements from r. Includes are resolved relative to the
// directory of name.
func Parse(r io.Reader, name string) (*Manifest, error) {
	l := &loader{m: &Manifest{}, active: map[string]bool{}}
	if err := l.parse(r, name, false); err != nil {
		return nil, err
	}
	return l.m, nil
}

type loader struct {
	m      *Manifest
	active map[string]bool // Files on the current include stack.
}

func (l *loader) load(path string, constraint bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if l.active[abs] {
		return fmt.Errorf("%w: %s includes itself", ErrInclude, path)
	}
	l.active[abs] = true
	defer delete(l.active, abs)

	body, err := os.ReadFile(abs)
	if err != nil {
		return err
	}
	return l.parse(bytes.NewReader(body), path, constraint)
}

func (l *loader) parse(r io.Reader, name string, constraint bool) error {
	lines, err := logicalLines(r)
	if err != nil {
		return err
	}

	for _, ln := range lines {
		src := fmt.Sprintf("%s:%d", name, ln.number)
		words := strings.Fields(ln.text)
		if len(words) == 0 {
			continue
		}
		if strings.HasPrefix(words[0], "-") {
			if err := l.option(words, name, src, constraint); err != nil {
				return err
			}
			continue
		}

		entry, err := parseEntry(ln.text, src)
		if err != nil {
			return err
		}
		if constraint {
			l.m.Constraints = append(l.m.Constraints, entry)
		} else {
			l.m.Requirements = append(l.m.Requirements, entry)
		}
	}
	return nil
}

// Handles a line that starts with an option.
func (l *loader) option(words []string, name, src string, constraint bool) error {
	opt, value, hasValue := strings.Cut(words[0], "=")
	if !hasValue && valuedOptions[opt] {
		if len(words) < 2 {
			return fmt.Errorf("%w: %s: %s requires a value", ErrSyntax, src, opt)
		}
		value = words[1]
	}

	switch {
	case opt == "-r" || opt == "--requirement" || opt == "-c" || opt == "--constraint":
		target := value
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(name), target)
		}
		nested := constraint || opt == "-c" || opt == "--constraint"
		if err := l.load(target, nested); err != nil {
			return fmt.Errorf("%s: %w", src, err)
		}
	case opt == "--pre":
		l.m.Pre = true
	case opt == "-e" || opt == "--editable":
		return fmt.Errorf("%w: %s: editable installs need a source build", ErrUnsupported, src)
	case ignoredOptions[opt]:
		slog.Warn("ignoring index option, artifacts are never fetched", "option", opt, "source", src)
	default:
		return fmt.Errorf("%w: %s: unknown option %q", ErrSyntax, src, opt)
	}
	return nil
}

// Parses "<requirement> [--hash=algo:hex ...]".
func parseEntry(text, src string) (Entry, error) {
	spec := text
	var hashes []string
	if i := strings.Index(text, " --hash"); i >= 0 {
		spec = text[:i]
		hashes = strings.Fields(text[i:])
	}

	var entry Entry
	for _, h := range hashes {
		value, ok := strings.CutPrefix(h, "--hash=")
		if !ok {
			return Entry{}, fmt.Errorf("%w: %s: unexpected %q", ErrSyntax, src, h)
		}
		d, err := digest.Parse(value)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: %s: hash %q: %v", ErrSyntax, src, value, err)
		}
		entry.Hashes = append(entry.Hashes, d)
	}

	req, err := wheel.ParseRequirement(spec)
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %w", src, err)
	}
	if req.URL != "" {
		return Entry{}, fmt.Errorf("%w: %s: %s is a direct URL reference, which requires the network", ErrUnsupported, src, req.Name)
	}
	entry.Requirement = req
	entry.Source = src
	return entry, nil
}

type line struct {
	number int
	text   string
}

// Joins continuation lines and strips comments.
func logicalLines(r io.Reader) ([]line, error) {
	var out []line
	var cur strings.Builder
	start, n := 0, 0

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		n++
		text := sc.Text()
		if cur.Len() == 0 {
			start = n
		}
		if strings.HasPrefix(strings.TrimSpace(text), "#") {
			text = ""
		} else if i := strings.Index(text, " #"); i >= 0 {
			text = text[:i]
		}
		if s, ok := strings.CutSuffix(strings.TrimRight(text, " \t"), `\`); ok {
			cur.WriteString(s + " ")
			continue
		}
		cur.WriteString(text)
		if t := strings.TrimSpace(cur.String()); t != "" {
			out = append(out, line{number: start, text: t})
		}
		cur.Reset()
	}
	if t := strings.TrimSpace(cur.String()); t != "" {
		out = append(out, line{number: start, text: t})
	}
	return out, sc.Err()
}
