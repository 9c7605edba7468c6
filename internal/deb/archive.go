package deb

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/blakesmith/ar"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
	"github.com/ulikunitz/xz"
)

// Control archive members kept as maintainer scripts or metadata files.
var controlFiles = map[string]bool{
	"preinst":   true,
	"postinst":  true,
	"prerm":     true,
	"postrm":    true,
	"config":    true,
	"conffiles": true,
	"triggers":  true,
	"shlibs":    true,
	"symbols":   true,
	"templates": true,
}

// A parsed Debian binary package.
type Package struct {
	Path         string            // Location of the .deb file.
	Digest       digest.Digest     // Digest of the whole .deb file.
	Control      Paragraph         // The control paragraph.
	Name         string            // Package field.
	Version      string            // Version field.
	Architecture string            // Architecture field.
	Depends      []Clause          // Depends field.
	PreDepends   []Clause          // Pre-Depends field.
	Provides     []Relation        // Provides field.
	MD5Sums      map[string]string // Hex md5 by path relative to the root, without a leading slash.
	Files        map[string][]byte // Maintainer scripts and control metadata files by name.
	dataMember   string            // Name of the data archive member.
}

// Returns "name version".
func (p *Package) String() string {
	return p.Name + " " + p.Version
}

// Reports whether the package ships any maintainer script that dpkg would
// run at configure time.
func (p *Package) HasMaintainerScripts() bool {
	for _, s := range []string{"preinst", "postinst"} {
		if _, ok := p.Files[s]; ok {
			return true
		}
	}
	return false
}

// Returns every relation clause the package needs before it can be
// configured: Pre-Depends followed by Depends.
func (p *Package) Requirements() []Clause {
	out := make([]Clause, 0, len(p.PreDepends)+len(p.Depends))
	out = append(out, p.PreDepends...)
	return append(out, p.Depends...)
}

// Opens and parses a .deb file.
//
// The ar container must start with a "debian-binary" member declaring format
// 2.x, followed by the control and data archives. Any structural problem is
// reported as [ErrMalformed] or [ErrMissingMember].
func Open(path string) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dgst, err := digest.FromReader(f)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	pkg := &Package{
		Path:    path,
		Digest:  dgst,
		MD5Sums: make(map[string]string),
		Files:   make(map[string][]byte),
	}

	sawBinary, sawControl := false, false
	rd := ar.NewReader(f)
	for {
		hdr, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		name := memberName(hdr.Name)
		switch {
		case name == "debian-binary":
			b, err := io.ReadAll(io.LimitReader(rd, 64))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			if !strings.HasPrefix(string(b), "2.") {
				return nil, fmt.Errorf("%w: unsupported format %q", ErrMalformed, strings.TrimSpace(string(b)))
			}
			sawBinary = true
		case strings.HasPrefix(name, "control.tar"):
			if err := pkg.readControl(name, rd); err != nil {
				return nil, err
			}
			sawControl = true
		case strings.HasPrefix(name, "data.tar"):
			pkg.dataMember = name
		}
	}

	switch {
	case !sawBinary:
		return nil, fmt.Errorf("%w: debian-binary", ErrMissingMember)
	case !sawControl:
		return nil, fmt.Errorf("%w: control.tar", ErrMissingMember)
	case pkg.dataMember == "":
		return nil, fmt.Errorf("%w: data.tar", ErrMissingMember)
	}

	if err := pkg.parseFields(); err != nil {
		return nil, err
	}
	return pkg, nil
}

// Extracts the control paragraph, md5sums and scripts from the control
// archive.
func (p *Package) readControl(member string, r io.Reader) error {
	dec, err := decompress(member, r)
	if err != nil {
		return err
	}
	defer dec.Close()

	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: control archive: %v", ErrMalformed, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := path.Base(hdr.Name)
		body, err := io.ReadAll(tr)
		if err != nil {
			return fmt.Errorf("%w: control archive: %v", ErrMalformed, err)
		}

		switch {
		case name == "control":
			para, err := ParseParagraph(bytes.NewReader(body))
			if err != nil {
				return err
			}
			p.Control = para
		case name == "md5sums":
			if err := p.parseMD5Sums(body); err != nil {
				return err
			}
			p.Files[name] = body
		case controlFiles[name]:
			p.Files[name] = body
		}
	}
}

// Parses "<md5>  <path>" lines.
func (p *Package) parseMD5Sums(body []byte) error {
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		sum, file, ok := strings.Cut(line, " ")
		if !ok || len(sum) != 32 {
			return fmt.Errorf("%w: md5sums line %q", ErrMalformed, line)
		}
		p.MD5Sums[cleanPath(strings.TrimSpace(file))] = strings.ToLower(sum)
	}
	return sc.Err()
}

// Populates the typed fields from the control paragraph.
func (p *Package) parseFields() error {
	p.Name = p.Control.Get("Package")
	p.Version = p.Control.Get("Version")
	p.Architecture = p.Control.Get("Architecture")

	if p.Name == "" {
		return fmt.Errorf("%w: control has no Package field", ErrMalformed)
	}
	if !ValidVersion(p.Version) {
		return fmt.Errorf("%w: %s: %w %q", ErrMalformed, p.Name, ErrVersion, p.Version)
	}

	var err error
	if p.Depends, err = ParseClauses(p.Control.Get("Depends")); err != nil {
		return fmt.Errorf("%w: %s: Depends: %w", ErrMalformed, p.Name, err)
	}
	if p.PreDepends, err = ParseClauses(p.Control.Get("Pre-Depends")); err != nil {
		return fmt.Errorf("%w: %s: Pre-Depends: %w", ErrMalformed, p.Name, err)
	}
	provides, err := ParseClauses(p.Control.Get("Provides"))
	if err != nil {
		return fmt.Errorf("%w: %s: Provides: %w", ErrMalformed, p.Name, err)
	}
	for _, c := range provides {
		p.Provides = append(p.Provides, c...)
	}
	return nil
}

// Opens the data archive as an uncompressed tar stream.
func (p *Package) openData() (io.ReadCloser, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, err
	}

	rd := ar.NewReader(f)
	for {
		hdr, err := rd.Next()
		if err != nil {
			f.Close()
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: %s", ErrMissingMember, p.dataMember)
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if memberName(hdr.Name) != p.dataMember {
			continue
		}
		dec, err := decompress(p.dataMember, rd)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &stackedCloser{Reader: dec, closers: []io.Closer{dec, f}}, nil
	}
}

// Returns the sorted list of md5sums paths.
func (p *Package) md5Paths() []string {
	out := make([]string, 0, len(p.MD5Sums))
	for k := range p.MD5Sums {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Normalizes ar member names; GNU ar terminates names with a slash.
func memberName(name string) string {
	return strings.TrimRight(strings.TrimSpace(name), "/")
}

// Strips "./" and leading slashes from an archive path.
func cleanPath(p string) string {
	p = path.Clean("/" + strings.TrimPrefix(p, "./"))
	return strings.TrimPrefix(p, "/")
}

// Wraps r in the decompressor matching the member's extension.
func decompress(member string, r io.Reader) (io.ReadCloser, error) {
	switch path.Ext(member) {
	case ".tar":
		return io.NopCloser(r), nil
	case ".gz":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, member, err)
		}
		return zr, nil
	case ".xz":
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, member, err)
		}
		return io.NopCloser(xr), nil
	case ".zst":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, member, err)
		}
		return zr.IOReadCloser(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, member)
}

// Closes a chain of closers in order after reading from the first.
type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
