package wheel

import (
	"bytes"
	"fmt"
	"io"
	"net/mail"
	"os"
	"path"
	"path/filepath"
	"strings"

	version "github.com/aquasecurity/go-pep440-version"
	"github.com/klauspost/compress/zip"
	"github.com/opencontainers/go-digest"
)

// A parsed wheel archive.
type Wheel struct {
	Path           string          // Location of the .whl file.
	Digest         digest.Digest   // sha256 digest of the whole file.
	Filename       Filename        // Parsed filename.
	Name           string          // Distribution name from METADATA.
	Version        version.Version // Parsed version from METADATA.
	RequiresPython string          // Requires-Python specifier, may be empty.
	Requires       []Requirement   // Requires-Dist entries.
	Extras         []string        // Provides-Extra entries, normalized.
	DistInfo       string          // Name of the .dist-info directory.
	Purelib        bool            // Root-Is-Purelib from WHEEL.
	Record         []RecordEntry   // Parsed RECORD.
	EntryPoints    []EntryPoint    // console_scripts and gui_scripts.
	Metadata       []byte          // Raw METADATA.
}

// Returns "name version".
func (w *Wheel) String() string {
	return w.Name + " " + w.Version.String()
}

// Returns the normalized distribution name.
func (w *Wheel) Key() string {
	return Normalize(w.Name)
}

// Returns the prefix of archive paths installed into the .data scheme
// directories ("<name>-<version>.data/").
func (w *Wheel) DataDir() string {
	return strings.TrimSuffix(w.DistInfo, ".dist-info") + ".data"
}

// Opens and parses a wheel file.
//
// The filename must be a valid wheel name and agree with the distribution
// name and version in METADATA. RECORD is parsed but not verified; see
// [Wheel.Verify].
func Open(p string) (*Wheel, error) {
	fn, err := ParseFilename(filepath.Base(p))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	dgst, err := digest.FromReader(f)
	f.Close()
	if err != nil {
		return nil, err
	}

	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, p, err)
	}
	defer zr.Close()

	w := &Wheel{Path: p, Digest: dgst, Filename: fn}
	if w.DistInfo, err = findDistInfo(zr.File, fn); err != nil {
		return nil, err
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, zf := range zr.File {
		files[zf.Name] = zf
	}
	read := func(name string, required bool) ([]byte, error) {
		zf, ok := files[w.DistInfo+"/"+name]
		if !ok {
			if required {
				return nil, fmt.Errorf("%w: %s: missing %s/%s", ErrMalformed, fn, w.DistInfo, name)
			}
			return nil, nil
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, fn, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}

	if w.Metadata, err = read("METADATA", true); err != nil {
		return nil, err
	}
	if err := w.parseMetadata(); err != nil {
		return nil, err
	}

	descriptor, err := read("WHEEL", true)
	if err != nil {
		return nil, err
	}
	if err := w.parseDescriptor(descriptor); err != nil {
		return nil, err
	}

	record, err := read("RECORD", true)
	if err != nil {
		return nil, err
	}
	if w.Record, err = ParseRecord(bytes.NewReader(record)); err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}

	eps, err := read("entry_points.txt", false)
	if err != nil {
		return nil, err
	}
	if w.EntryPoints, err = ParseEntryPoints(eps); err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return w, nil
}

// Locates the single .dist-info directory matching the filename.
func findDistInfo(files []*zip.File, fn Filename) (string, error) {
	found := ""
	for _, zf := range files {
		top, _, ok := strings.Cut(zf.Name, "/")
		if !ok || !strings.HasSuffix(top, ".dist-info") || top == found {
			continue
		}
		if found != "" {
			return "", fmt.Errorf("%w: %s: multiple .dist-info directories", ErrMalformed, fn)
		}
		found = top
	}
	if found == "" {
		return "", fmt.Errorf("%w: %s: no .dist-info directory", ErrMalformed, fn)
	}

	name, _, _ := strings.Cut(strings.TrimSuffix(found, ".dist-info"), "-")
	if Normalize(name) != Normalize(fn.Name) {
		return "", fmt.Errorf("%w: %s: .dist-info %q does not match filename", ErrMalformed, fn, found)
	}
	return found, nil
}

// Reads the core metadata fields from the RFC 822 style METADATA file.
func (w *Wheel) parseMetadata() error {
	msg, err := mail.ReadMessage(bytes.NewReader(w.Metadata))
	if err != nil {
		return fmt.Errorf("%w: %s: METADATA: %v", ErrMalformed, w.Filename, err)
	}

	w.Name = strings.TrimSpace(msg.Header.Get("Name"))
	if w.Name == "" {
		return fmt.Errorf("%w: %s: METADATA has no Name", ErrMalformed, w.Filename)
	}
	if Normalize(w.Name) != Normalize(w.Filename.Name) {
		return fmt.Errorf("%w: %s: METADATA name %q does not match filename", ErrMalformed, w.Filename, w.Name)
	}

	raw := strings.TrimSpace(msg.Header.Get("Version"))
	if w.Version, err = version.Parse(raw); err != nil {
		return fmt.Errorf("%w: %s: version %q: %v", ErrMalformed, w.Filename, raw, err)
	}
	if fv, err := version.Parse(w.Filename.Version); err != nil || !fv.Equal(w.Version) {
		return fmt.Errorf("%w: %s: METADATA version %q does not match filename", ErrMalformed, w.Filename, raw)
	}

	w.RequiresPython = strings.TrimSpace(msg.Header.Get("Requires-Python"))
	for _, s := range msg.Header["Requires-Dist"] {
		req, err := ParseRequirement(s)
		if err != nil {
			return fmt.Errorf("%s: %w", w.Filename, err)
		}
		w.Requires = append(w.Requires, req)
	}
	for _, e := range msg.Header["Provides-Extra"] {
		w.Extras = append(w.Extras, Normalize(strings.TrimSpace(e)))
	}
	return nil
}

// Reads the WHEEL descriptor.
func (w *Wheel) parseDescriptor(body []byte) error {
	msg, err := mail.ReadMessage(bytes.NewReader(append(body, '\n')))
	if err != nil {
		return fmt.Errorf("%w: %s: WHEEL: %v", ErrMalformed, w.Filename, err)
	}
	wv := msg.Header.Get("Wheel-Version")
	if !strings.HasPrefix(wv, "1.") {
		return fmt.Errorf("%w: %s: unsupported Wheel-Version %q", ErrMalformed, w.Filename, wv)
	}
	w.Purelib = strings.EqualFold(strings.TrimSpace(msg.Header.Get("Root-Is-Purelib")), "true")
	return nil
}

// Checks every archive member against RECORD.
//
// Each member other than RECORD and its signatures must be listed with a
// matching sha256 digest and size. Directory entries are ignored.
func (w *Wheel) Verify() error {
	recorded := make(map[string]RecordEntry, len(w.Record))
	for _, e := range w.Record {
		recorded[e.Path] = e
	}

	return w.Walk(func(zf *zip.File) error {
		if isRecordFile(w.DistInfo, zf.Name) {
			return nil
		}
		e, ok := recorded[zf.Name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnrecorded, zf.Name)
		}
		algo, _, _ := strings.Cut(e.Hash, "=")
		if algo != "sha256" {
			return fmt.Errorf("%w: %s: unsupported hash %q", ErrHash, zf.Name, e.Hash)
		}

		rc, err := zf.Open()
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformed, zf.Name, err)
		}
		defer rc.Close()
		got, size, err := hashReader(rc)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformed, zf.Name, err)
		}
		if got != e.Hash {
			return fmt.Errorf("%w: %s: got %s, want %s", ErrHash, zf.Name, got, e.Hash)
		}
		if e.Size >= 0 && size != e.Size {
			return fmt.Errorf("%w: %s: size %d, want %d", ErrHash, zf.Name, size, e.Size)
		}
		return nil
	})
}

// Calls fn for every non-directory member of the archive, in archive order.
func (w *Wheel) Walk(fn func(*zip.File) error) error {
	zr, err := zip.OpenReader(w.Path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, w.Path, err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		if strings.HasSuffix(zf.Name, "/") {
			continue
		}
		if err := fn(zf); err != nil {
			return err
		}
	}
	return nil
}

// Reports whether name is the RECORD file or one of its signatures.
func isRecordFile(distInfo, name string) bool {
	if path.Dir(name) != distInfo {
		return false
	}
	switch path.Base(name) {
	case "RECORD", "RECORD.jws", "RECORD.p7s":
		return true
	}
	return false
}
