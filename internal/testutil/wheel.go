package testutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

// Describes a wheel to build.
type Wheel struct {
	Name           string            // Distribution name as written in METADATA.
	Version        string            // Distribution version.
	Tag            string            // Compatibility tag, defaults to "py3-none-any".
	Requires       []string          // Requires-Dist values.
	RequiresPython string            // Requires-Python value.
	Files          map[string]string // Archive contents by wheel-relative path.
	EntryPoints    string            // entry_points.txt body.
	BadHash        string            // Path whose RECORD hash is corrupted.
	Unrecorded     string            // Extra file left out of RECORD.
}

// Returns the dist-info directory name of the wheel.
func (w Wheel) DistInfo() string {
	return fmt.Sprintf("%s-%s.dist-info", normalizeFilename(w.Name), w.Version)
}

// Writes the wheel to dir and returns its path.
func WriteWheel(t testing.TB, dir string, w Wheel) string {
	t.Helper()

	if w.Tag == "" {
		w.Tag = "py3-none-any"
	}

	files := map[string]string{}
	for k, v := range w.Files {
		files[k] = v
	}

	var meta strings.Builder
	fmt.Fprintf(&meta, "Metadata-Version: 2.1\nName: %s\nVersion: %s\n", w.Name, w.Version)
	if w.RequiresPython != "" {
		fmt.Fprintf(&meta, "Requires-Python: %s\n", w.RequiresPython)
	}
	for _, r := range w.Requires {
		fmt.Fprintf(&meta, "Requires-Dist: %s\n", r)
	}
	meta.WriteString("\nLong description.\n")

	distInfo := w.DistInfo()
	files[distInfo+"/METADATA"] = meta.String()
	files[distInfo+"/WHEEL"] = fmt.Sprintf("Wheel-Version: 1.0\nGenerator: testutil\nRoot-Is-Purelib: true\nTag: %s\n", w.Tag)
	if w.EntryPoints != "" {
		files[distInfo+"/entry_points.txt"] = w.EntryPoints
	}

	var record strings.Builder
	for _, name := range sortedKeys(files) {
		body := []byte(files[name])
		sum := sha256.Sum256(body)
		enc := base64.RawURLEncoding.EncodeToString(sum[:])
		if name == w.BadHash {
			enc = base64.RawURLEncoding.EncodeToString(make([]byte, 32))
		}
		fmt.Fprintf(&record, "%s,sha256=%s,%d\n", name, enc, len(body))
	}
	fmt.Fprintf(&record, "%s/RECORD,,\n", distInfo)
	files[distInfo+"/RECORD"] = record.String()
	if w.Unrecorded != "" {
		files[w.Unrecorded] = "unrecorded"
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range sortedKeys(files) {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: Epoch}
		hdr.SetMode(0644)
		fw, err := zw.CreateHeader(hdr)
		must(t, err)
		_, err = fw.Write([]byte(files[name]))
		must(t, err)
	}
	must(t, zw.Close())

	p := filepath.Join(dir, fmt.Sprintf("%s-%s-%s.whl", normalizeFilename(w.Name), w.Version, w.Tag))
	must(t, os.WriteFile(p, buf.Bytes(), 0644))
	return p
}

// Escapes a distribution name for use in wheel filenames.
func normalizeFilename(name string) string {
	return strings.NewReplacer("-", "_", ".", "_").Replace(name)
}
