package interp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/cruciblehq/offstage/internal/fault"
	"github.com/cruciblehq/offstage/internal/rootfs"
	"github.com/cruciblehq/offstage/internal/wheel"
)

// Value written to the INSTALLER file of every installed distribution.
const installerName = "offstage"

// Installs interpreter plans into a runtime filesystem.
type Installer struct {
	root   *rootfs.Root
	layout Layout
}

// Creates a new [Installer] writing into root with the given scheme.
func NewInstaller(root *rootfs.Root, layout Layout) *Installer {
	return &Installer{root: root, layout: layout}
}

// Checks every wheel the plan installs against its RECORD.
func (in *Installer) Verify(plan *Plan) error {
	for _, w := range plan.Installs() {
		if err := w.Verify(); err != nil {
			return fault.Wrap(fault.ErrIntegrity, &fault.PackageError{Package: w.Name, Err: err})
		}
		slog.Debug("verified interpreter package", "package", w.Name, "version", w.Version.String())
	}
	return nil
}

// Applies the plan in order.
func (in *Installer) Install(ctx context.Context, plan *Plan) error {
	for _, sel := range plan.Selections {
		if err := ctx.Err(); err != nil {
			return err
		}
		w := sel.Wheel
		if sel.Action == ActionSkip {
			slog.Info("interpreter package already installed", "package", w.Name, "version", w.Version.String())
			continue
		}

		if sel.Replaces != nil {
			if err := in.uninstall(*sel.Replaces); err != nil {
				return &fault.PackageError{Package: w.Name, Err: err}
			}
		}
		if err := in.install(ctx, w); err != nil {
			if !errors.Is(err, fault.ErrFileSystem) && !errors.Is(err, context.Canceled) {
				err = fault.Wrap(fault.ErrIntegrity, err)
			}
			return &fault.PackageError{Package: w.Name, Err: err}
		}

		if sel.Replaces != nil {
			slog.Info("replaced interpreter package", "package", w.Name, "from", sel.Replaces.Version, "to", w.Version.String())
		} else {
			slog.Info("installed interpreter package", "package", w.Name, "version", w.Version.String())
		}
	}
	return nil
}

// Unpacks one wheel, generates its scripts and writes INSTALLER and RECORD.
func (in *Installer) install(ctx context.Context, w *wheel.Wheel) error {
	libDir := in.layout.Platlib
	if w.Purelib {
		libDir = in.layout.Purelib
	}
	distInfo := path.Join(libDir, w.DistInfo)
	recordPath := path.Join(distInfo, "RECORD")

	var record []wheel.RecordEntry
	add := func(dest string, body []byte) {
		record = append(record, wheel.RecordEntry{
			Path: relativeTo(libDir, dest),
			Hash: wheel.HashOf(body),
			Size: int64(len(body)),
		})
	}

	err := w.Walk(func(zf *zip.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		dest, script, ok := in.destination(w, libDir, zf.Name)
		if !ok || dest == recordPath {
			return nil
		}

		rc, err := zf.Open()
		if err != nil {
			return err
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return err
		}

		mode := zf.Mode().Perm()
		if mode == 0 {
			mode = 0644
		}
		if script {
			body = rewriteShebang(body, in.layout.Interpreter)
			mode = 0755
		}
		if err := in.root.WriteEntry(rootfs.Entry{Path: dest, Type: rootfs.TypeFile, Mode: mode, ModTime: zf.Modified}, bytes.NewReader(body)); err != nil {
			return err
		}
		add(dest, body)
		slog.Debug("installed file", "package", w.Name, "path", dest)
		return nil
	})
	if err != nil {
		return err
	}

	for _, ep := range w.EntryPoints {
		dest := path.Join(in.layout.Scripts, ep.Name)
		body := entryPointScript(in.layout.Interpreter, ep)
		if err := in.root.WriteFile(dest, body, 0755); err != nil {
			return err
		}
		add(dest, body)
		slog.Debug("generated script", "package", w.Name, "path", dest)
	}

	installer := []byte(installerName + "\n")
	installerPath := path.Join(distInfo, "INSTALLER")
	if err := in.root.WriteFile(installerPath, installer, 0644); err != nil {
		return err
	}
	add(installerPath, installer)

	sort.Slice(record, func(i, j int) bool { return record[i].Path < record[j].Path })
	record = append(record, wheel.RecordEntry{Path: relativeTo(libDir, recordPath), Size: -1})

	var buf bytes.Buffer
	if err := wheel.WriteRecord(&buf, record); err != nil {
		return err
	}
	return in.root.WriteFile(recordPath, buf.Bytes(), 0644)
}

// Maps an archive member to its install path. Reports whether the member is
// a script and whether it is installed at all.
func (in *Installer) destination(w *wheel.Wheel, libDir, name string) (string, bool, bool) {
	rest, ok := strings.CutPrefix(name, w.DataDir()+"/")
	if !ok {
		return path.Join(libDir, name), false, true
	}

	scheme, sub, _ := strings.Cut(rest, "/")
	switch scheme {
	case "purelib":
		return path.Join(in.layout.Purelib, sub), false, true
	case "platlib":
		return path.Join(in.layout.Platlib, sub), false, true
	case "scripts":
		return path.Join(in.layout.Scripts, sub), true, true
	case "data":
		return path.Join(in.layout.Data, sub), false, true
	case "headers":
		return path.Join(in.layout.Headers, w.Name, sub), false, true
	}
	slog.Warn("ignoring file in unknown install scheme", "package", w.Name, "path", name)
	return "", false, false
}

// Removes every file listed in an installed distribution's RECORD, then the
// directories left empty.
func (in *Installer) uninstall(old Installed) error {
	libDir := in.layout.Purelib
	distInfo := path.Join(libDir, old.DistInfo)

	data, err := in.root.ReadFile(path.Join(distInfo, "RECORD"))
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("installed distribution has no RECORD, leaving files in place", "package", old.Name, "version", old.Version)
		return nil
	}
	if err != nil {
		return fault.Wrap(fault.ErrFileSystem, err)
	}
	entries, err := wheel.ParseRecord(bytes.NewReader(data))
	if err != nil {
		return fault.Wrap(fault.ErrIntegrity, err)
	}

	dirs := map[string]bool{distInfo: true}
	for _, e := range entries {
		p := path.Join(libDir, e.Path)
		if err := in.root.Remove(p); err != nil {
			return err
		}
		for d := path.Dir(p); d != libDir && d != "/" && d != "."; d = path.Dir(d) {
			dirs[d] = true
		}
	}

	// Deepest first so parents are empty by the time they are tried.
	ordered := make([]string, 0, len(dirs))
	for d := range dirs {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })
	for _, d := range ordered {
		if info, err := in.root.Lstat(d); err == nil && info.IsDir() {
			in.root.Remove(d)
		}
	}

	slog.Info("removed interpreter package", "package", old.Name, "version", old.Version)
	return nil
}

// Returns p relative to base as RECORD expects, using ".." for paths
// outside base.
func relativeTo(base, p string) string {
	b := strings.Split(strings.Trim(base, "/"), "/")
	t := strings.Split(strings.Trim(p, "/"), "/")
	i := 0
	for i < len(b) && i < len(t) && b[i] == t[i] {
		i++
	}
	parts := make([]string, 0, len(b)-i+len(t)-i)
	for range b[i:] {
		parts = append(parts, "..")
	}
	return path.Join(append(parts, t[i:]...)...)
}
