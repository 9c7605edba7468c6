package native

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/cruciblehq/offstage/internal/deb"
	"github.com/cruciblehq/offstage/internal/fault"
	"github.com/cruciblehq/offstage/internal/paths"
	"github.com/cruciblehq/offstage/internal/rootfs"
)

// Control files copied to the dpkg info directory, and their modes.
var infoFiles = map[string]fs.FileMode{
	"md5sums":   0644,
	"conffiles": 0644,
	"triggers":  0644,
	"shlibs":    0644,
	"symbols":   0644,
	"templates": 0644,
	"config":    0755,
	"preinst":   0755,
	"postinst":  0755,
	"prerm":     0755,
	"postrm":    0755,
}

// Installs native plans into a runtime filesystem.
type Installer struct {
	root *rootfs.Root
}

// Creates a new [Installer] writing into root.
func NewInstaller(root *rootfs.Root) *Installer {
	return &Installer{root: root}
}

// Checks every package the plan installs against its md5sums.
//
// Errors wrap [fault.ErrIntegrity] and name the package.
func (in *Installer) Verify(plan *Plan) error {
	for _, pkg := range plan.Installs() {
		if err := pkg.Verify(); err != nil {
			return fault.Wrap(fault.ErrIntegrity, &fault.PackageError{Package: pkg.Name, Err: err})
		}
		slog.Debug("verified native package", "package", pkg.Name, "version", pkg.Version)
	}
	return nil
}

// Applies the plan in order.
//
// Each package is unpacked, its dpkg info files are written and the status
// database is rewritten before the next package starts, so an interrupted
// run leaves a consistent database. Files owned by a replaced version but
// absent from the new one are removed.
func (in *Installer) Install(ctx context.Context, plan *Plan) error {
	status, err := deb.ReadStatus(in.root)
	if err != nil {
		return fault.Wrap(fault.ErrFileSystem, err)
	}

	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		pkg := step.Package
		if step.Action == ActionSkip {
			slog.Info("native package already installed", "package", pkg.Name, "version", pkg.Version)
			continue
		}
		if err := in.install(pkg, step.Replaces, status); err != nil {
			return err
		}
	}
	return nil
}

func (in *Installer) install(pkg *deb.Package, replaces string, status *deb.Status) error {
	var previous []string
	if replaces != "" {
		previous = in.readList(pkg.Name)
	}

	files, err := pkg.Extract(in.root)
	if err != nil {
		if !errors.Is(err, fault.ErrFileSystem) {
			err = fault.Wrap(fault.ErrIntegrity, err)
		}
		return &fault.PackageError{Package: pkg.Name, Err: err}
	}

	if err := in.removeObsolete(pkg.Name, previous, files); err != nil {
		return &fault.PackageError{Package: pkg.Name, Err: err}
	}
	if err := in.writeInfo(pkg, files); err != nil {
		return &fault.PackageError{Package: pkg.Name, Err: err}
	}

	state := deb.StatusInstalled
	if pkg.HasMaintainerScripts() {
		state = deb.StatusUnpacked
	}
	status.Put(deb.StatusParagraph(pkg, state))
	if err := status.Write(in.root); err != nil {
		return &fault.PackageError{Package: pkg.Name, Err: err}
	}

	if replaces != "" {
		slog.Info("replaced native package", "package", pkg.Name, "from", replaces, "to", pkg.Version, "status", state)
	} else {
		slog.Info("installed native package", "package", pkg.Name, "version", pkg.Version, "status", state)
	}
	return nil
}

// Writes <pkg>.list and the control files to the dpkg info directory,
// removing info files left by a previous version.
func (in *Installer) writeInfo(pkg *deb.Package, files []string) error {
	list := strings.Join(files, "\n") + "\n"
	if err := in.root.WriteFile(infoPath(pkg.Name, "list"), []byte(list), paths.DefaultFileMode); err != nil {
		return err
	}

	names := make([]string, 0, len(infoFiles))
	for name := range infoFiles {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := infoPath(pkg.Name, name)
		body, ok := pkg.Files[name]
		if !ok {
			if err := in.root.Remove(p); err != nil {
				return err
			}
			continue
		}
		if err := in.root.WriteFile(p, body, infoFiles[name]); err != nil {
			return err
		}
		slog.Debug("wrote dpkg info file", "package", pkg.Name, "path", p)
	}
	return nil
}

// Returns the paths recorded in the package's current .list file.
func (in *Installer) readList(name string) []string {
	data, err := in.root.ReadFile(infoPath(name, "list"))
	if err != nil {
		return nil
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

// Removes non-directory paths present in previous but not in current.
func (in *Installer) removeObsolete(name string, previous, current []string) error {
	keep := make(map[string]bool, len(current))
	for _, p := range current {
		keep[p] = true
	}

	for i := len(previous) - 1; i >= 0; i-- {
		p := previous[i]
		if keep[p] || p == "/." || p == "" {
			continue
		}
		info, err := in.root.Lstat(p)
		if err != nil || info.IsDir() {
			continue
		}
		if err := in.root.Remove(p); err != nil {
			return err
		}
		slog.Debug("removed obsolete file", "package", name, "path", p)
	}
	return nil
}

func infoPath(pkg, ext string) string {
	return path.Join(paths.DpkgInfo, pkg+"."+ext)
}
