package interp

import (
	"path"

	"github.com/cruciblehq/offstage/internal/paths"
)

// Install scheme directories, absolute within the runtime filesystem.
type Layout struct {
	Purelib     string // Pure Python modules.
	Platlib     string // Platform-specific modules.
	Scripts     string // Executables.
	Data        string // Prefix for .data/data files.
	Headers     string // Parent of per-distribution include directories.
	Interpreter string // Interpreter used in script shebangs.
}

// Returns the scheme of a CPython installed under [paths.Prefix].
func DefaultLayout(pythonVersion string) Layout {
	site := paths.SitePackages(pythonVersion)
	return Layout{
		Purelib:     site,
		Platlib:     site,
		Scripts:     path.Join(paths.Prefix, "bin"),
		Data:        paths.Prefix,
		Headers:     path.Join(paths.Prefix, "include", "python"+pythonVersion),
		Interpreter: path.Join(paths.Prefix, "bin", "python"+pythonVersion),
	}
}
