package paths

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	programName = "offstage"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644

	// Directory holding staged .deb files.
	NativeDir = "/opt/offstage/debs"

	// Directory holding staged wheel files.
	InterpreterDir = "/opt/offstage/wheels"

	// Requirements manifest for the interpreter packages.
	Manifest = "/opt/offstage/requirements.txt"

	// Application source tree copied by the finalizer.
	AppSource = "/src/app"

	// Destination of the application tree inside the runtime filesystem.
	AppDir = "/app"

	// Default target root of the runtime filesystem.
	Root = "/"

	// Default interpreter version used to derive site-packages.
	PythonVersion = "3.12"

	// Installation prefix for interpreter packages.
	Prefix = "/usr/local"

	// Environment flags written by the finalizer, relative to the root.
	RuntimeEnv = "/etc/offstage/runtime.env"

	// Location of the offstage binary inside the image.
	SelfBinary = "/usr/local/bin/offstage"

	// dpkg database, relative to the root.
	DpkgStatus = "/var/lib/dpkg/status"
	DpkgInfo   = "/var/lib/dpkg/info"
)

// Site-packages directory for the given interpreter version under [Prefix].
//
//	SitePackages("3.12") == "/usr/local/lib/python3.12/site-packages"
func SitePackages(pythonVersion string) string {
	return filepath.Join(Prefix, "lib", fmt.Sprintf("python%s", pythonVersion), "site-packages")
}

// Configuration files, in increasing order of precedence.
//
//	/etc/offstage/config.json
//	$XDG_CONFIG_DIRS/offstage/config.json
//	$XDG_CONFIG_HOME/offstage/config.json
func ConfigFiles() []string {
	rel := filepath.Join(programName, "config.json")
	files := []string{filepath.Join("/etc", rel)}
	for i := len(xdg.ConfigDirs) - 1; i >= 0; i-- {
		files = append(files, filepath.Join(xdg.ConfigDirs[i], rel))
	}
	return append(files, filepath.Join(xdg.ConfigHome, rel))
}
