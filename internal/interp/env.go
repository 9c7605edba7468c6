package interp

import (
	"fmt"
	goruntime "runtime"
	"strconv"
	"strings"

	version "github.com/aquasecurity/go-pep440-version"

	"github.com/cruciblehq/offstage/internal/wheel"
)

// Machine names used in platform tags for Go architectures that differ.
var machines = map[string]string{
	"amd64":   "x86_64",
	"arm64":   "aarch64",
	"386":     "i686",
	"arm":     "armv7l",
	"ppc64le": "ppc64le",
	"s390x":   "s390x",
	"riscv64": "riscv64",
}

// Oldest glibc minor version covered by manylinux tags.
const oldestGlibcMinor = 5

// Describes the interpreter the wheels are installed for.
type Environment struct {
	PythonVersion string               // "major.minor", e.g. "3.12".
	FullVersion   string               // "major.minor.micro", used for Requires-Python and markers.
	Machine       string               // e.g. "x86_64".
	GlibcMinor    int                  // glibc 2.x minor version of the target.
	Installed     map[string]Installed // Distributions already on the target, by normalized name.
}

// Returns a Linux CPython environment for pythonVersion on the host machine
// with glibc 2.36.
func DefaultEnvironment(pythonVersion string) Environment {
	machine, ok := machines[goruntime.GOARCH]
	if !ok {
		machine = goruntime.GOARCH
	}
	return Environment{
		PythonVersion: pythonVersion,
		FullVersion:   pythonVersion + ".0",
		Machine:       machine,
		GlibcMinor:    36,
	}
}

// Splits the interpreter version into major and minor numbers.
func (e Environment) version() (int, int, error) {
	majStr, minStr, ok := strings.Cut(e.PythonVersion, ".")
	if !ok {
		return 0, 0, fmt.Errorf("invalid python version %q", e.PythonVersion)
	}
	major, err := strconv.Atoi(majStr)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid python version %q", e.PythonVersion)
	}
	minor, err := strconv.Atoi(minStr)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid python version %q", e.PythonVersion)
	}
	return major, minor, nil
}

// Returns the platform tags the target supports, most specific first.
func (e Environment) Platforms() []string {
	var out []string
	for minor := e.GlibcMinor; minor >= oldestGlibcMinor; minor-- {
		out = append(out, fmt.Sprintf("manylinux_2_%d_%s", minor, e.Machine))
		switch minor {
		case 17:
			out = append(out, "manylinux2014_"+e.Machine)
		case 12:
			out = append(out, "manylinux2010_"+e.Machine)
		case 5:
			out = append(out, "manylinux1_"+e.Machine)
		}
	}
	return append(out, "linux_"+e.Machine, "any")
}

// Returns the preference rank of a tag, lower is better, or -1 when the
// target cannot use it.
func (e Environment) rank(t wheel.Tag) int {
	major, minor, err := e.version()
	if err != nil {
		return -1
	}

	platform := -1
	for i, p := range e.Platforms() {
		if p == t.Platform {
			platform = i
			break
		}
	}
	if platform < 0 {
		return -1
	}

	cp := fmt.Sprintf("cp%d%d", major, minor)
	var interp int
	switch {
	case t.ABI == cp && t.Interpreter == cp:
		interp = 0
	case t.ABI == "abi3" && strings.HasPrefix(t.Interpreter, "cp"):
		v, ok := tagMinor(t.Interpreter, "cp", major)
		if !ok || v > minor {
			return -1
		}
		interp = 1 + (minor - v)
	case t.ABI == "none":
		switch {
		case t.Interpreter == cp:
			interp = 100
		case t.Interpreter == fmt.Sprintf("py%d", major):
			interp = 300
		default:
			v, ok := tagMinor(t.Interpreter, "py", major)
			if !ok || v > minor {
				return -1
			}
			interp = 200 + (minor - v)
		}
	default:
		return -1
	}
	return interp*1000 + platform
}

// Parses the minor version of tags like "cp310" or "py38" for the given
// major version.
func tagMinor(tag, prefix string, major int) (int, bool) {
	rest, ok := strings.CutPrefix(tag, prefix+strconv.Itoa(major))
	if !ok || rest == "" {
		return 0, false
	}
	v, err := strconv.Atoi(rest)
	return v, err == nil
}

// Returns the best rank among the wheel's tags, or -1 if it is incompatible.
func (e Environment) wheelRank(w *wheel.Wheel) int {
	best := -1
	for _, t := range w.Filename.Tags() {
		if r := e.rank(t); r >= 0 && (best < 0 || r < best) {
			best = r
		}
	}
	return best
}

// Reports whether the wheel's Requires-Python admits the target interpreter.
func (e Environment) allowsPython(w *wheel.Wheel) bool {
	if w.RequiresPython == "" {
		return true
	}
	spec, err := version.NewSpecifiers(strings.Join(strings.Fields(w.RequiresPython), ""), version.WithPreRelease(true))
	if err != nil {
		return false
	}
	v, err := version.Parse(e.FullVersion)
	if err != nil {
		return false
	}
	return spec.Check(v)
}

// Returns the marker variables of the target with extra set.
func (e Environment) markers(extra string) map[string]string {
	return map[string]string{
		"os_name":                        "posix",
		"sys_platform":                   "linux",
		"platform_system":                "Linux",
		"platform_machine":               e.Machine,
		"platform_python_implementation": "CPython",
		"implementation_name":            "cpython",
		"implementation_version":         e.FullVersion,
		"python_version":                 e.PythonVersion,
		"python_full_version":            e.FullVersion,
		"extra":                          extra,
	}
}
