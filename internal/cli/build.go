package cli

import (
	"context"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cruciblehq/offstage/internal/build"
	"github.com/cruciblehq/offstage/internal/finalize"
	"github.com/cruciblehq/offstage/internal/paths"
)

// Locations of the pipeline inputs and the target, shared by build and plan.
type Inputs struct {
	Root           string `env:"OFFSTAGE_ROOT" default:"${root}" help:"Target root of the runtime filesystem." placeholder:"DIR"`
	NativeDir      string `env:"OFFSTAGE_NATIVE_DIR" default:"${nativedir}" help:"Directory of staged .deb files." placeholder:"DIR"`
	InterpreterDir string `env:"OFFSTAGE_INTERPRETER_DIR" default:"${interpdir}" help:"Directory of staged wheels." placeholder:"DIR"`
	Manifest       string `env:"OFFSTAGE_MANIFEST" default:"${manifest}" help:"Requirements file." placeholder:"FILE"`
	PythonVersion  string `env:"OFFSTAGE_PYTHON_VERSION" default:"${pythonversion}" help:"Interpreter major.minor version." placeholder:"X.Y"`
	Arch           string `env:"OFFSTAGE_ARCH" help:"Debian architecture of the target. Defaults to the host." placeholder:"ARCH"`
}

// Returns pipeline options for the inputs.
func (in Inputs) options() build.Options {
	return build.Options{
		Root:           in.Root,
		NativeDir:      in.NativeDir,
		InterpreterDir: in.InterpreterDir,
		Manifest:       in.Manifest,
		PythonVersion:  in.PythonVersion,
		Arch:           in.Arch,
	}
}

// Represents the 'offstage build' command.
type BuildCmd struct {
	Inputs Inputs `embed:""`

	AppSource              string `env:"OFFSTAGE_APP_SOURCE" default:"${appsource}" help:"Application tree to copy." placeholder:"DIR"`
	AppDir                 string `env:"OFFSTAGE_APP_DIR" default:"${appdir}" help:"Application directory inside the root." placeholder:"DIR"`
	FlushOutput            bool   `env:"OFFSTAGE_FLUSH_OUTPUT" help:"Run the interpreter with unbuffered output."`
	CacheCompiledArtifacts bool   `env:"OFFSTAGE_CACHE_COMPILED_ARTIFACTS" default:"true" negatable:"" help:"Let the interpreter write bytecode caches."`
	SkipCaches             bool   `env:"OFFSTAGE_SKIP_CACHES" help:"Leave compiled caches out of the application copy."`
	InstallSelf            bool   `env:"OFFSTAGE_INSTALL_SELF" default:"true" negatable:"" help:"Copy this binary into the root for 'offstage serve'."`
	Report                 string `env:"OFFSTAGE_REPORT" help:"Write the run result as YAML to this file." placeholder:"FILE"`

	Commit CommitFlags `embed:"" prefix:"commit-" group:"Image commit"`
}

// Flags for the optional image commit.
type CommitFlags struct {
	Base        string `env:"OFFSTAGE_COMMIT_BASE" help:"Base image OCI archive. Enables the commit." placeholder:"FILE"`
	Output      string `env:"OFFSTAGE_COMMIT_OUTPUT" default:"." help:"Directory receiving image.tar." placeholder:"DIR"`
	Address     string `env:"OFFSTAGE_COMMIT_ADDRESS" default:"/run/containerd/containerd.sock" help:"Containerd socket." placeholder:"PATH"`
	Namespace   string `env:"OFFSTAGE_COMMIT_NAMESPACE" default:"offstage" help:"Containerd namespace."`
	Snapshotter string `env:"OFFSTAGE_COMMIT_SNAPSHOTTER" help:"Containerd snapshotter." placeholder:"NAME"`
	Platform    string `env:"OFFSTAGE_COMMIT_PLATFORM" help:"Target platform, e.g. linux/amd64. Defaults to the host." placeholder:"PLATFORM"`
}

// Executes the build command.
//
// Runs the pipeline to completion, or stops at the first failing phase.
// The run result is written to the report file even when the run fails.
func (c *BuildCmd) Run(ctx context.Context) error {
	opts := c.Inputs.options()
	opts.AppSource = c.AppSource
	opts.AppDir = c.AppDir
	opts.Flags = &finalize.Flags{FlushOutput: c.FlushOutput, CacheCompiledArtifacts: c.CacheCompiledArtifacts}
	opts.SkipCaches = c.SkipCaches || !c.CacheCompiledArtifacts
	opts.InstallSelf = c.InstallSelf

	if c.Commit.Base != "" {
		opts.Commit = &build.CommitOptions{
			Address:     c.Commit.Address,
			Namespace:   c.Commit.Namespace,
			Snapshotter: c.Commit.Snapshotter,
			BaseImage:   c.Commit.Base,
			Output:      c.Commit.Output,
			Platform:    c.Commit.Platform,
		}
	}

	result, err := build.Run(ctx, opts)
	if c.Report != "" && result != nil {
		if reportErr := writeReport(c.Report, result); reportErr != nil && err == nil {
			err = reportErr
		}
	}
	return err
}

// Writes the run result as YAML.
func writeReport(path string, result *build.Result) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, paths.DefaultFileMode)
}
