package build

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/cruciblehq/offstage/internal/deb"
	"github.com/cruciblehq/offstage/internal/fault"
	"github.com/cruciblehq/offstage/internal/finalize"
	"github.com/cruciblehq/offstage/internal/interp"
	"github.com/cruciblehq/offstage/internal/manifest"
	"github.com/cruciblehq/offstage/internal/native"
	"github.com/cruciblehq/offstage/internal/paths"
	"github.com/cruciblehq/offstage/internal/rootfs"
	"github.com/cruciblehq/offstage/internal/store"
)

// Controls a pipeline run.
type Options struct {
	Root           string          // Target root of the runtime filesystem.
	NativeDir      string          // Directory of staged .deb files.
	InterpreterDir string          // Directory of staged wheels.
	Manifest       string          // Requirements file.
	AppSource      string          // Application tree on the host.
	AppDir         string          // Application directory inside the root. Defaults to [paths.AppDir].
	PythonVersion  string          // Interpreter "major.minor". Defaults to [paths.PythonVersion].
	Arch           string          // Debian architecture of the target. Defaults to the host.
	Flags          *finalize.Flags // Environment flags. Nil uses [finalize.DefaultFlags].
	SkipCaches     bool            // Leave compiled caches out of the application copy.
	InstallSelf    bool            // Copy the running binary into the root for the launcher.
	Commit         *CommitOptions  // Image commit after Complete. Nil disables it.
}

// Fills in defaults for unset fields.
func (o Options) withDefaults() Options {
	if o.Root == "" {
		o.Root = paths.Root
	}
	if o.AppDir == "" {
		o.AppDir = paths.AppDir
	}
	if o.PythonVersion == "" {
		o.PythonVersion = paths.PythonVersion
	}
	if o.Arch == "" {
		o.Arch = native.HostArch()
	}
	if o.Flags == nil {
		f := finalize.DefaultFlags()
		o.Flags = &f
	}
	return o
}

// Packages a phase installed and skipped, as "name version".
type Report struct {
	Installed []string `yaml:"installed,omitempty"`
	Skipped   []string `yaml:"skipped,omitempty"`
}

// Outcome of a run. Returned even when the run fails.
type Result struct {
	Phase       Phase   `yaml:"phase"`           // Final phase, Complete or Aborted.
	History     []Phase `yaml:"history"`         // Phases visited, in order.
	Native      Report  `yaml:"native"`          // Native packages.
	Interpreter Report  `yaml:"interpreter"`     // Interpreter packages.
	AppEntries  int     `yaml:"app_entries"`     // Entries copied from the application tree.
	Image       string  `yaml:"image,omitempty"` // Exported OCI archive, when committed.
}

// Plans computed without touching the target.
type Preview struct {
	Native      *native.Plan
	Interpreter *interp.Plan
}

// Runs the pipeline from Start to Complete.
//
// The returned result reports the final phase whether or not the run
// succeeds. A failure is returned as a [PhaseError] wrapping the taxonomy
// error from [fault]. Cancelling ctx aborts the run between files and
// phases.
func Run(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	p := &pipeline{opts: opts, m: newMachine(), result: &Result{}}
	defer p.record()

	slog.Info("starting pipeline",
		"root", opts.Root,
		"native", opts.NativeDir,
		"interpreter", opts.InterpreterDir,
		"manifest", opts.Manifest,
		"app", opts.AppSource,
	)

	root, err := rootfs.New(opts.Root)
	if err != nil {
		return p.result, p.m.abort(err)
	}
	p.root = root

	var c *committer
	if opts.Commit != nil {
		if c, err = startCommit(ctx, *opts.Commit, root); err != nil {
			return p.result, p.m.abort(err)
		}
		defer c.close(context.WithoutCancel(ctx))
	}

	phases := []struct {
		phase Phase
		run   func(context.Context) error
	}{
		{PhaseNativeInstall, p.nativeInstall},
		{PhaseInterpreterInstall, p.interpreterInstall},
		{PhaseFinalize, p.finalize},
	}
	for _, ph := range phases {
		if err := ctx.Err(); err != nil {
			return p.result, p.m.abort(err)
		}
		if err := p.m.advance(ph.phase); err != nil {
			return p.result, p.m.abort(err)
		}
		if err := ph.run(ctx); err != nil {
			return p.result, p.m.abort(err)
		}
	}
	if err := p.m.advance(PhaseComplete); err != nil {
		return p.result, p.m.abort(err)
	}

	if c != nil {
		image, err := c.commit(ctx, root, *opts.Flags, opts.AppDir)
		if err != nil {
			return p.result, &PhaseError{Phase: PhaseComplete, Err: err}
		}
		p.result.Image = image
	}

	slog.Info("pipeline complete",
		"native", len(p.result.Native.Installed),
		"interpreter", len(p.result.Interpreter.Installed),
	)
	return p.result, nil
}

// Computes both install plans against the current target without
// modifying it.
func Plan(opts Options) (*Preview, error) {
	opts = opts.withDefaults()
	root, err := rootfs.New(opts.Root)
	if err != nil {
		return nil, err
	}
	p := &pipeline{opts: opts, root: root}

	nativePlan, err := p.planNative()
	if err != nil {
		return nil, &PhaseError{Phase: PhaseNativeInstall, Err: err}
	}
	interpPlan, err := p.planInterpreter()
	if err != nil {
		return nil, &PhaseError{Phase: PhaseInterpreterInstall, Err: err}
	}
	return &Preview{Native: nativePlan, Interpreter: interpPlan}, nil
}

// State of one run.
type pipeline struct {
	opts   Options
	root   *rootfs.Root
	m      *machine
	result *Result
}

// Copies the machine state into the result.
func (p *pipeline) record() {
	p.result.Phase = p.m.phase
	p.result.History = p.m.visited()
}

func (p *pipeline) planNative() (*native.Plan, error) {
	debs, err := store.LoadNative(p.opts.NativeDir)
	if err != nil {
		return nil, storeError(err)
	}
	status, err := deb.ReadStatus(p.root)
	if err != nil {
		return nil, tag(fault.ErrFileSystem, err)
	}
	return native.Resolver{Arch: p.opts.Arch}.Resolve(debs, status)
}

func (p *pipeline) nativeInstall(ctx context.Context) error {
	plan, err := p.planNative()
	if err != nil {
		return err
	}

	in := native.NewInstaller(p.root)
	if err := in.Verify(plan); err != nil {
		return err
	}
	if err := in.Install(ctx, plan); err != nil {
		return tag(fault.ErrFileSystem, err)
	}

	for _, s := range plan.Steps {
		entry := s.Package.Name + " " + s.Package.Version
		if s.Action == native.ActionInstall {
			p.result.Native.Installed = append(p.result.Native.Installed, entry)
		} else {
			p.result.Native.Skipped = append(p.result.Native.Skipped, entry)
		}
	}
	return nil
}

func (p *pipeline) planInterpreter() (*interp.Plan, error) {
	wheels, err := store.LoadInterpreter(p.opts.InterpreterDir)
	if err != nil {
		return nil, storeError(err)
	}
	m, err := loadManifest(p.opts.Manifest)
	if err != nil {
		return nil, err
	}

	env := interp.DefaultEnvironment(p.opts.PythonVersion)
	if env.Installed, err = interp.ScanInstalled(p.root, paths.SitePackages(p.opts.PythonVersion)); err != nil {
		return nil, err
	}
	return interp.Resolve(m, wheels, env)
}

func (p *pipeline) interpreterInstall(ctx context.Context) error {
	plan, err := p.planInterpreter()
	if err != nil {
		return err
	}

	in := interp.NewInstaller(p.root, interp.DefaultLayout(p.opts.PythonVersion))
	if err := in.Verify(plan); err != nil {
		return err
	}
	if err := in.Install(ctx, plan); err != nil {
		return tag(fault.ErrFileSystem, err)
	}

	for _, s := range plan.Selections {
		entry := s.Wheel.String()
		if s.Action == interp.ActionInstall {
			p.result.Interpreter.Installed = append(p.result.Interpreter.Installed, entry)
		} else {
			p.result.Interpreter.Skipped = append(p.result.Interpreter.Skipped, entry)
		}
	}
	return nil
}

func (p *pipeline) finalize(ctx context.Context) error {
	n, err := finalize.CopyTree(ctx, p.root, p.opts.AppSource, p.opts.AppDir, finalize.CopyOptions{SkipCaches: p.opts.SkipCaches})
	if err != nil {
		return err
	}
	p.result.AppEntries = n

	if err := finalize.WriteFlags(p.root, *p.opts.Flags); err != nil {
		return err
	}
	slog.Info("environment flags written", "path", paths.RuntimeEnv, "flags", p.opts.Flags.String())

	if p.opts.InstallSelf {
		if err := finalize.InstallSelf(p.root); err != nil {
			return err
		}
		slog.Info("launcher installed", "path", paths.SelfBinary)
	}
	return nil
}

// Reads the requirements file. A missing file is a filesystem error, a
// malformed one a resolution error.
func loadManifest(path string) (*manifest.Manifest, error) {
	m, err := manifest.Load(path)
	switch {
	case err == nil:
		return m, nil
	case errors.Is(err, fs.ErrNotExist):
		return nil, tag(fault.ErrFileSystem, err)
	default:
		return nil, tag(fault.ErrResolution, err)
	}
}

// Classifies an artifact store error: unreadable directories and files are
// filesystem errors, unparsable artifacts integrity errors.
func storeError(err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return tag(fault.ErrFileSystem, err)
	}
	return tag(fault.ErrIntegrity, err)
}

// Tags err with kind unless it already carries a taxonomy kind.
func tag(kind, err error) error {
	if err == nil || fault.ExitCode(err) != fault.ExitFailure {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fault.Wrap(kind, err)
}
