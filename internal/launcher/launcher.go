package launcher

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/cruciblehq/offstage/internal/fault"
	"github.com/cruciblehq/offstage/internal/finalize"
	"github.com/cruciblehq/offstage/internal/rootfs"
)

const (

	// Address the service listens on. Fixed so the image contract never
	// depends on configuration.
	Address = "0.0.0.0:8000"

	// Module and attribute of the application object, relative to the
	// parent of the application directory.
	entryModule = "main"
	entryAttr   = "app"
)

// Holds launcher configuration.
type Config struct {
	AppDir                 string   // Host path of the application directory.
	FlushOutput            bool     // Unbuffered interpreter output.
	CacheCompiledArtifacts bool     // Whether the interpreter writes bytecode caches.
	Command                []string // Overrides the application command. Empty uses the uvicorn default.
	Environ                []string // Base environment. Nil uses the launcher's environment.

	addr string // Overrides [Address].
}

// Reads the environment flags recorded under rootDir and returns the
// configuration for the application in appDir (a path inside rootDir).
func LoadConfig(rootDir, appDir string) (Config, error) {
	root, err := rootfs.New(rootDir)
	if err != nil {
		return Config{}, err
	}
	flags, err := finalize.ReadFlags(root)
	if err != nil {
		return Config{}, err
	}
	dir, err := root.Path(appDir)
	if err != nil {
		return Config{}, fault.Wrap(fault.ErrFileSystem, err)
	}
	return Config{
		AppDir:                 dir,
		FlushOutput:            flags.FlushOutput,
		CacheCompiledArtifacts: flags.CacheCompiledArtifacts,
	}, nil
}

// Runs one application process on the service socket.
type Launcher struct {
	cfg      Config
	listener net.Listener
	cmd      *exec.Cmd
}

// Creates a new launcher. Nothing is bound until [Launcher.Start].
func New(cfg Config) *Launcher {
	return &Launcher{cfg: cfg}
}

// Returns the bound address, or nil before [Launcher.Start].
func (l *Launcher) Addr() net.Addr {
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// Checks the entry module, binds the socket and starts the application.
func (l *Launcher) Start() error {
	entry := filepath.Join(l.cfg.AppDir, entryModule+".py")
	if _, err := os.Stat(entry); err != nil {
		return fault.Wrapf(fault.ErrRuntime, "%w: %s", ErrEntryModule, entry)
	}

	addr := l.cfg.addr
	if addr == "" {
		addr = Address
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fault.Wrapf(fault.ErrRuntime, "%w %s: %v", ErrBind, addr, err)
	}
	l.listener = listener

	file, err := listener.(*net.TCPListener).File()
	if err != nil {
		listener.Close()
		return fault.Wrap(fault.ErrRuntime, err)
	}
	defer file.Close()

	env, err := l.environ()
	if err != nil {
		listener.Close()
		return err
	}

	args := l.command()
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = filepath.Dir(l.cfg.AppDir)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{file}

	if err := cmd.Start(); err != nil {
		listener.Close()
		return fault.Wrapf(fault.ErrRuntime, "%w: %v", ErrStart, err)
	}
	l.cmd = cmd

	slog.Info("application started", "address", listener.Addr().String(), "pid", cmd.Process.Pid, "command", args)
	return nil
}

// Waits for the application to exit and returns its exit status.
//
// Cancelling ctx forwards SIGTERM to the application; the launcher keeps
// waiting for it to exit. Signals delivered with [Launcher.Signal] are
// forwarded as-is.
func (l *Launcher) Wait(ctx context.Context) (int, error) {
	if l.cmd == nil {
		return 0, ErrNotStarted
	}
	defer l.listener.Close()

	done := make(chan error, 1)
	go func() { done <- l.cmd.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		slog.Info("forwarding termination to application")
		l.Signal(syscall.SIGTERM)
		err = <-done
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			code = 128 + int(exitErr.Sys().(syscall.WaitStatus).Signal())
		}
		slog.Info("application exited", "code", code)
		return code, nil
	}
	if err != nil {
		return 0, fault.Wrap(fault.ErrRuntime, err)
	}
	slog.Info("application exited", "code", 0)
	return 0, nil
}

// Starts the application and waits for it, forwarding SIGINT and SIGTERM
// received by the launcher. Returns the application's exit status.
func Run(ctx context.Context, cfg Config) (int, error) {
	l := New(cfg)
	if err := l.Start(); err != nil {
		return 0, err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case sig := <-sigs:
				slog.Debug("forwarding signal", "signal", sig.String())
				l.Signal(sig)
			case <-stop:
				return
			}
		}
	}()

	return l.Wait(ctx)
}

// Sends sig to the application.
func (l *Launcher) Signal(sig os.Signal) {
	if l.cmd == nil || l.cmd.Process == nil {
		return
	}
	if err := l.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		slog.Warn("failed to forward signal", "signal", sig.String(), "error", err)
	}
}

// Returns the application command line.
func (l *Launcher) command() []string {
	if len(l.cfg.Command) > 0 {
		return l.cfg.Command
	}
	module := filepath.Base(l.cfg.AppDir) + "." + entryModule + ":" + entryAttr
	return []string{"python3", "-m", "uvicorn", "--fd", "3", module}
}

// Builds the child environment: the base environment, the flags, then the
// application's .env file for variables not already set.
func (l *Launcher) environ() ([]string, error) {
	base := l.cfg.Environ
	if base == nil {
		base = os.Environ()
	}

	set := make(map[string]bool, len(base))
	env := make([]string, 0, len(base)+4)
	add := func(kv string) {
		key, _, _ := strings.Cut(kv, "=")
		if set[key] {
			return
		}
		set[key] = true
		env = append(env, kv)
	}

	flags := finalize.Flags{FlushOutput: l.cfg.FlushOutput, CacheCompiledArtifacts: l.cfg.CacheCompiledArtifacts}
	for _, kv := range flags.Environ() {
		add(kv)
	}
	for _, kv := range base {
		add(kv)
	}

	dotenv, err := l.dotenv()
	if err != nil {
		return nil, err
	}
	for _, k := range slices.Sorted(maps.Keys(dotenv)) {
		add(k + "=" + dotenv[k])
	}
	return env, nil
}

// Reads the first .env file found in the application directory or its
// parent.
func (l *Launcher) dotenv() (map[string]string, error) {
	for _, dir := range []string{l.cfg.AppDir, filepath.Dir(l.cfg.AppDir)} {
		p := filepath.Join(dir, ".env")
		if _, err := os.Stat(p); err != nil {
			continue
		}
		vars, err := godotenv.Read(p)
		if err != nil {
			return nil, fault.Wrapf(fault.ErrRuntime, "%s: %w", p, err)
		}
		slog.Debug("loaded application environment", "path", p, "variables", len(vars))
		return vars, nil
	}
	return nil, nil
}
