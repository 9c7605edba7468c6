package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"

	"github.com/cruciblehq/offstage/internal"
	"github.com/cruciblehq/offstage/internal/paths"
)

// Represents the root command for offstage.
type Root struct {
	Quiet   bool       `short:"q" env:"OFFSTAGE_QUIET" help:"Suppress informational output."`
	Verbose bool       `short:"v" env:"OFFSTAGE_VERBOSE" help:"Enable verbose output."`
	Debug   bool       `short:"d" env:"OFFSTAGE_DEBUG" help:"Enable debug output."`
	Build   BuildCmd   `cmd:"" help:"Install the staged artifacts into the runtime filesystem."`
	Plan    PlanCmd    `cmd:"" help:"Print the install plans without changing anything."`
	List    ListCmd    `cmd:"" help:"Print the artifacts in the store."`
	Serve   ServeCmd   `cmd:"" help:"Start the application on the service port."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return run(ctx, os.Args[1:], os.Stdout)
}

// Runs the command line args, writing command output to stdout.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	var root Root

	parser, err := kong.New(&root,
		kong.Name(internal.Name),
		kong.Description("Offline dependency installer and launcher.\n\nInstalls pre-staged native packages and interpreter wheels into a runtime filesystem, then serves the application."),
		kong.Configuration(kong.JSON, paths.ConfigFiles()...),
		kong.Writers(stdout, os.Stderr),
		kong.Vars{
			"version":       internal.VersionString(),
			"root":          paths.Root,
			"nativedir":     paths.NativeDir,
			"interpdir":     paths.InterpreterDir,
			"manifest":      paths.Manifest,
			"appsource":     paths.AppSource,
			"appdir":        paths.AppDir,
			"pythonversion": paths.PythonVersion,
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	if err != nil {
		return err
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		var parseErr *kong.ParseError
		if errors.As(err, &parseErr) {
			if parseErr.Context != nil {
				parseErr.Context.PrintUsage(true)
			}
			return fmt.Errorf("%w: %v", ErrUsage, err)
		}
		return err
	}

	configureLogger(root)

	return kongCtx.Run()
}

// Configures the global logger based on CLI flags.
func configureLogger(root Root) {
	debug := root.Debug || internal.IsDebug()
	quiet := root.Quiet || internal.IsQuiet()
	verbose := root.Verbose || internal.IsVerbose()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	} else if quiet {
		level = slog.LevelWarn
	}

	slog.SetDefault(NewLogger(os.Stderr, level, verbose))
}

// Creates the offstage logger writing to w.
//
// Output is colored only when w is a terminal. Verbose loggers add the
// source location of each record.
func NewLogger(w *os.File, level slog.Level, verbose bool) *slog.Logger {
	handler := tint.NewHandler(w, &tint.Options{
		Level:      level,
		AddSource:  verbose,
		NoColor:    !isatty(w),
		TimeFormat: time.TimeOnly,
	})
	return slog.New(handler).WithGroup(internal.Name)
}

// Whether the given file is an interactive terminal.
func isatty(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
