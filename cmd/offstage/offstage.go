package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/cruciblehq/offstage/internal"
	"github.com/cruciblehq/offstage/internal/cli"
	"github.com/cruciblehq/offstage/internal/fault"
)

// The entry point for offstage.
//
// Initializes logging, displays startup information, and executes the root
// command. Failures exit with the code of their error kind; serve exits with
// the application's status.
func main() {
	slog.SetDefault(cli.NewLogger(os.Stderr, logLevel(), internal.IsVerbose()))

	slog.Debug("build", "version", internal.VersionString())

	slog.Debug("offstage is running",
		"pid", os.Getpid(),
		"cwd", cwd(),
		"args", os.Args,
	)

	err := cli.Execute()
	if err == nil {
		return
	}

	var status cli.ExitStatus
	if errors.As(err, &status) {
		os.Exit(int(status))
	}

	code := fault.ExitCode(err)
	if errors.Is(err, cli.ErrUsage) {
		code = fault.ExitUsage
	}

	attrs := []any{"code", code}
	if pkg, ok := fault.PackageOf(err); ok {
		attrs = append(attrs, "package", pkg)
	}
	slog.Error(err.Error(), attrs...)
	os.Exit(code)
}

// Returns the log level derived from build-time linker flags.
func logLevel() slog.Level {
	if internal.IsDebug() {
		return slog.LevelDebug
	}
	if internal.IsQuiet() {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// Returns the current working directory or "(unknown)".
func cwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "(unknown)"
	}
	return cwd
}
