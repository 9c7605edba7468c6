package cli

import (
	"context"

	"github.com/cruciblehq/offstage/internal/launcher"
)

// Represents the 'offstage serve' command.
type ServeCmd struct {
	Root   string `env:"OFFSTAGE_ROOT" default:"${root}" help:"Root holding the installed environment." placeholder:"DIR"`
	AppDir string `env:"OFFSTAGE_APP_DIR" default:"${appdir}" help:"Application directory inside the root." placeholder:"DIR"`
}

// Executes the serve command.
//
// Binds the service port, runs the application on it and exits with the
// application's status. No install phase runs. Signals are forwarded to the
// application rather than cancelling the wait, so the application decides
// how to shut down.
func (c *ServeCmd) Run(ctx context.Context) error {
	cfg, err := launcher.LoadConfig(c.Root, c.AppDir)
	if err != nil {
		return err
	}

	code, err := launcher.Run(context.WithoutCancel(ctx), cfg)
	if err != nil {
		return err
	}
	if code != 0 {
		return ExitStatus(code)
	}
	return nil
}
