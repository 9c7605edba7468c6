package cli

import (
	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"

	"github.com/cruciblehq/offstage/internal/store"
)

// Represents the 'offstage list' command.
type ListCmd struct {
	NativeDir      string `env:"OFFSTAGE_NATIVE_DIR" default:"${nativedir}" help:"Directory of staged .deb files." placeholder:"DIR"`
	InterpreterDir string `env:"OFFSTAGE_INTERPRETER_DIR" default:"${interpdir}" help:"Directory of staged wheels." placeholder:"DIR"`
}

// Executes the list command.
//
// Prints every staged artifact with its version, digest and declared
// dependencies, native packages first.
func (c *ListCmd) Run(kctx *kong.Context) error {
	s, err := store.Open(c.NativeDir, c.InterpreterDir)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(kctx.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(s.Artifacts()); err != nil {
		return err
	}
	return enc.Close()
}
