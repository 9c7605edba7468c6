// Parses flags and configures logging for the offstage command.
//
// The command accepts the following global flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Enable verbose output.
//	-d, --debug     Enable debug output.
//
// Subcommands:
//
//	build     Install the staged artifacts into the runtime filesystem.
//	plan      Print the install plans without changing anything.
//	list      Print the artifacts in the store.
//	serve     Start the application on 0.0.0.0:8000.
//	version   Show version information.
//
// Every flag can also be set with an OFFSTAGE_* environment variable or in a
// JSON configuration file (see [paths.ConfigFiles]); the command line wins.
// Flags override build-time defaults set via linker flags. After parsing, the
// global logger is reconfigured to reflect the final level and verbosity
// before the subcommand runs.
package cli
