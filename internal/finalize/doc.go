// Package finalize completes the runtime filesystem after the dependency
// phases: it copies the application tree, records the interpreter
// environment flags and installs the offstage binary used as the image
// entrypoint.
//
// The flags are written in dotenv format to [paths.RuntimeEnv] so that the
// launcher reads them at container start instead of relying on ambient
// process state:
//
//	PYTHONUNBUFFERED=1         when output is flushed immediately
//	PYTHONDONTWRITEBYTECODE=1  when compiled caches are suppressed
package finalize
