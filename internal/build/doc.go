// Package build runs the offline install pipeline.
//
// A run is a strictly sequential state machine:
//
//	Start -> NativeInstall -> InterpreterInstall -> Finalize -> Complete
//
// Any failure moves the run to Aborted and no later phase starts. Each
// install phase plans from the artifact store without touching the target,
// verifies every artifact it is about to install, and only then mutates the
// runtime filesystem. Errors carry the failing [Phase] in a [PhaseError]
// and, where one is responsible, the offending package.
//
// When [Options.Commit] is set, a container is started from the base image
// before the first phase so the base image's dpkg database seeds native
// resolution, and the finished runtime filesystem is committed on top of the
// base image and exported as an OCI archive after Complete.
//
// Example usage:
//
//	result, err := build.Run(ctx, build.Options{
//	    Root:           "/",
//	    NativeDir:      "/opt/offstage/debs",
//	    InterpreterDir: "/opt/offstage/wheels",
//	    Manifest:       "/opt/offstage/requirements.txt",
//	    AppSource:      "/src/app",
//	})
//	if err != nil {
//	    return err
//	}
package build
