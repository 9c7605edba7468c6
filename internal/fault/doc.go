// Package fault provides error wrapping and the failure taxonomy shared by
// every phase of the install pipeline.
//
// Errors are built by attaching a sentinel kind to an underlying cause with
// [Wrap] or [Wrapf]. Both the kind and the cause remain reachable through
// [errors.Is] and [errors.As]. The four taxonomy kinds ([ErrResolution],
// [ErrIntegrity], [ErrFileSystem], [ErrRuntime]) map to process exit codes
// through [ExitCode].
//
// Example usage:
//
//	if !ok {
//	    return fault.Wrap(fault.ErrResolution, &fault.PackageError{
//	        Package:    "bar",
//	        Constraint: "==1.0",
//	        Err:        ErrNoCandidate,
//	    })
//	}
package fault
