package fault

import (
	"errors"
	"fmt"
)

// Failure taxonomy. Every fatal pipeline error wraps exactly one of these.
var (
	ErrResolution = errors.New("resolution error")
	ErrIntegrity  = errors.New("integrity error")
	ErrFileSystem = errors.New("filesystem error")
	ErrRuntime    = errors.New("runtime error")
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitUsage      = 2
	ExitResolution = 3
	ExitIntegrity  = 4
	ExitFileSystem = 5
	ExitRuntime    = 6
)

// An error tagged with a sentinel kind.
type wrapped struct {
	kind  error
	cause error
}

func (e *wrapped) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *wrapped) Unwrap() []error {
	return []error{e.kind, e.cause}
}

// Tags err with kind. Returns nil if err is nil.
func Wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{kind: kind, cause: err}
}

// Tags a formatted error with kind. The format may use %w.
func Wrapf(kind error, format string, args ...any) error {
	return &wrapped{kind: kind, cause: fmt.Errorf(format, args...)}
}

// Names the package responsible for a failure.
type PackageError struct {
	Package    string // Package name as it appears in the store or manifest.
	Constraint string // Offending constraint or relation, if any.
	Err        error  // Underlying cause.
}

func (e *PackageError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("package %s (%s): %v", e.Package, e.Constraint, e.Err)
	}
	return fmt.Sprintf("package %s: %v", e.Package, e.Err)
}

func (e *PackageError) Unwrap() error { return e.Err }

// Returns the package named by the first [PackageError] in the chain.
func PackageOf(err error) (string, bool) {
	var pe *PackageError
	if errors.As(err, &pe) {
		return pe.Package, true
	}
	return "", false
}

// Maps an error to the process exit code for its taxonomy kind.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrResolution):
		return ExitResolution
	case errors.Is(err, ErrIntegrity):
		return ExitIntegrity
	case errors.Is(err, ErrFileSystem):
		return ExitFileSystem
	case errors.Is(err, ErrRuntime):
		return ExitRuntime
	default:
		return ExitFailure
	}
}
