package build

import (
	"errors"
	"fmt"
)

var (
	ErrTransition = errors.New("invalid phase transition")
	ErrCommit     = errors.New("image commit failed")
)

// Names the phase in which a run failed.
type PhaseError struct {
	Phase Phase // Phase that was running.
	Err   error // Underlying cause.
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }
