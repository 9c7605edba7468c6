package build

import (
	"fmt"
	"log/slog"
	"slices"
)

// A pipeline phase.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseNativeInstall
	PhaseInterpreterInstall
	PhaseFinalize
	PhaseComplete
	PhaseAborted
)

var phaseNames = [...]string{
	PhaseStart:              "Start",
	PhaseNativeInstall:      "NativeInstall",
	PhaseInterpreterInstall: "InterpreterInstall",
	PhaseFinalize:           "Finalize",
	PhaseComplete:           "Complete",
	PhaseAborted:            "Aborted",
}

// Returns the phase name, e.g. "NativeInstall".
func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Encodes the phase name in YAML and JSON output.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Reports whether no transition leaves the phase.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseAborted
}

// Allowed transitions. Every non-terminal phase may also abort.
var transitions = map[Phase]Phase{
	PhaseStart:              PhaseNativeInstall,
	PhaseNativeInstall:      PhaseInterpreterInstall,
	PhaseInterpreterInstall: PhaseFinalize,
	PhaseFinalize:           PhaseComplete,
}

// Tracks the phase of one run.
//
// The machine only moves forward. A run that needs to start over creates a
// new machine.
type machine struct {
	phase   Phase
	history []Phase
}

// Creates a new [machine] in [PhaseStart].
func newMachine() *machine {
	return &machine{phase: PhaseStart, history: []Phase{PhaseStart}}
}

// Moves to next, or returns [ErrTransition] when the move is not allowed.
func (m *machine) advance(next Phase) error {
	if m.phase.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrTransition, m.phase)
	}
	if next != PhaseAborted && transitions[m.phase] != next {
		return fmt.Errorf("%w: %s to %s", ErrTransition, m.phase, next)
	}

	slog.Info("phase "+next.String(), "from", m.phase.String())
	m.phase = next
	m.history = append(m.history, next)
	return nil
}

// Moves to [PhaseAborted] and returns err wrapped in a [PhaseError] naming
// the phase that failed. Aborting a terminal machine only wraps err.
func (m *machine) abort(err error) error {
	failed := m.phase
	if !m.phase.Terminal() {
		m.advance(PhaseAborted)
	}
	return &PhaseError{Phase: failed, Err: err}
}

// Returns the phases visited so far.
func (m *machine) visited() []Phase {
	return slices.Clone(m.history)
}
