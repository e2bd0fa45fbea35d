package migration

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoStateLocation indicates there is nowhere to keep the tracking table.
	ErrNoStateLocation = errors.New("migration: no storage location for state tracking")

	// ErrInvalidConfig indicates a Migrator was constructed with missing collaborators.
	ErrInvalidConfig = errors.New("migration: invalid configuration")

	// ErrInvalidTransition indicates a malformed entry in the transition snapshot.
	ErrInvalidTransition = errors.New("migration: invalid transition")

	// ErrDisconnectedPath indicates consecutive path entries do not share a state.
	ErrDisconnectedPath = errors.New("migration: path is not connected")

	// ErrNoPath indicates no transition sequence connects two states.
	ErrNoPath = errors.New("migration: no transition path")

	// ErrStaleState indicates the persisted state differs from the path's start.
	ErrStaleState = errors.New("migration: stale state")

	// ErrScriptNotFound indicates a transition script could not be located.
	ErrScriptNotFound = errors.New("migration: script not found")

	// ErrScriptUnreadable indicates a located script could not be read.
	ErrScriptUnreadable = errors.New("migration: script unreadable")

	// ErrExecutionFailed indicates a statement failed against the database.
	ErrExecutionFailed = errors.New("migration: statement execution failed")

	// ErrStateCommitFailed indicates the new state could not be persisted.
	ErrStateCommitFailed = errors.New("migration: state commit failed")
)

// NoPathError reports that the requested target is unreachable.
type NoPathError struct {
	Scope          string
	From           State
	To             State
	NonDestructive bool
}

// Error implements the error interface
func (e *NoPathError) Error() string {
	kind := "transition path"
	if e.NonDestructive {
		kind = "non-destructive transition path"
	}
	return fmt.Sprintf("scope %q: no %s from %q to %q", e.Scope, kind, e.From, e.To)
}

// Unwrap returns ErrNoPath
func (e *NoPathError) Unwrap() error { return ErrNoPath }

// StaleStateError reports a path whose first transition does not start at
// the persisted state.
type StaleStateError struct {
	Scope    string
	Expected State // Before state of the first transition
	Actual   State // Persisted current state
}

// Error implements the error interface
func (e *StaleStateError) Error() string {
	return fmt.Sprintf("scope %q: stale state: path starts at %q but current state is %q; nothing was executed",
		e.Scope, e.Expected, e.Actual)
}

// Unwrap returns ErrStaleState
func (e *StaleStateError) Unwrap() error { return ErrStaleState }

// TransitionError wraps any failure while applying a single transition.
type TransitionError struct {
	Scope      string
	Transition Transition

	// CurrentState is the persisted state read after the failure.
	CurrentState State
	// StateErr is set when CurrentState could not be read.
	StateErr error

	// StatementIndex is the 1-based index of the failing statement, 0 when
	// the failure did not come from a statement.
	StatementIndex int
	Statement      string

	Err error
}

// Error implements the error interface
func (e *TransitionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scope %q: script %s failed", e.Scope, e.Transition)
	if e.StatementIndex > 0 {
		fmt.Fprintf(&b, " at statement %d", e.StatementIndex)
	}
	if e.StateErr != nil {
		fmt.Fprintf(&b, "; current state unknown (%v)", e.StateErr)
	} else {
		fmt.Fprintf(&b, "; current state is %q", e.CurrentState)
	}
	fmt.Fprintf(&b, "; WARNING: some statements of %s may already have been applied", e.Transition.Script)
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

// Unwrap returns the underlying error
func (e *TransitionError) Unwrap() error { return e.Err }

// ErrorKind maps errors from this package to a stable logging label.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoStateLocation), errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrInvalidTransition):
		return "configuration"
	case errors.Is(err, ErrNoPath):
		return "no_path"
	case errors.Is(err, ErrStaleState):
		return "stale_state"
	case errors.Is(err, ErrDisconnectedPath):
		return "invalid_path"
	case errors.Is(err, ErrScriptNotFound):
		return "script_not_found"
	case errors.Is(err, ErrScriptUnreadable):
		return "script_unreadable"
	case errors.Is(err, ErrExecutionFailed):
		return "execution"
	case errors.Is(err, ErrStateCommitFailed):
		return "state_commit"
	}
	return "unexpected"
}
