package migration

import (
	"context"
	"database/sql"
	"io"
	"time"
)

// State names a point in a scope's lifecycle.
type State string

// Transition moves a scope from Before to After by running Script.
type Transition struct {
	Before      State  // State the scope must be in before the script runs
	After       State  // State recorded once the script completed
	Script      string // Resource name handed to the ResourceResolver
	Destructive bool   // The change cannot be reverted by another transition
}

// Source implements graph.Edge.
func (t Transition) Source() string { return string(t.Before) }

// Target implements graph.Edge.
func (t Transition) Target() string { return string(t.After) }

// String renders the transition for logs and error messages.
func (t Transition) String() string {
	return t.Script + " (" + string(t.Before) + " -> " + string(t.After) + ")"
}

// Path is an ordered, connected sequence of transitions. An empty path means
// the scope is already at the requested state.
type Path []Transition

// Destructive reports whether any transition of the path is destructive.
func (p Path) Destructive() bool {
	for _, t := range p {
		if t.Destructive {
			return true
		}
	}
	return false
}

// Start returns the Before state of the first transition.
func (p Path) Start() State {
	if len(p) == 0 {
		return ""
	}
	return p[0].Before
}

// End returns the After state of the last transition.
func (p Path) End() State {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1].After
}

// Executor is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// StateStore persists the single current state of each scope.
type StateStore interface {
	// EnsureReady provisions the storage location and tracking table. It
	// must be safe to call repeatedly.
	EnsureReady(ctx context.Context) error

	// CurrentState returns the stored state of scope, or the origin state
	// when nothing was ever recorded.
	CurrentState(ctx context.Context, scope string) (State, error)

	// SetCurrentState upserts the state of scope.
	SetCurrentState(ctx context.Context, scope string, state State) error
}

// HistoryEntry describes one committed transition.
type HistoryEntry struct {
	RunID     string
	Scope     string
	Script    string
	Before    State
	After     State
	Checksum  string
	AppliedAt time.Time
	Duration  time.Duration
}

// HistoryWriter is implemented by stores that keep a journal of applied
// transitions. The Migrator appends to it after each state commit.
type HistoryWriter interface {
	AppendHistory(ctx context.Context, entry HistoryEntry) error
}

// ResourceResolver opens transition scripts by name. Open returns an error
// wrapping fs.ErrNotExist when the script cannot be located.
type ResourceResolver interface {
	Open(name string) (io.ReadCloser, error)
}

// Router finds paths between states.
type Router interface {
	Path(from, to State) (Path, bool)
	NonDestructivePath(from, to State) (Path, bool)
	States() []State
}
