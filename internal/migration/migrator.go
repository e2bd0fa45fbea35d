package migration

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Config holds the collaborators of a Migrator.
type Config struct {
	// Scope names the independently migrated unit.
	Scope string

	// Store keeps the scope's current state.
	Store StateStore

	// Resolver opens transition scripts.
	Resolver ResourceResolver

	// Executor runs script statements.
	Executor Executor

	// Transitions is the immutable snapshot of every transition of the
	// scope. It is validated and indexed once by New.
	Transitions []Transition
}

// Option customises a Migrator.
type Option func(*Migrator)

// WithLogger sets the logger used when the context carries none.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Migrator) { m.logger = logger }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Migrator) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRunIDGenerator overrides the identifier attached to each Execute call.
func WithRunIDGenerator(gen func() string) Option {
	return func(m *Migrator) {
		if gen != nil {
			m.newRunID = gen
		}
	}
}

// WithRouter replaces the default breadth-first Router built from the
// transition snapshot.
func WithRouter(router Router) Option {
	return func(m *Migrator) { m.router = router }
}

// Migrator drives a scope from its persisted state to a target state.
type Migrator struct {
	scope       string
	store       StateStore
	resolver    ResourceResolver
	exec        Executor
	transitions []Transition
	router      Router

	logger   *slog.Logger
	now      func() time.Time
	newRunID func() string
}

// New validates cfg and indexes its transition snapshot.
func New(cfg Config, opts ...Option) (*Migrator, error) {
	switch {
	case cfg.Scope == "":
		return nil, fmt.Errorf("%w: scope name is required", ErrInvalidConfig)
	case cfg.Store == nil:
		return nil, fmt.Errorf("%w: state store is required", ErrInvalidConfig)
	case cfg.Resolver == nil:
		return nil, fmt.Errorf("%w: resource resolver is required", ErrInvalidConfig)
	case cfg.Executor == nil:
		return nil, fmt.Errorf("%w: executor is required", ErrInvalidConfig)
	}

	m := &Migrator{
		scope:       cfg.Scope,
		store:       cfg.Store,
		resolver:    cfg.Resolver,
		exec:        cfg.Executor,
		transitions: append([]Transition(nil), cfg.Transitions...),
		now:         time.Now,
		newRunID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.router == nil {
		router, err := NewTransitionGraph(m.transitions)
		if err != nil {
			return nil, err
		}
		m.router = router
	}

	return m, nil
}

// Scope returns the scope name.
func (m *Migrator) Scope() string { return m.scope }

// Transitions returns a copy of the transition snapshot.
func (m *Migrator) Transitions() []Transition {
	return append([]Transition(nil), m.transitions...)
}

// States returns every state named by the transition snapshot.
func (m *Migrator) States() []State {
	return m.router.States()
}

// CurrentState provisions the state store if needed and returns the
// persisted state of the scope.
func (m *Migrator) CurrentState(ctx context.Context) (State, error) {
	if err := m.store.EnsureReady(ctx); err != nil {
		return "", fmt.Errorf("scope %q: prepare state store: %w", m.scope, err)
	}
	state, err := m.store.CurrentState(ctx, m.scope)
	if err != nil {
		return "", fmt.Errorf("scope %q: read current state: %w", m.scope, err)
	}
	return state, nil
}

// PathFromCurrentState returns the shortest path from the current state to
// target. The boolean is false when target is unreachable.
func (m *Migrator) PathFromCurrentState(ctx context.Context, target State) (Path, bool, error) {
	_, path, ok, err := m.pathFromCurrentState(ctx, target, false)
	return path, ok, err
}

// NonDestructivePathFromCurrentState is like PathFromCurrentState but never
// returns a path containing a destructive transition.
func (m *Migrator) NonDestructivePathFromCurrentState(ctx context.Context, target State) (Path, bool, error) {
	_, path, ok, err := m.pathFromCurrentState(ctx, target, true)
	return path, ok, err
}

// MigrateTo executes the shortest path from the current state to target.
func (m *Migrator) MigrateTo(ctx context.Context, target State) error {
	return m.migrate(ctx, target, false)
}

// MigrateNonDestructiveTo executes the shortest path to target that avoids
// destructive transitions.
func (m *Migrator) MigrateNonDestructiveTo(ctx context.Context, target State) error {
	return m.migrate(ctx, target, true)
}

func (m *Migrator) pathFromCurrentState(ctx context.Context, target State, nonDestructive bool) (State, Path, bool, error) {
	current, err := m.CurrentState(ctx)
	if err != nil {
		return "", nil, false, err
	}
	var (
		path Path
		ok   bool
	)
	if nonDestructive {
		path, ok = m.router.NonDestructivePath(current, target)
	} else {
		path, ok = m.router.Path(current, target)
	}
	return current, path, ok, nil
}

func (m *Migrator) migrate(ctx context.Context, target State, nonDestructive bool) error {
	operation := "migrate"
	if nonDestructive {
		operation = "migrate_non_destructive"
	}
	logger := operationLogger(ctx, m.logger, m.scope, operation, "target", string(target))

	current, path, ok, err := m.pathFromCurrentState(ctx, target, nonDestructive)
	if err != nil {
		logger.Error("failed to resolve path", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	if !ok {
		err := &NoPathError{Scope: m.scope, From: current, To: target, NonDestructive: nonDestructive}
		logger.Error("no transition path", "current", string(current), "error_kind", ErrorKind(err))
		return err
	}
	if len(path) == 0 {
		logger.Info("scope already at target state", "current", string(current))
		return nil
	}
	return m.Execute(ctx, path)
}

// Execute runs path without deriving it again. An empty path succeeds
// without touching the store. The persisted state must equal the first
// transition's Before state; this is checked once, before anything runs.
//
// State is committed after every transition. On failure the remaining
// transitions are skipped and a *TransitionError is returned. Once the first
// statement has been issued, cancellation of ctx no longer interrupts the
// run.
func (m *Migrator) Execute(ctx context.Context, path Path) error {
	if len(path) == 0 {
		return nil
	}

	runID := m.newRunID()
	logger := operationLogger(ctx, m.logger, m.scope, "execute",
		"run_id", runID, "from", string(path.Start()), "to", string(path.End()), "steps", len(path))

	if err := ValidatePath(path); err != nil {
		logger.Error("refusing to execute path", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	current, err := m.CurrentState(ctx)
	if err != nil {
		logger.Error("failed to read current state", "error", err)
		return err
	}
	if current != path[0].Before {
		err := &StaleStateError{Scope: m.scope, Expected: path[0].Before, Actual: current}
		logger.Error("stale state", "current", string(current), "error_kind", ErrorKind(err))
		return err
	}

	runCtx := context.WithoutCancel(ctx)
	started := m.now()
	logger.Info("executing transition path", "destructive", path.Destructive())

	for i, transition := range path {
		stepLogger := logger.With("step", i+1, "script", transition.Script,
			"before", string(transition.Before), "after", string(transition.After))

		if err := m.apply(runCtx, stepLogger, runID, transition); err != nil {
			terr := m.wrapFailure(runCtx, transition, err)
			stepLogger.Error("transition failed; path execution stopped",
				"error", terr, "error_kind", ErrorKind(terr), "current", string(terr.CurrentState))
			return terr
		}
	}

	logger.Info("transition path completed", "duration", m.now().Sub(started))
	return nil
}

// stepError carries the statement that failed inside apply.
type stepError struct {
	index     int
	statement string
	err       error
}

func (e *stepError) Error() string { return e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func (m *Migrator) apply(ctx context.Context, logger *slog.Logger, runID string, t Transition) error {
	started := m.now()
	logger.Info("applying transition", "destructive", t.Destructive)

	script, err := m.readScript(t.Script)
	if err != nil {
		return err
	}

	statements := ParseScript(string(script))
	for i, stmt := range statements {
		logger.Debug("executing statement", "index", i+1, "of", len(statements))
		if _, err := m.exec.ExecContext(ctx, stmt); err != nil {
			return &stepError{index: i + 1, statement: stmt, err: fmt.Errorf("%w: %w", ErrExecutionFailed, err)}
		}
	}

	if err := m.store.SetCurrentState(ctx, m.scope, t.After); err != nil {
		return fmt.Errorf("%w: %w", ErrStateCommitFailed, err)
	}

	duration := m.now().Sub(started)
	if history, ok := m.store.(HistoryWriter); ok {
		entry := HistoryEntry{
			RunID:     runID,
			Scope:     m.scope,
			Script:    t.Script,
			Before:    t.Before,
			After:     t.After,
			Checksum:  Checksum(script),
			AppliedAt: m.now().UTC(),
			Duration:  duration,
		}
		// The state is already committed; a journal failure does not undo it.
		if err := history.AppendHistory(ctx, entry); err != nil {
			logger.Warn("failed to append history entry", "error", err)
		}
	}

	logger.Info("transition applied", "statements", len(statements), "duration", duration)
	return nil
}

func (m *Migrator) readScript(name string) ([]byte, error) {
	rc, err := m.resolver.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrScriptNotFound, name, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrScriptUnreadable, name, err)
	}
	if rc == nil {
		return nil, fmt.Errorf("%w: %s", ErrScriptNotFound, name)
	}
	defer rc.Close()

	script, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrScriptUnreadable, name, err)
	}
	return script, nil
}

func (m *Migrator) wrapFailure(ctx context.Context, t Transition, err error) *TransitionError {
	terr := &TransitionError{Scope: m.scope, Transition: t, Err: err}

	var serr *stepError
	if errors.As(err, &serr) {
		terr.StatementIndex = serr.index
		terr.Statement = serr.statement
		terr.Err = serr.err
	}

	terr.CurrentState, terr.StateErr = m.store.CurrentState(ctx, m.scope)
	return terr
}

// Checksum returns the hex BLAKE2b-256 digest of a script.
func Checksum(script []byte) string {
	sum := blake2b.Sum256(script)
	return hex.EncodeToString(sum[:])
}
