package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"
)

// Mock implementations for testing

type mockStore struct {
	origin      State
	states      map[string]State
	history     []HistoryEntry
	ensureCalls int
	setCalls    int
	ensureErr   error
	setErr      error
	historyErr  error
}

func newMockStore(origin State) *mockStore {
	return &mockStore{origin: origin, states: make(map[string]State)}
}

func (s *mockStore) EnsureReady(ctx context.Context) error {
	s.ensureCalls++
	return s.ensureErr
}

func (s *mockStore) CurrentState(ctx context.Context, scope string) (State, error) {
	if state, ok := s.states[scope]; ok {
		return state, nil
	}
	return s.origin, nil
}

func (s *mockStore) SetCurrentState(ctx context.Context, scope string, state State) error {
	s.setCalls++
	if s.setErr != nil {
		return s.setErr
	}
	s.states[scope] = state
	return nil
}

func (s *mockStore) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	if s.historyErr != nil {
		return s.historyErr
	}
	s.history = append(s.history, entry)
	return nil
}

type trackedScript struct {
	io.Reader
	closed *int
}

func (t trackedScript) Close() error {
	*t.closed++
	return nil
}

type mockResolver struct {
	scripts map[string]string
	opened  int
	closed  int
	openErr error
}

func (r *mockResolver) Open(name string) (io.ReadCloser, error) {
	if r.openErr != nil {
		return nil, r.openErr
	}
	body, ok := r.scripts[name]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", name, fs.ErrNotExist)
	}
	r.opened++
	return trackedScript{Reader: strings.NewReader(body), closed: &r.closed}, nil
}

type mockExecutor struct {
	statements []string
	failOn     string
	onExec     func(ctx context.Context, stmt string) error
}

func (e *mockExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if e.onExec != nil {
		if err := e.onExec(ctx, query); err != nil {
			return nil, err
		}
	}
	if e.failOn != "" && strings.Contains(query, e.failOn) {
		return nil, errors.New("near \"BROKEN\": syntax error")
	}
	e.statements = append(e.statements, query)
	return nil, nil
}

type fixture struct {
	store    *mockStore
	resolver *mockResolver
	exec     *mockExecutor
	migrator *Migrator
}

// S0 -> S1 (non-destructive), S1 -> S0 (destructive), S1 -> S2 (non-destructive)
func sampleTransitions() []Transition {
	return []Transition{
		{Before: "S0", After: "S1", Script: "s0_to_s1.sql"},
		{Before: "S1", After: "S0", Script: "s1_to_s0.sql", Destructive: true},
		{Before: "S1", After: "S2", Script: "s1_to_s2.sql"},
	}
}

func sampleScripts() map[string]string {
	return map[string]string{
		"s0_to_s1.sql": "-- create\nCREATE TABLE a (id INTEGER);\nINSERT INTO a VALUES ('--x');",
		"s1_to_s0.sql": "/* drop everything */ DROP TABLE a;",
		"s1_to_s2.sql": "ALTER TABLE a ADD COLUMN b TEXT; // trailing\n",
	}
}

func newFixture(t *testing.T, transitions []Transition, scripts map[string]string) *fixture {
	t.Helper()

	f := &fixture{
		store:    newMockStore("S0"),
		resolver: &mockResolver{scripts: scripts},
		exec:     &mockExecutor{},
	}

	clock := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m, err := New(Config{
		Scope:       "billing",
		Store:       f.store,
		Resolver:    f.resolver,
		Executor:    f.exec,
		Transitions: transitions,
	},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return clock }),
		WithRunIDGenerator(func() string { return "run-1" }),
	)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	f.migrator = m
	return f
}

func TestNew_RejectsMissingCollaborators(t *testing.T) {
	t.Parallel()

	valid := Config{
		Scope:    "billing",
		Store:    newMockStore("S0"),
		Resolver: &mockResolver{},
		Executor: &mockExecutor{},
	}

	cases := map[string]func(c *Config){
		"scope":    func(c *Config) { c.Scope = "" },
		"store":    func(c *Config) { c.Store = nil },
		"resolver": func(c *Config) { c.Resolver = nil },
		"executor": func(c *Config) { c.Executor = nil },
	}
	for name, mutate := range cases {
		cfg := valid
		mutate(&cfg)
		if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}

	if _, err := New(valid); err != nil {
		t.Fatalf("expected valid config to succeed, got %v", err)
	}
}

func TestNew_RejectsInvalidTransitions(t *testing.T) {
	t.Parallel()

	cases := map[string][]Transition{
		"missing script": {{Before: "a", After: "b"}},
		"missing state":  {{Before: "a", Script: "x.sql"}},
		"self loop":      {{Before: "a", After: "a", Script: "x.sql"}},
		"duplicate pair": {
			{Before: "a", After: "b", Script: "x.sql"},
			{Before: "a", After: "b", Script: "y.sql"},
		},
	}
	for name, transitions := range cases {
		_, err := New(Config{
			Scope:       "billing",
			Store:       newMockStore("a"),
			Resolver:    &mockResolver{},
			Executor:    &mockExecutor{},
			Transitions: transitions,
		})
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s: expected ErrInvalidTransition, got %v", name, err)
		}
	}
}

func TestMigrator_SnapshotIsCopied(t *testing.T) {
	t.Parallel()

	transitions := sampleTransitions()
	f := newFixture(t, transitions, sampleScripts())
	transitions[0].Script = "mutated.sql"

	got := f.migrator.Transitions()
	if got[0].Script != "s0_to_s1.sql" {
		t.Fatalf("snapshot must not alias caller slice, got %q", got[0].Script)
	}
	got[1].Script = "mutated.sql"
	if f.migrator.Transitions()[1].Script != "s1_to_s0.sql" {
		t.Fatalf("Transitions must return a copy")
	}

	if states := f.migrator.States(); !reflect.DeepEqual(states, []State{"S0", "S1", "S2"}) {
		t.Fatalf("unexpected states %v", states)
	}
}

func TestMigrator_CurrentState(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sampleTransitions(), sampleScripts())
	ctx := context.Background()

	state, err := f.migrator.CurrentState(ctx)
	if err != nil {
		t.Fatalf("CurrentState returned error: %v", err)
	}
	if state != "S0" {
		t.Fatalf("expected origin state S0, got %q", state)
	}
	if f.store.ensureCalls != 1 {
		t.Fatalf("expected store to be prepared once, got %d", f.store.ensureCalls)
	}

	f.store.ensureErr = errors.New("disk full")
	if _, err := f.migrator.CurrentState(ctx); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected EnsureReady error to surface, got %v", err)
	}
}

func TestMigrator_NonDestructivePaths(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sampleTransitions(), sampleScripts())
	ctx := context.Background()

	path, ok, err := f.migrator.NonDestructivePathFromCurrentState(ctx, "S2")
	if err != nil || !ok {
		t.Fatalf("expected path, got ok=%v err=%v", ok, err)
	}
	want := Path{sampleTransitions()[0], sampleTransitions()[2]}
	if !reflect.DeepEqual(path, want) {
		t.Fatalf("unexpected path %v", path)
	}

	f.store.states["billing"] = "S2"
	path, ok, err = f.migrator.NonDestructivePathFromCurrentState(ctx, "S0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || path != nil {
		t.Fatalf("expected no non-destructive path back to S0, got %v", path)
	}

	f.store.states["billing"] = "S1"
	path, ok, err = f.migrator.PathFromCurrentState(ctx, "S0")
	if err != nil || !ok {
		t.Fatalf("expected destructive path, got ok=%v err=%v", ok, err)
	}
	if !path.Destructive() || len(path) != 1 {
		t.Fatalf("expected single destructive step, got %v", path)
	}
}

func TestMigrator_MigrateTo_MultiHop(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sampleTransitions(), sampleScripts())
	ctx := context.Background()

	if err := f.migrator.MigrateTo(ctx, "S2"); err != nil {
		t.Fatalf("MigrateTo returned error: %v", err)
	}

	wantStatements := []string{
		"CREATE TABLE a (id INTEGER)",
		"INSERT INTO a VALUES ('--x')",
		"ALTER TABLE a ADD COLUMN b TEXT",
	}
	if !reflect.DeepEqual(f.exec.statements, wantStatements) {
		t.Fatalf("unexpected statements %#v", f.exec.statements)
	}
	if got := f.store.states["billing"]; got != "S2" {
		t.Fatalf("expected state S2, got %q", got)
	}
	if f.store.setCalls != 2 {
		t.Fatalf("expected one state commit per transition, got %d", f.store.setCalls)
	}

	if len(f.store.history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(f.store.history))
	}
	first := f.store.history[0]
	if first.RunID != "run-1" || first.Script != "s0_to_s1.sql" || first.Before != "S0" || first.After != "S1" {
		t.Fatalf("unexpected history entry %+v", first)
	}
	if first.Checksum != Checksum([]byte(sampleScripts()["s0_to_s1.sql"])) {
		t.Fatalf("unexpected checksum %q", first.Checksum)
	}
	if f.resolver.opened != 2 || f.resolver.closed != 2 {
		t.Fatalf("expected every opened script to be closed, opened=%d closed=%d", f.resolver.opened, f.resolver.closed)
	}
}

func TestMigrator_MigrateTo_CommentOnlyScriptAdvancesState(t *testing.T) {
	t.Parallel()

	scripts := sampleScripts()
	scripts["s1_to_s2.sql"] = "-- release without schema changes\n/* ; */\n"
	f := newFixture(t, sampleTransitions(), scripts)

	if err := f.migrator.MigrateTo(context.Background(), "S2"); err != nil {
		t.Fatalf("MigrateTo returned error: %v", err)
	}
	if got := f.store.states["billing"]; got != "S2" {
		t.Fatalf("expected state S2, got %q", got)
	}
	if len(f.exec.statements) != 2 || f.store.setCalls != 2 {
		t.Fatalf("expected statements of s0_to_s1.sql only, statements=%#v sets=%d",
			f.exec.statements, f.store.setCalls)
	}
	if len(f.store.history) != 2 || f.store.history[1].Script != "s1_to_s2.sql" {
		t.Fatalf("expected a history entry for the empty script, got %+v", f.store.history)
	}
}

func TestMigrator_MigrateTo_AlreadyAtTarget(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sampleTransitions(), sampleScripts())
	if err := f.migrator.MigrateTo(context.Background(), "S0"); err != nil {
		t.Fatalf("MigrateTo returned error: %v", err)
	}
	if len(f.exec.statements) != 0 || f.store.setCalls != 0 || f.resolver.opened != 0 {
		t.Fatalf("expected no work, statements=%d sets=%d opened=%d",
			len(f.exec.statements), f.store.setCalls, f.resolver.opened)
	}
}

func TestMigrator_MigrateTo_NoPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sampleTransitions(), sampleScripts())
	ctx := context.Background()

	err := f.migrator.MigrateTo(ctx, "S9")
	var noPath *NoPathError
	if !errors.As(err, &noPath) {
		t.Fatalf("expected NoPathError, got %v", err)
	}
	if noPath.From != "S0" || noPath.To != "S9" || noPath.NonDestructive {
		t.Fatalf("unexpected error fields %+v", noPath)
	}
	if !errors.Is(err, ErrNoPath) || ErrorKind(err) != "no_path" {
		t.Fatalf("expected ErrNoPath kind, got %v", err)
	}

	f.store.states["billing"] = "S2"
	err = f.migrator.MigrateNonDestructiveTo(ctx, "S0")
	if !errors.As(err, &noPath) || !noPath.NonDestructive {
		t.Fatalf("expected non-destructive NoPathError, got %v", err)
	}
	if !strings.Contains(err.Error(), `"S2"`) || !strings.Contains(err.Error(), `"S0"`) {
		t.Fatalf("error should name both states: %v", err)
	}
	if len(f.exec.statements) != 0 {
		t.Fatalf("nothing should have executed")
	}
}

func TestMigrator_Execute_EmptyPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sampleTransitions(), sampleScripts())
	if err := f.migrator.Execute(context.Background(), nil); err != nil {
		t.Fatalf("Execute(nil) returned error: %v", err)
	}
	if err := f.migrator.Execute(context.Background(), Path{}); err != nil {
		t.Fatalf("Execute(empty) returned error: %v", err)
	}
	if f.store.setCalls != 0 || f.store.ensureCalls != 0 {
		t.Fatalf("empty path must not touch the store")
	}
}

func TestMigrator_Execute_StaleState(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sampleTransitions(), sampleScripts())
	f.store.states["billing"] = "S1"

	path := Path{sampleTransitions()[0], sampleTransitions()[2]}
	err := f.migrator.Execute(context.Background(), path)

	var stale *StaleStateError
	if !errors.As(err, &stale) {
		t.Fatalf("expected StaleStateError, got %v", err)
	}
	if stale.Expected != "S0" || stale.Actual != "S1" {
		t.Fatalf("unexpected fields %+v", stale)
	}
	if f.resolver.opened != 0 || len(f.exec.statements) != 0 || f.store.setCalls != 0 {
		t.Fatalf("stale path must not execute anything")
	}
}

func TestMigrator_Execute_DisconnectedPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sampleTransitions(), sampleScripts())
	path := Path{sampleTransitions()[0], {Before: "S7", After: "S8", Script: "s1_to_s2.sql"}}

	if err := f.migrator.Execute(context.Background(), path); !errors.Is(err, ErrDisconnectedPath) {
		t.Fatalf("expected ErrDisconnectedPath, got %v", err)
	}
	if len(f.exec.statements) != 0 {
		t.Fatalf("disconnected path must not execute anything")
	}
}

func TestMigrator_Execute_FailurePartway(t *testing.T) {
	t.Parallel()

	transitions := []Transition{
		{Before: "S0", After: "S1", Script: "one.sql"},
		{Before: "S1", After: "S2", Script: "two.sql"},
		{Before: "S2", After: "S3", Script: "three.sql"},
	}
	scripts := map[string]string{
		"one.sql":   "CREATE TABLE a (id INT);",
		"two.sql":   "CREATE TABLE b (id INT);\nBROKEN STATEMENT;\nCREATE TABLE c (id INT);",
		"three.sql": "CREATE TABLE d (id INT);",
	}
	f := newFixture(t, transitions, scripts)
	f.exec.failOn = "BROKEN"

	err := f.migrator.MigrateTo(context.Background(), "S3")

	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if terr.Transition.Script != "two.sql" || terr.CurrentState != "S1" || terr.StatementIndex != 2 {
		t.Fatalf("unexpected error fields %+v", terr)
	}
	if terr.Statement != "BROKEN STATEMENT" {
		t.Fatalf("unexpected statement %q", terr.Statement)
	}
	if !errors.Is(err, ErrExecutionFailed) || ErrorKind(err) != "execution" {
		t.Fatalf("expected execution failure, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"two.sql", `current state is "S1"`, "may already have been applied", "syntax error"} {
		if !strings.Contains(msg, fragment) {
			t.Errorf("error message %q missing %q", msg, fragment)
		}
	}

	if got := f.store.states["billing"]; got != "S1" {
		t.Fatalf("expected persisted state S1 after partial failure, got %q", got)
	}
	wantStatements := []string{"CREATE TABLE a (id INT)", "CREATE TABLE b (id INT)"}
	if !reflect.DeepEqual(f.exec.statements, wantStatements) {
		t.Fatalf("unexpected statements %#v", f.exec.statements)
	}
	if f.resolver.opened != 2 || f.resolver.closed != 2 {
		t.Fatalf("scripts must be closed on failure, opened=%d closed=%d", f.resolver.opened, f.resolver.closed)
	}

	// Retrying after a repair resumes from the last committed transition.
	f.exec.failOn = ""
	f.resolver.scripts["two.sql"] = "CREATE TABLE b2 (id INT);"
	if err := f.migrator.MigrateTo(context.Background(), "S3"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if got := f.store.states["billing"]; got != "S3" {
		t.Fatalf("expected S3 after retry, got %q", got)
	}
	if f.exec.statements[2] != "CREATE TABLE b2 (id INT)" {
		t.Fatalf("retry should start at the failed transition, got %#v", f.exec.statements)
	}
}

func TestMigrator_Execute_ScriptNotFound(t *testing.T) {
	t.Parallel()

	scripts := sampleScripts()
	delete(scripts, "s1_to_s2.sql")
	f := newFixture(t, sampleTransitions(), scripts)

	err := f.migrator.MigrateTo(context.Background(), "S2")
	if !errors.Is(err, ErrScriptNotFound) {
		t.Fatalf("expected ErrScriptNotFound, got %v", err)
	}
	var terr *TransitionError
	if !errors.As(err, &terr) || terr.CurrentState != "S1" || terr.StatementIndex != 0 {
		t.Fatalf("unexpected error %+v", terr)
	}
	if got := f.store.states["billing"]; got != "S1" {
		t.Fatalf("expected first transition to stay applied, got %q", got)
	}
}

func TestMigrator_Execute_ScriptUnreadable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sampleTransitions(), sampleScripts())
	f.resolver.openErr = errors.New("permission denied")

	err := f.migrator.MigrateTo(context.Background(), "S1")
	if !errors.Is(err, ErrScriptUnreadable) || ErrorKind(err) != "script_unreadable" {
		t.Fatalf("expected ErrScriptUnreadable, got %v", err)
	}
	if f.store.setCalls != 0 {
		t.Fatalf("state must not change")
	}
}

func TestMigrator_Execute_StateCommitFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sampleTransitions(), sampleScripts())
	f.store.setErr = errors.New("database is locked")

	err := f.migrator.MigrateTo(context.Background(), "S2")
	if !errors.Is(err, ErrStateCommitFailed) {
		t.Fatalf("expected ErrStateCommitFailed, got %v", err)
	}
	var terr *TransitionError
	if !errors.As(err, &terr) || terr.CurrentState != "S0" {
		t.Fatalf("expected current state S0, got %+v", terr)
	}
	if len(f.exec.statements) != 2 {
		t.Fatalf("second transition must not run, got %#v", f.exec.statements)
	}
}

func TestMigrator_Execute_HistoryFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sampleTransitions(), sampleScripts())
	f.store.historyErr = errors.New("journal unavailable")

	if err := f.migrator.MigrateTo(context.Background(), "S2"); err != nil {
		t.Fatalf("history failure should not fail migration: %v", err)
	}
	if got := f.store.states["billing"]; got != "S2" {
		t.Fatalf("expected S2, got %q", got)
	}
}

func TestMigrator_Execute_IgnoresCancellationOnceStarted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sampleTransitions(), sampleScripts())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.exec.onExec = func(execCtx context.Context, stmt string) error {
		cancel()
		return execCtx.Err()
	}

	if err := f.migrator.MigrateTo(ctx, "S2"); err != nil {
		t.Fatalf("expected run to complete despite cancellation, got %v", err)
	}
	if got := f.store.states["billing"]; got != "S2" {
		t.Fatalf("expected S2, got %q", got)
	}
}

func TestMigrator_RoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sampleTransitions(), sampleScripts())
	ctx := context.Background()

	if err := f.migrator.MigrateTo(ctx, "S1"); err != nil {
		t.Fatalf("forward migration failed: %v", err)
	}
	if err := f.migrator.MigrateTo(ctx, "S0"); err != nil {
		t.Fatalf("inverse migration failed: %v", err)
	}
	state, err := f.migrator.CurrentState(ctx)
	if err != nil || state != "S0" {
		t.Fatalf("expected S0 after round trip, got %q (%v)", state, err)
	}
	if last := f.exec.statements[len(f.exec.statements)-1]; last != "DROP TABLE a" {
		t.Fatalf("expected inverse script to run, got %q", last)
	}
}

type fixedRouter struct{ path Path }

func (r fixedRouter) Path(from, to State) (Path, bool)               { return r.path, true }
func (r fixedRouter) NonDestructivePath(from, to State) (Path, bool) { return nil, false }
func (r fixedRouter) States() []State                                { return nil }

func TestMigrator_WithRouter(t *testing.T) {
	t.Parallel()

	path := Path{{Before: "S0", After: "S1", Script: "s0_to_s1.sql"}}
	m, err := New(Config{
		Scope:    "billing",
		Store:    newMockStore("S0"),
		Resolver: &mockResolver{scripts: sampleScripts()},
		Executor: &mockExecutor{},
	}, WithRouter(fixedRouter{path: path}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	got, ok, err := m.PathFromCurrentState(context.Background(), "anything")
	if err != nil || !ok || !reflect.DeepEqual(got, path) {
		t.Fatalf("expected router path, got %v ok=%v err=%v", got, ok, err)
	}
	if _, ok, _ := m.NonDestructivePathFromCurrentState(context.Background(), "S1"); ok {
		t.Fatalf("expected router to refuse non-destructive path")
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"":                 nil,
		"configuration":    fmt.Errorf("wrap: %w", ErrNoStateLocation),
		"no_path":          &NoPathError{},
		"stale_state":      &StaleStateError{},
		"invalid_path":     ErrDisconnectedPath,
		"script_not_found": ErrScriptNotFound,
		"execution":        &TransitionError{Err: ErrExecutionFailed},
		"state_commit":     ErrStateCommitFailed,
		"unexpected":       errors.New("boom"),
	}
	for want, err := range cases {
		if got := ErrorKind(err); got != want {
			t.Errorf("ErrorKind(%v) = %q, want %q", err, got, want)
		}
	}
}
