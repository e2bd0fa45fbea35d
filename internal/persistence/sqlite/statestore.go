package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/scope-migrator/internal/migration"
)

const defaultStateTable = "scope_state"

// Location is an alternate database that holds state tracking instead of
// the session's default schema. Path is attached under Name when it is not
// attached yet.
type Location struct {
	Name string
	Path string
}

// StoreConfig configures a StateStore.
type StoreConfig struct {
	// Origin is reported for scopes that have no row yet.
	Origin migration.State

	// Table is the tracking table name; the history journal uses the same
	// name with a "_history" suffix. Defaults to scope_state.
	Table string

	// Alternate, when set, overrides the session's default schema.
	Alternate *Location

	// Retry controls retries of writes while the database is locked.
	Retry RetryConfig

	// Now defaults to time.Now.
	Now func() time.Time
}

// StateStore keeps one current-state row per scope in SQLite.
type StateStore struct {
	session  *Session
	location string
	config   StoreConfig
}

// NewStateStore binds a store to session. It fails with
// migration.ErrNoStateLocation when neither the session nor cfg names a
// database to keep the tracking table in.
func NewStateStore(session *Session, cfg StoreConfig) (*StateStore, error) {
	if session == nil {
		return nil, fmt.Errorf("%w: session is required", migration.ErrInvalidConfig)
	}

	location := session.Schema()
	if cfg.Alternate != nil {
		if cfg.Alternate.Name == "" {
			return nil, fmt.Errorf("%w: alternate location needs a name", migration.ErrNoStateLocation)
		}
		location = cfg.Alternate.Name
	}
	if location == "" {
		return nil, fmt.Errorf("%w: session has no default schema and no alternate location was configured",
			migration.ErrNoStateLocation)
	}

	if cfg.Table == "" {
		cfg.Table = defaultStateTable
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}

	return &StateStore{session: session, location: location, config: cfg}, nil
}

// Location returns the schema the tracking tables live in.
func (s *StateStore) Location() string { return s.location }

func (s *StateStore) stateTable() string {
	return quoteIdent(s.location) + "." + quoteIdent(s.config.Table)
}

func (s *StateStore) historyTable() string {
	return quoteIdent(s.location) + "." + quoteIdent(s.config.Table+"_history")
}

// EnsureReady attaches the alternate location when it is missing, then
// creates the tracking tables. Each step checks before it creates, so the
// call is idempotent.
func (s *StateStore) EnsureReady(ctx context.Context) error {
	if alt := s.config.Alternate; alt != nil {
		attached, err := s.isAttached(ctx, alt.Name)
		if err != nil {
			return err
		}
		if !attached {
			if alt.Path == "" {
				return fmt.Errorf("%w: database %q is not attached and has no path",
					migration.ErrNoStateLocation, alt.Name)
			}
			if _, err := s.session.ExecContext(ctx, "ATTACH DATABASE ? AS "+quoteIdent(alt.Name), alt.Path); err != nil {
				return fmt.Errorf("attach state database %q: %w", alt.Name, MapError(err))
			}
		}
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.stateTable() + ` (
			scope TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + s.historyTable() + ` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			scope TEXT NOT NULL,
			script TEXT NOT NULL,
			before_state TEXT NOT NULL,
			after_state TEXT NOT NULL,
			checksum TEXT NOT NULL DEFAULT '',
			applied_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range ddl {
		if _, err := s.session.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create state tracking table: %w", MapError(err))
		}
	}
	return nil
}

func (s *StateStore) isAttached(ctx context.Context, name string) (bool, error) {
	rows, err := s.session.QueryContext(ctx, "PRAGMA database_list")
	if err != nil {
		return false, fmt.Errorf("list attached databases: %w", MapError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq    int
			schema string
			file   sql.NullString
		)
		if err := rows.Scan(&seq, &schema, &file); err != nil {
			return false, fmt.Errorf("scan attached database: %w", err)
		}
		if strings.EqualFold(schema, name) {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterate attached databases: %w", err)
	}
	return false, nil
}

// CurrentState returns the stored state of scope or the origin state.
func (s *StateStore) CurrentState(ctx context.Context, scope string) (migration.State, error) {
	var state string
	err := s.session.QueryRowContext(ctx,
		`SELECT state FROM `+s.stateTable()+` WHERE scope = ?`, scope).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return s.config.Origin, nil
	}
	if err != nil {
		return "", fmt.Errorf("read state of scope %q: %w", scope, MapError(err))
	}
	return migration.State(state), nil
}

// SetCurrentState upserts the row of scope.
func (s *StateStore) SetCurrentState(ctx context.Context, scope string, state migration.State) error {
	query := `INSERT INTO ` + s.stateTable() + ` (scope, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(scope) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`
	updatedAt := s.config.Now().UTC().Format(time.RFC3339Nano)

	err := withRetry(ctx, s.config.Retry, func() error {
		_, err := s.session.ExecContext(ctx, query, scope, string(state), updatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("write state of scope %q: %w", scope, err)
	}
	return nil
}

// AppendHistory implements migration.HistoryWriter.
func (s *StateStore) AppendHistory(ctx context.Context, entry migration.HistoryEntry) error {
	query := `INSERT INTO ` + s.historyTable() + `
		(run_id, scope, script, before_state, after_state, checksum, applied_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	err := withRetry(ctx, s.config.Retry, func() error {
		_, err := s.session.ExecContext(ctx, query,
			entry.RunID, entry.Scope, entry.Script, string(entry.Before), string(entry.After),
			entry.Checksum, entry.AppliedAt.UTC().Format(time.RFC3339Nano), entry.Duration.Milliseconds())
		return err
	})
	if err != nil {
		return fmt.Errorf("append history of scope %q: %w", entry.Scope, err)
	}
	return nil
}

// History returns the journal of scope, oldest first.
func (s *StateStore) History(ctx context.Context, scope string) ([]migration.HistoryEntry, error) {
	rows, err := s.session.QueryContext(ctx, `
		SELECT run_id, scope, script, before_state, after_state, checksum, applied_at, duration_ms
		FROM `+s.historyTable()+`
		WHERE scope = ?
		ORDER BY id ASC`, scope)
	if err != nil {
		return nil, fmt.Errorf("query history of scope %q: %w", scope, MapError(err))
	}
	defer rows.Close()

	var entries []migration.HistoryEntry
	for rows.Next() {
		var (
			entry      migration.HistoryEntry
			before     string
			after      string
			appliedAt  string
			durationMs int64
		)
		if err := rows.Scan(&entry.RunID, &entry.Scope, &entry.Script, &before, &after,
			&entry.Checksum, &appliedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entry.Before = migration.State(before)
		entry.After = migration.State(after)
		entry.Duration = time.Duration(durationMs) * time.Millisecond
		if entry.AppliedAt, err = time.Parse(time.RFC3339Nano, appliedAt); err != nil {
			return nil, fmt.Errorf("parse applied_at %q: %w", appliedAt, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
