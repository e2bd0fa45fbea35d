package resource

import (
	"fmt"
	"io"

	"github.com/example/scope-migrator/internal/migration"
	"github.com/example/scope-migrator/internal/resource/metadata"
)

// ScriptError wraps a failure to load a single script
type ScriptError struct {
	Script    string // Script name relative to the resolver
	Operation string // Operation being performed (read, parse, etc.)
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %s: %s: %v", e.Script, e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *ScriptError) Unwrap() error {
	return e.Err
}

// Scan reads every *.sql script of r in name order, parses its transition
// metadata and returns the validated snapshot. A script with no statements
// is a valid transition that only advances the recorded state.
func Scan(r *FSResolver, parser metadata.Parser) ([]migration.Transition, error) {
	names, err := r.Names()
	if err != nil {
		return nil, err
	}

	transitions := make([]migration.Transition, 0, len(names))
	for _, name := range names {
		script, err := readAll(r, name)
		if err != nil {
			return nil, &ScriptError{Script: name, Operation: "read", Err: err}
		}

		md, err := parser.Parse(name, script)
		if err != nil {
			return nil, &ScriptError{Script: name, Operation: "parse metadata", Err: err}
		}

		transitions = append(transitions, migration.Transition{
			Before:      migration.State(md.Before),
			After:       migration.State(md.After),
			Script:      name,
			Destructive: md.Destructive,
		})
	}

	if err := migration.ValidateTransitions(transitions); err != nil {
		return nil, err
	}
	return transitions, nil
}

func readAll(r *FSResolver, name string) ([]byte, error) {
	rc, err := r.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
