// Package migration moves a named scope from its persisted state to a
// requested target state by executing a sequence of transition scripts.
//
// Each scope has exactly one persisted current state. A Transition is a
// single script that moves the scope from its Before state to its After
// state; a Path is a connected sequence of transitions. The Migrator asks a
// Router for the path from the current state to a target, then runs every
// script in order:
//
//   - comments are stripped from the script text (quoted literals are left
//     untouched), the remainder is split on ';' and each statement is
//     executed in file order
//   - after every successful transition the scope's state is committed, so
//     an interrupted run resumes from the last completed transition
//   - any failure stops the path and reports the script, the persisted
//     state at that moment and a warning that the script may be partially
//     applied
//
// There is no locking: at most one Migrator may mutate a given scope at a
// time, and callers are responsible for enforcing that.
//
// Example usage:
//
//	m, err := migration.New(migration.Config{
//		Scope:       "billing",
//		Store:       store,
//		Resolver:    resolver,
//		Executor:    db,
//		Transitions: transitions,
//	})
//	if err != nil {
//		return err
//	}
//	if err := m.MigrateTo(ctx, "1.6.0"); err != nil {
//		return err
//	}
package migration
