package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/scope-migrator/internal/descriptor"
	"github.com/example/scope-migrator/internal/migration"
)

// pathResult represents the JSON output for the path command.
type pathResult struct {
	Scope          string       `json:"scope"`
	From           string       `json:"from"`
	To             string       `json:"to"`
	NonDestructive bool         `json:"non_destructive"`
	Destructive    bool         `json:"destructive"`
	Steps          []stepResult `json:"steps"`
}

func newPathCmd(a *app) *cobra.Command {
	var nonDestructive bool

	cmd := &cobra.Command{
		Use:   "path [target]",
		Short: "Show the transitions that lead to a target state",
		Long: `Show the shortest chain of transitions from the recorded state to the
target state. The target defaults to the descriptor's required state.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.commandContext(cmd)
			schema, release, err := a.openSchema(ctx)
			if err != nil {
				return err
			}
			defer release()

			current, target, path, err := resolvePath(ctx, schema, targetArg(args), nonDestructive)
			if err != nil {
				return err
			}

			if a.flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), pathResult{
					Scope:          schema.Scope(),
					From:           string(current),
					To:             string(target),
					NonDestructive: nonDestructive,
					Destructive:    path.Destructive(),
					Steps:          stepResults(path),
				})
			}

			out := cmd.OutOrStdout()
			if len(path) == 0 {
				fmt.Fprintf(out, "Scope %s is already at %s\n", schema.Scope(), target)
				return nil
			}
			fmt.Fprintf(out, "Path for scope %s from %s to %s:\n", schema.Scope(), current, target)
			printPath(out, path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&nonDestructive, "non-destructive", false,
		"Only consider non-destructive transitions")
	return cmd
}

func targetArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// resolvePath finds the path from the recorded state to target, or to the
// required state when target is empty.
func resolvePath(ctx context.Context, schema *descriptor.Schema, override string, nonDestructive bool) (migration.State, migration.State, migration.Path, error) {
	target := schema.Descriptor.Target(override)

	current, err := schema.CurrentState(ctx)
	if err != nil {
		return "", "", nil, err
	}

	find := schema.PathFromCurrentState
	if nonDestructive {
		find = schema.NonDestructivePathFromCurrentState
	}
	path, found, err := find(ctx, target)
	if err != nil {
		return "", "", nil, err
	}
	if !found {
		return "", "", nil, &migration.NoPathError{
			Scope:          schema.Scope(),
			From:           current,
			To:             target,
			NonDestructive: nonDestructive,
		}
	}
	return current, target, path, nil
}
