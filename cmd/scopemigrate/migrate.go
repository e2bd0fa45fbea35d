package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/scope-migrator/internal/migration"
)

// migrateResult represents the JSON output for the migrate command.
type migrateResult struct {
	Scope      string       `json:"scope"`
	From       string       `json:"from"`
	To         string       `json:"to"`
	Applied    []stepResult `json:"applied"`
	DurationMS int64        `json:"duration_ms"`
}

func newMigrateCmd(a *app) *cobra.Command {
	var (
		nonDestructive bool
		assumeYes      bool
	)

	cmd := &cobra.Command{
		Use:   "migrate [target]",
		Short: "Apply the transitions that lead to a target state",
		Long: `Apply the shortest chain of transitions from the recorded state to the
target state. The target defaults to the descriptor's required state.

Paths containing destructive transitions need confirmation: an interactive
prompt on a terminal, or --yes otherwise.`,
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

			out := cmd.OutOrStdout()
			result := migrateResult{
				Scope:   schema.Scope(),
				From:    string(current),
				To:      string(target),
				Applied: stepResults(path),
			}
			if len(path) == 0 {
				if a.flags.jsonMode {
					return writeJSON(out, result)
				}
				fmt.Fprintf(out, "Scope %s is already at %s\n", schema.Scope(), target)
				return nil
			}

			if !a.flags.jsonMode {
				fmt.Fprintf(out, "Migrating scope %s from %s to %s:\n", schema.Scope(), current, target)
				printPath(out, path)
			}

			if path.Destructive() && !assumeYes {
				if a.flags.jsonMode || !a.isTerminal() {
					return errConfirmationRequired
				}
				ok, err := a.confirm(fmt.Sprintf("Apply %d transitions including destructive ones", len(path)))
				if err != nil {
					return err
				}
				if !ok {
					return errAborted
				}
			}

			started := time.Now()
			if err := schema.Execute(ctx, path); err != nil {
				a.logger.ErrorContext(ctx, "migration failed",
					"scope", schema.Scope(),
					"error_kind", migration.ErrorKind(err),
					"error", err)
				return err
			}
			result.DurationMS = time.Since(started).Milliseconds()

			if a.flags.jsonMode {
				return writeJSON(out, result)
			}
			fmt.Fprintf(out, "%s scope %s is now at %s\n",
				color.GreenString("Done:"), schema.Scope(), color.CyanString(string(target)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&nonDestructive, "non-destructive", false,
		"Only use non-destructive transitions")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false,
		"Apply destructive transitions without asking")
	return cmd
}
