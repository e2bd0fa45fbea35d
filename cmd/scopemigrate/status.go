package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// statusResult represents the JSON output for the status command.
type statusResult struct {
	Scope         string `json:"scope"`
	CurrentState  string `json:"current_state"`
	RequiredState string `json:"required_state"`
	UpToDate      bool   `json:"up_to_date"`
	Reachable     bool   `json:"reachable"`
	PendingSteps  int    `json:"pending_steps"`
	Destructive   bool   `json:"destructive"`
	StateLocation string `json:"state_location"`
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the scope's recorded and required state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := a.commandContext(cmd)
			schema, release, err := a.openSchema(ctx)
			if err != nil {
				return err
			}
			defer release()

			current, err := schema.CurrentState(ctx)
			if err != nil {
				return err
			}
			required := schema.Descriptor.Target("")
			path, found, err := schema.PathFromCurrentState(ctx, required)
			if err != nil {
				return err
			}

			result := statusResult{
				Scope:         schema.Scope(),
				CurrentState:  string(current),
				RequiredState: string(required),
				UpToDate:      current == required,
				Reachable:     found,
				PendingSteps:  len(path),
				Destructive:   path.Destructive(),
				StateLocation: schema.Store.Location(),
			}
			if a.flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scope:           %s\n", result.Scope)
			fmt.Fprintf(out, "Current state:   %s\n", result.CurrentState)
			fmt.Fprintf(out, "Required state:  %s\n", result.RequiredState)
			fmt.Fprintf(out, "State location:  %s\n", result.StateLocation)
			switch {
			case result.UpToDate:
				fmt.Fprintf(out, "Status:          %s\n", color.GreenString("up to date"))
			case !result.Reachable:
				fmt.Fprintf(out, "Status:          %s\n", color.RedString("no path to required state"))
			case result.Destructive:
				fmt.Fprintf(out, "Status:          %s (%d steps, destructive)\n", color.YellowString("stale"), result.PendingSteps)
			default:
				fmt.Fprintf(out, "Status:          %s (%d steps)\n", color.YellowString("stale"), result.PendingSteps)
			}
			return nil
		},
	}
}
