package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// historyResult is one journal entry in JSON output.
type historyResult struct {
	RunID      string    `json:"run_id"`
	Script     string    `json:"script"`
	Before     string    `json:"before"`
	After      string    `json:"after"`
	Checksum   string    `json:"checksum"`
	AppliedAt  time.Time `json:"applied_at"`
	DurationMS int64     `json:"duration_ms"`
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List the transitions applied to the scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := a.commandContext(cmd)
			schema, release, err := a.openSchema(ctx)
			if err != nil {
				return err
			}
			defer release()

			entries, err := schema.History(ctx)
			if err != nil {
				return err
			}

			if a.flags.jsonMode {
				results := make([]historyResult, 0, len(entries))
				for _, e := range entries {
					results = append(results, historyResult{
						RunID:      e.RunID,
						Script:     e.Script,
						Before:     string(e.Before),
						After:      string(e.After),
						Checksum:   e.Checksum,
						AppliedAt:  e.AppliedAt,
						DurationMS: e.Duration.Milliseconds(),
					})
				}
				return writeJSON(cmd.OutOrStdout(), results)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "No transitions recorded for scope %s\n", schema.Scope())
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "APPLIED AT\tSCRIPT\tBEFORE\tAFTER\tDURATION\tRUN")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.AppliedAt.UTC().Format(time.RFC3339), e.Script, e.Before, e.After,
					e.Duration.Round(time.Millisecond), shortID(e.RunID))
			}
			return w.Flush()
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
