package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/example/scope-migrator/internal/migration"
)

// stepResult is one transition of a path in JSON output.
type stepResult struct {
	Script      string `json:"script"`
	Before      string `json:"before"`
	After       string `json:"after"`
	Destructive bool   `json:"destructive"`
}

func stepResults(path migration.Path) []stepResult {
	steps := make([]stepResult, 0, len(path))
	for _, t := range path {
		steps = append(steps, stepResult{
			Script:      t.Script,
			Before:      string(t.Before),
			After:       string(t.After),
			Destructive: t.Destructive,
		})
	}
	return steps
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printPath(w io.Writer, path migration.Path) {
	for i, t := range path {
		marker := ""
		if t.Destructive {
			marker = "  " + color.RedString("[destructive]")
		}
		fmt.Fprintf(w, "  %d. %s -> %s  %s%s\n", i+1,
			t.Before, color.CyanString(string(t.After)), t.Script, marker)
	}
}
