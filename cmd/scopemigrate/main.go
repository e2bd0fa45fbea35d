package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/example/scope-migrator/internal/migration"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, newApp(), os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// Exit codes.
const (
	exitOK         = 0
	exitFailure    = 1
	exitNoPath     = 2
	exitTransition = 3
)

func run(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "%s %v\n", color.RedString("error:"), err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	var transitionErr *migration.TransitionError
	switch {
	case errors.As(err, &transitionErr):
		return exitTransition
	case errors.Is(err, migration.ErrNoPath):
		return exitNoPath
	default:
		return exitFailure
	}
}
