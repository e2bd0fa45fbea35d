package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"
)

var (
	errConfirmationRequired = errors.New("path contains destructive transitions; rerun with --yes to apply them without a terminal")
	errAborted              = errors.New("migration aborted")
)

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func promptConfirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}

	_, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		if errors.Is(err, promptui.ErrInterrupt) {
			return false, errAborted
		}
		return false, fmt.Errorf("confirmation prompt: %w", err)
	}
	return true, nil
}
