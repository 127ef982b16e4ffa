package ui

import (
	"errors"

	"github.com/charmbracelet/huh"
)

// ErrNotInteractive is returned by Confirm when stdin is not a terminal.
var ErrNotInteractive = errors.New("confirmation needs an interactive terminal (use --yes)")

// Confirm asks a yes/no question. A cancelled prompt counts as "no".
func Confirm(title, description string) (bool, error) {
	if !IsInputTerminal() {
		return false, ErrNotInteractive
	}
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Migrate").
				Negative("Cancel").
				Value(&ok),
		),
	).WithTheme(huh.ThemeDracula())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}
