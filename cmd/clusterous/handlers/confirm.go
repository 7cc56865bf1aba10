package handlers

import (
	"errors"

	"github.com/charmbracelet/huh"
)

// confirm asks a yes/no question. Replaced in tests.
var confirm = func(title, description string) (bool, error) {
	var ok bool
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Description(description).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	)).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

// errDeclined is returned when the user answers no to a confirmation.
var errDeclined = errors.New("doing nothing")

// confirmOrSkip asks unless skip is set.
func confirmOrSkip(skip bool, title, description string) error {
	if skip {
		return nil
	}
	ok, err := confirm(title, description)
	if err != nil {
		return err
	}
	if !ok {
		return errDeclined
	}
	return nil
}
