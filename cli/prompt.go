package cli

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrQuit is returned when the user interrupts a prompt.
var ErrQuit = errors.New("quit")

// Prompter asks the user for input.
type Prompter interface {
	// Select returns the index of the chosen item.
	Select(label string, items []string) (int, error)
	// Input reads a line. Secret input is masked while typing.
	Input(label string, secret bool) (string, error)
	Confirm(label string) (bool, error)
}

// Terminal is a Prompter backed by promptui.
type Terminal struct {
	In  io.ReadCloser
	Out io.WriteCloser
}

// NewTerminal prompts on stdin and stdout.
func NewTerminal() *Terminal {
	return &Terminal{In: os.Stdin, Out: os.Stdout}
}

func quit(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return ErrQuit
	}

	return err
}

func (t *Terminal) Select(label string, items []string) (int, error) {
	sel := &promptui.Select{
		Label: label,
		Items: items,
		Size:  len(items),
		Searcher: func(input string, index int) bool {
			return input != "" && strings.HasPrefix(strings.ToLower(items[index]), strings.ToLower(input))
		},
		Stdin:  t.In,
		Stdout: t.Out,
	}

	idx, _, err := sel.Run()
	if err != nil {
		return 0, quit(err)
	}

	return idx, nil
}

func (t *Terminal) Input(label string, secret bool) (string, error) {
	prompt := promptui.Prompt{
		Label:  label,
		Stdin:  t.In,
		Stdout: t.Out,
	}

	if secret {
		prompt.Mask = '*'
	}

	value, err := prompt.Run()
	if err != nil {
		return "", quit(err)
	}

	return value, nil
}

func (t *Terminal) Confirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     t.In,
		Stdout:    t.Out,
	}

	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}

		return false, quit(err)
	}

	return true, nil
}
