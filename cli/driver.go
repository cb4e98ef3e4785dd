// Package cli drives a flow session interactively in a terminal.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/amp-labs/wizard/redact"
	"github.com/amp-labs/wizard/statemachine"
	"github.com/amp-labs/wizard/validate"
	"gopkg.in/yaml.v3"
)

type choiceKind int

const (
	choiceField choiceKind = iota
	choiceAction
	choiceStep
	choiceBack
	choiceReset
	choiceQuit
)

type choice struct {
	kind  choiceKind
	name  string
	label string
}

// Driver walks a machine through its flow by prompting the user at every step.
type Driver struct {
	Machine  *statemachine.Machine
	Config   *statemachine.DefinitionConfig
	Prompter Prompter
	Out      io.Writer
	Width    int
}

// Run loops until the flow completes, the user quits or ctx ends. Quitting is not an error.
func (d *Driver) Run(ctx context.Context) error {
	if d.Width <= 0 {
		d.Width = DefaultTerminalWidth
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		snap := d.Machine.Snapshot()
		d.render(ctx, snap)

		if snap.Complete {
			fmt.Fprintf(d.Out, "Flow complete. Continue at %s\n", d.Machine.Definition().Destination)

			return nil
		}

		choices := d.choices(snap)
		labels := make([]string, len(choices))

		for i, c := range choices {
			labels[i] = c.label
		}

		idx, err := d.Prompter.Select("What next?", labels)
		if err != nil {
			if errors.Is(err, ErrQuit) {
				return nil
			}

			return err
		}

		done, err := d.apply(ctx, choices[idx])
		if err != nil {
			return err
		}

		if done {
			return nil
		}
	}
}

func (d *Driver) title(step statemachine.Step) string {
	if cfg, ok := d.Config.Step(string(step)); ok && cfg.Title != "" {
		return cfg.Title
	}

	return string(step)
}

func (d *Driver) render(ctx context.Context, snap statemachine.Snapshot) {
	step, _ := d.Config.Step(string(snap.Step))

	text := d.title(snap.Step)
	if step.Description != "" {
		text += "\n" + step.Description
	}

	fmt.Fprint(d.Out, Banner(text, d.Width, AlignCenter))

	fields := redact.Fields(ctx, snap.Fields, redact.Secrets)
	names := make([]string, 0, len(fields))

	for name := range fields {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(d.Out, "  %s: %s\n", name, fields[name])
	}

	if snap.ErrorMessage != "" {
		if snap.ErrorField != "" {
			fmt.Fprintf(d.Out, "! %s (%s)\n", snap.ErrorMessage, snap.ErrorField)
		} else {
			fmt.Fprintf(d.Out, "! %s\n", snap.ErrorMessage)
		}
	}
}

func (d *Driver) choices(snap statemachine.Snapshot) []choice {
	step, _ := d.Config.Step(string(snap.Step))

	var out []choice

	for _, field := range step.Fields {
		out = append(out, choice{kind: choiceField, name: field, label: "Set " + field})
	}

	for _, action := range snap.Actions {
		out = append(out, choice{kind: choiceAction, name: action, label: "Run " + action})
	}

	// Every outgoing step is offered so a rejected guard can explain itself.
	for _, rule := range d.Machine.Definition().RulesFrom(snap.Step) {
		out = append(out, choice{kind: choiceStep, name: string(rule.To), label: "Go to " + d.title(rule.To)})
	}

	if len(snap.History) > 0 || step.Back != "" {
		out = append(out, choice{kind: choiceBack, label: "Back"})
	}

	out = append(out,
		choice{kind: choiceReset, label: "Start over"},
		choice{kind: choiceQuit, label: "Quit"})

	return out
}

func secret(field string) bool {
	return slices.Contains([]string{validate.FieldSecretKey, validate.FieldSeedPhrase}, field)
}

// apply performs a menu choice. Flow errors are shown to the user and do not end the loop.
func (d *Driver) apply(ctx context.Context, c choice) (bool, error) {
	var err error

	switch c.kind {
	case choiceField:
		var value string

		value, err = d.Prompter.Input(c.name, secret(c.name))
		if err == nil {
			err = d.Machine.SetField(c.name, value)
		}
	case choiceAction:
		err = d.run(ctx, c.name)
	case choiceStep:
		err = d.Machine.RequestTransition(ctx, statemachine.Step(c.name))
	case choiceBack:
		err = d.Machine.GoBack(ctx)
	case choiceReset:
		var ok bool

		ok, err = d.Prompter.Confirm("Discard everything and start over")
		if err == nil && ok {
			err = d.Machine.Reset(ctx)
		}
	case choiceQuit:
		return true, nil
	}

	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, ErrQuit):
		return true, nil
	case errors.Is(err, statemachine.ErrSessionClosed), errors.Is(err, context.Canceled):
		return true, err
	}

	var transitionErr *statemachine.TransitionError
	if errors.As(err, &transitionErr) && errors.Is(err, statemachine.ErrGuardRejected) {
		// The machine already carries the rejection; render shows it.
		return false, nil
	}

	fmt.Fprintf(d.Out, "! %s\n", err)

	return false, nil
}

func (d *Driver) run(ctx context.Context, action string) error {
	pending, err := d.Machine.Run(ctx, action)
	if err != nil {
		return err
	}

	fmt.Fprintf(d.Out, "Running %s…\n", action)

	result, err := pending.Await(ctx)
	if err != nil && !result.OK() && result.Kind == "" {
		return err
	}

	if !result.OK() {
		// Failures land in the snapshot's error message.
		return nil
	}

	if result.Message != "" {
		fmt.Fprintln(d.Out, result.Message)
	}

	if len(result.Payload) > 0 {
		payload := make(map[string]any, len(result.Payload))

		for key, value := range result.Payload {
			if str, ok := value.(string); ok {
				if masked, kept := redact.Value(ctx, key, str, redact.Secrets); kept {
					payload[key] = masked
				}

				continue
			}

			payload[key] = value
		}

		out, yamlErr := yaml.Marshal(payload)
		if yamlErr == nil {
			fmt.Fprint(d.Out, indent(string(out)))
		}
	}

	return nil
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")

	return "  " + strings.Join(lines, "\n  ") + "\n"
}
