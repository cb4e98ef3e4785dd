package validator

import (
	"errors"
	"fmt"
	"slices"

	"github.com/amp-labs/wizard/statemachine"
)

var (
	// ErrTransitionExists is returned when attempting to add a transition that already exists.
	ErrTransitionExists = errors.New("transition already exists")
	// ErrTransitionNotFound is returned when attempting to remove a transition that doesn't exist.
	ErrTransitionNotFound = errors.New("transition not found")
	// ErrStepNotFound is returned when attempting to change a step that doesn't exist.
	ErrStepNotFound = errors.New("step not found")
	// ErrDuplicateNotFound is returned when attempting to remove a duplicate that doesn't exist.
	ErrDuplicateNotFound = errors.New("duplicate not found")
	// ErrStepAlreadyExists is returned when adding or renaming to an existing step name.
	ErrStepAlreadyExists = errors.New("step already exists")
	// ErrActionAlreadyDeclared is returned when declaring an action a step already has.
	ErrActionAlreadyDeclared = errors.New("action already declared")
)

// Fix represents an automatic fix for a validation error.
type Fix struct {
	Description string
	Apply       func(cfg *statemachine.DefinitionConfig) error
}

func findStep(cfg *statemachine.DefinitionConfig, name string) int {
	return slices.IndexFunc(cfg.Steps, func(s statemachine.StepConfig) bool { return s.Name == name })
}

// AddStep creates a fix that declares a missing step.
func AddStep(name string) *Fix {
	return &Fix{
		Description: fmt.Sprintf("Declare step '%s'", name),
		Apply: func(cfg *statemachine.DefinitionConfig) error {
			if findStep(cfg, name) >= 0 {
				return fmt.Errorf("%w: '%s'", ErrStepAlreadyExists, name)
			}

			cfg.Steps = append(cfg.Steps, statemachine.StepConfig{Name: name})

			return nil
		},
	}
}

// AddMissingTransition creates a fix that adds an unguarded transition between steps.
func AddMissingTransition(from, to string) *Fix {
	return &Fix{
		Description: fmt.Sprintf("Add transition from '%s' to '%s'", from, to),
		Apply: func(cfg *statemachine.DefinitionConfig) error {
			for _, t := range cfg.Transitions {
				if t.From == from && t.To == to {
					return ErrTransitionExists
				}
			}

			cfg.Transitions = append(cfg.Transitions, statemachine.TransitionConfig{
				From: from,
				To:   to,
			})

			return nil
		},
	}
}

// RemoveUnreachableStep creates a fix that removes a step and every transition touching it.
func RemoveUnreachableStep(name string) *Fix {
	return &Fix{
		Description: fmt.Sprintf("Remove unreachable step '%s'", name),
		Apply: func(cfg *statemachine.DefinitionConfig) error {
			idx := findStep(cfg, name)
			if idx < 0 {
				return fmt.Errorf("%w: '%s'", ErrStepNotFound, name)
			}

			cfg.Steps = slices.Delete(cfg.Steps, idx, idx+1)
			cfg.Transitions = slices.DeleteFunc(cfg.Transitions, func(t statemachine.TransitionConfig) bool {
				return t.From == name || t.To == name
			})

			return nil
		},
	}
}

// RemoveTransition creates a fix that removes every transition from one step to another.
func RemoveTransition(from, to string) *Fix {
	return &Fix{
		Description: fmt.Sprintf("Remove transition from '%s' to '%s'", from, to),
		Apply: func(cfg *statemachine.DefinitionConfig) error {
			before := len(cfg.Transitions)
			cfg.Transitions = slices.DeleteFunc(cfg.Transitions, func(t statemachine.TransitionConfig) bool {
				return t.From == from && t.To == to
			})

			if len(cfg.Transitions) == before {
				return ErrTransitionNotFound
			}

			return nil
		},
	}
}

// RemoveDuplicateTransition creates a fix that keeps the first transition between two steps.
func RemoveDuplicateTransition(from, to string) *Fix {
	return &Fix{
		Description: fmt.Sprintf("Remove duplicate transition from '%s' to '%s'", from, to),
		Apply: func(cfg *statemachine.DefinitionConfig) error {
			kept := make([]statemachine.TransitionConfig, 0, len(cfg.Transitions))
			first := true
			found := false

			for _, t := range cfg.Transitions {
				if t.From == from && t.To == to {
					if !first {
						found = true

						continue
					}

					first = false
				}

				kept = append(kept, t)
			}

			if !found {
				return ErrDuplicateNotFound
			}

			cfg.Transitions = kept

			return nil
		},
	}
}

// DeclareAction creates a fix that adds an action to a step.
func DeclareAction(step, action string) *Fix {
	return &Fix{
		Description: fmt.Sprintf("Declare action '%s' on step '%s'", action, step),
		Apply: func(cfg *statemachine.DefinitionConfig) error {
			idx := findStep(cfg, step)
			if idx < 0 {
				return fmt.Errorf("%w: '%s'", ErrStepNotFound, step)
			}

			if slices.Contains(cfg.Steps[idx].Actions, action) {
				return fmt.Errorf("%w: '%s'", ErrActionAlreadyDeclared, action)
			}

			cfg.Steps[idx].Actions = append(cfg.Steps[idx].Actions, action)

			return nil
		},
	}
}

// RenameStep creates a fix that renames a step everywhere it is referenced.
func RenameStep(oldName, newName string) *Fix {
	return &Fix{
		Description: fmt.Sprintf("Rename step from '%s' to '%s'", oldName, newName),
		Apply: func(cfg *statemachine.DefinitionConfig) error {
			if findStep(cfg, newName) >= 0 {
				return fmt.Errorf("%w: '%s'", ErrStepAlreadyExists, newName)
			}

			idx := findStep(cfg, oldName)
			if idx < 0 {
				return fmt.Errorf("%w: '%s'", ErrStepNotFound, oldName)
			}

			cfg.Steps[idx].Name = newName

			if cfg.Initial == oldName {
				cfg.Initial = newName
			}

			if cfg.Terminal == oldName {
				cfg.Terminal = newName
			}

			for i := range cfg.Steps {
				if cfg.Steps[i].Back == oldName {
					cfg.Steps[i].Back = newName
				}
			}

			for i, t := range cfg.Transitions {
				if t.From == oldName {
					cfg.Transitions[i].From = newName
				}

				if t.To == oldName {
					cfg.Transitions[i].To = newName
				}
			}

			return nil
		},
	}
}

// ApplyFixes applies a list of fixes to a definition.
func ApplyFixes(cfg *statemachine.DefinitionConfig, fixes []*Fix) error {
	for _, fix := range fixes {
		if fix != nil && fix.Apply != nil {
			err := fix.Apply(cfg)
			if err != nil {
				return fmt.Errorf("failed to apply fix '%s': %w", fix.Description, err)
			}
		}
	}

	return nil
}
