// Package visualizer generates Mermaid diagrams from flow definitions.
package visualizer

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/amp-labs/wizard/statemachine"
	"github.com/spf13/afero"
)

// Visualizer errors.
var (
	ErrConfigNil      = errors.New("definition cannot be nil")
	ErrNoInitialState = errors.New("definition must have an initial step")
)

type palette struct {
	action, terminal, highlighted string
}

var palettes = map[string]palette{
	"default": {
		action:      "fill:#e1f5ff,stroke:#01579b,stroke-width:2px",
		terminal:    "fill:#c8e6c9,stroke:#2e7d32,stroke-width:2px",
		highlighted: "fill:#fff9c4,stroke:#f57f17,stroke-width:3px",
	},
	"dark": {
		action:      "fill:#0d47a1,stroke:#90caf9,color:#ffffff,stroke-width:2px",
		terminal:    "fill:#1b5e20,stroke:#a5d6a7,color:#ffffff,stroke-width:2px",
		highlighted: "fill:#e65100,stroke:#ffcc80,color:#ffffff,stroke-width:3px",
	},
}

// GenerateMermaid converts a definition to a Mermaid state diagram.
func GenerateMermaid(cfg *statemachine.DefinitionConfig) (string, error) {
	return GenerateMermaidWithOptions(cfg, DefaultOptions())
}

// GenerateMermaidFromFile loads a definition from fsys and generates a Mermaid diagram.
func GenerateMermaidFromFile(fsys afero.Fs, path string, opts Options) (string, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return "", fmt.Errorf("failed to read definition: %w", err)
	}

	cfg, err := statemachine.ParseDefinitionConfig(data)
	if err != nil {
		return "", fmt.Errorf("failed to load definition: %w", err)
	}

	return GenerateMermaidWithOptions(cfg, opts)
}

// nodeID turns a step name into a Mermaid identifier; hyphens would be read as part of an arrow.
func nodeID(step string) string {
	return strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(step)
}

// GenerateMermaidWithOptions generates a Mermaid diagram with custom options.
func GenerateMermaidWithOptions(cfg *statemachine.DefinitionConfig, opts Options) (string, error) {
	if cfg == nil {
		return "", ErrConfigNil
	}

	if cfg.Initial == "" {
		return "", ErrNoInitialState
	}

	colors, ok := palettes[opts.Theme]
	if !ok {
		colors = palettes["default"]
	}

	direction := opts.Direction
	if direction == "" {
		direction = "TB"
	}

	var sb strings.Builder

	if opts.Fenced {
		sb.WriteString("```mermaid\n")
	}

	sb.WriteString("stateDiagram-v2\n")
	fmt.Fprintf(&sb, "    direction %s\n", direction)

	for _, step := range cfg.Steps {
		label := step.Name
		if step.Title != "" {
			label = step.Title
		}

		if opts.ShowActions && len(step.Actions) > 0 {
			label += "\\n[" + strings.Join(step.Actions, ", ") + "]"
		}

		fmt.Fprintf(&sb, "    state \"%s\" as %s\n", label, nodeID(step.Name))
	}

	fmt.Fprintf(&sb, "    [*] --> %s\n", nodeID(cfg.Initial))

	for _, t := range cfg.Transitions {
		label := ""
		if opts.ShowConditions {
			if text := t.Label(); text != "" {
				label = ": " + text
			}
		}

		fmt.Fprintf(&sb, "    %s --> %s%s\n", nodeID(t.From), nodeID(t.To), label)
	}

	if opts.ShowBack {
		for _, step := range cfg.Steps {
			if step.Back != "" {
				fmt.Fprintf(&sb, "    %s --> %s: back\n", nodeID(step.Name), nodeID(step.Back))
			}
		}
	}

	if cfg.Terminal != "" {
		fmt.Fprintf(&sb, "    %s --> [*]\n", nodeID(cfg.Terminal))
	}

	for _, step := range cfg.Steps {
		switch {
		case slices.Contains(opts.HighlightPath, step.Name):
			fmt.Fprintf(&sb, "    class %s highlighted\n", nodeID(step.Name))
		case step.Name == cfg.Terminal:
			fmt.Fprintf(&sb, "    class %s terminalStep\n", nodeID(step.Name))
		case len(step.Actions) > 0:
			fmt.Fprintf(&sb, "    class %s actionStep\n", nodeID(step.Name))
		}
	}

	sb.WriteString("\n")
	fmt.Fprintf(&sb, "    classDef actionStep %s\n", colors.action)
	fmt.Fprintf(&sb, "    classDef terminalStep %s\n", colors.terminal)
	fmt.Fprintf(&sb, "    classDef highlighted %s\n", colors.highlighted)

	if opts.Fenced {
		sb.WriteString("```\n")
	}

	return sb.String(), nil
}
