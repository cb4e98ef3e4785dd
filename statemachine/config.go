package statemachine

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/amp-labs/wizard/validate"
	"github.com/oliveagle/jsonpath"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DefinitionConfig is the file form of a Definition.
type DefinitionConfig struct {
	Name        string             `json:"name"                  yaml:"name"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Initial     string             `json:"initial"               yaml:"initial"`
	Terminal    string             `json:"terminal"              yaml:"terminal"`
	Destination string             `json:"destination"           yaml:"destination"`
	Steps       []StepConfig       `json:"steps"                 yaml:"steps"`
	Transitions []TransitionConfig `json:"transitions"           yaml:"transitions"`
}

// StepConfig declares a step, its actions and an optional fixed back target.
type StepConfig struct {
	Name        string   `json:"name"                  yaml:"name"`
	Title       string   `json:"title,omitempty"       yaml:"title,omitempty"`
	Actions     []string `json:"actions,omitempty"     yaml:"actions,omitempty"`
	Back        string   `json:"back,omitempty"        yaml:"back,omitempty"`
	Fields      []string `json:"fields,omitempty"      yaml:"fields,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// TransitionConfig declares a rule. When is a condition of the form "$.field == value" or
// "$.field != value" evaluated against the fields; Guards name validate rules.
type TransitionConfig struct {
	From     string          `json:"from"               yaml:"from"`
	To       string          `json:"to"                 yaml:"to"`
	When     string          `json:"when,omitempty"     yaml:"when,omitempty"`
	Guards   []validate.Spec `json:"guards,omitempty"   yaml:"guards,omitempty"`
	Requires string          `json:"requires,omitempty" yaml:"requires,omitempty"`
}

// Step returns the step config with the given name.
func (c *DefinitionConfig) Step(name string) (StepConfig, bool) {
	for _, step := range c.Steps {
		if step.Name == name {
			return step, true
		}
	}

	return StepConfig{}, false
}

// Label summarises the transition's conditions for diagrams.
func (t TransitionConfig) Label() string {
	var parts []string

	if t.When != "" {
		parts = append(parts, t.When)
	}

	for _, g := range t.Guards {
		if g.Field != "" {
			parts = append(parts, g.Rule+"("+g.Field+")")
		} else {
			parts = append(parts, g.Rule)
		}
	}

	if t.Requires != "" {
		parts = append(parts, "after "+t.Requires)
	}

	return strings.Join(parts, ", ")
}

// ParseDefinitionConfig decodes YAML without compiling guards.
func ParseDefinitionConfig(data []byte) (*DefinitionConfig, error) {
	var cfg DefinitionConfig

	err := yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &cfg, nil
}

// LoadDefinition decodes and compiles a YAML definition. Guards are resolved by name in reg.
func LoadDefinition(data []byte, reg *validate.Registry) (*Definition, error) {
	cfg, err := ParseDefinitionConfig(data)
	if err != nil {
		return nil, err
	}

	return cfg.Compile(reg)
}

// LoadDefinitionFile reads a YAML definition from fsys.
func LoadDefinitionFile(fsys afero.Fs, path string, reg *validate.Registry) (*Definition, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file %q: %w", path, err)
	}

	return LoadDefinition(data, reg)
}

// LoadDefinitionFS reads a YAML definition from an embedded filesystem.
func LoadDefinitionFS(fsys fs.FS, path string, reg *validate.Registry) (*Definition, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition from FS: %w", err)
	}

	return LoadDefinition(data, reg)
}

// Compile resolves conditions and guards and validates the result.
func (c *DefinitionConfig) Compile(reg *validate.Registry) (*Definition, error) {
	def := &Definition{
		Name:        c.Name,
		Initial:     Step(c.Initial),
		Terminal:    Step(c.Terminal),
		Destination: c.Destination,
		Back:        make(map[Step]Step),
		Actions:     make(map[Step][]string),
	}

	for _, step := range c.Steps {
		def.Steps = append(def.Steps, Step(step.Name))

		if len(step.Actions) > 0 {
			def.Actions[Step(step.Name)] = step.Actions
		}

		if step.Back != "" {
			def.Back[Step(step.Name)] = Step(step.Back)
		}
	}

	for i, t := range c.Transitions {
		rule := Rule{
			From:     Step(t.From),
			To:       Step(t.To),
			Requires: t.Requires,
			Label:    t.Label(),
		}

		if t.When != "" {
			cond, err := CompileCondition(t.When)
			if err != nil {
				return nil, fmt.Errorf("transition %d: %w", i, err)
			}

			rule.Guards = append(rule.Guards, cond)
		}

		for _, spec := range t.Guards {
			if reg == nil {
				return nil, fmt.Errorf("transition %d: %w: %q", i, validate.ErrUnknownRule, spec.Rule)
			}

			check, err := reg.Build(spec)
			if err != nil {
				return nil, fmt.Errorf("transition %d: %w", i, err)
			}

			rule.Guards = append(rule.Guards, Check(check))
		}

		def.Rules = append(def.Rules, rule)
	}

	err := def.Validate()
	if err != nil {
		return nil, fmt.Errorf("definition %q: %w", c.Name, err)
	}

	return def, nil
}

// Check adapts a validate check into a guard.
func Check(fn validate.Func) Guard {
	return func(fields Fields) error {
		return fn(fields)
	}
}

// CompileCondition turns "$.path == value" or "$.path != value" into a guard. A path that does not
// resolve compares as the empty string.
func CompileCondition(expr string) (Guard, error) {
	op := "=="

	path, want, found := strings.Cut(expr, "==")
	if !found {
		op = "!="

		path, want, found = strings.Cut(expr, "!=")
		if !found {
			return nil, fmt.Errorf("%w: %q needs == or !=", ErrInvalidCondition, expr)
		}
	}

	path = strings.TrimSpace(path)
	want = strings.Trim(strings.TrimSpace(want), `"'`)

	compiled, err := jsonpath.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidCondition, expr, err)
	}

	return func(fields Fields) error {
		data := make(map[string]any, len(fields))
		for k, v := range fields {
			data[k] = v
		}

		got := ""

		value, lookupErr := compiled.Lookup(data)
		if lookupErr == nil && value != nil {
			got = fmt.Sprint(value)
		}

		if (got == want) == (op == "==") {
			return nil
		}

		return fmt.Errorf("%w: %s", ErrConditionNotMet, expr)
	}, nil
}
