package statemachine

// Builder provides a fluent API for constructing flow definitions in code.
type Builder struct {
	def *Definition
}

// RuleOption customizes a rule added with AddTransition.
type RuleOption func(*Rule)

// Guarded adds guards to the rule. All of them must pass, in order.
func Guarded(guards ...Guard) RuleOption {
	return func(r *Rule) {
		r.Guards = append(r.Guards, guards...)
	}
}

// Requires makes the rule wait for a successful run of the named action.
func Requires(action string) RuleOption {
	return func(r *Rule) {
		r.Requires = action
	}
}

// Labeled sets the text shown for the rule in diagrams.
func Labeled(label string) RuleOption {
	return func(r *Rule) {
		r.Label = label
	}
}

// NewBuilder creates a new flow definition builder.
func NewBuilder(name string) *Builder {
	return &Builder{
		def: &Definition{
			Name:    name,
			Back:    make(map[Step]Step),
			Actions: make(map[Step][]string),
		},
	}
}

// WithInitialStep sets the initial step, adding it if it is new.
func (b *Builder) WithInitialStep(step Step) *Builder {
	b.def.Initial = step

	return b.AddStep(step)
}

// WithTerminalStep sets the terminal step and the destination announced when it is reached.
func (b *Builder) WithTerminalStep(step Step, destination string) *Builder {
	b.def.Terminal = step
	b.def.Destination = destination

	return b.AddStep(step)
}

// AddStep adds a step and the actions allowed on it.
func (b *Builder) AddStep(step Step, actions ...string) *Builder {
	if !b.def.HasStep(step) {
		b.def.Steps = append(b.def.Steps, step)
	}

	b.def.Actions[step] = append(b.def.Actions[step], actions...)

	return b
}

// AddTransition adds a rule from one step to another. Unknown steps are added.
func (b *Builder) AddTransition(from, to Step, opts ...RuleOption) *Builder {
	b.AddStep(from)
	b.AddStep(to)

	rule := Rule{From: from, To: to}
	for _, opt := range opts {
		opt(&rule)
	}

	b.def.Rules = append(b.def.Rules, rule)

	return b
}

// WithBack pins the step GoBack returns to from step.
func (b *Builder) WithBack(step, previous Step) *Builder {
	b.def.Back[step] = previous

	return b
}

// Build validates and returns the definition.
func (b *Builder) Build() (*Definition, error) {
	err := b.def.Validate()
	if err != nil {
		return nil, err
	}

	return b.def, nil
}
