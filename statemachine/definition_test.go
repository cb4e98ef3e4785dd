package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinitionValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Definition {
		return &Definition{
			Name:     "flow",
			Initial:  "a",
			Terminal: "c",
			Steps:    []Step{"a", "b", "c"},
			Rules: []Rule{
				{From: "a", To: "b"},
				{From: "b", To: "c", Requires: "go"},
			},
			Actions: map[Step][]string{"b": {"go"}},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(d *Definition)
		want   error
	}{
		{"no name", func(d *Definition) { d.Name = "" }, ErrDefinitionNameRequired},
		{"no initial", func(d *Definition) { d.Initial = "" }, ErrInitialStepRequired},
		{"no terminal", func(d *Definition) { d.Terminal = "" }, ErrTerminalStepRequired},
		{"unknown initial", func(d *Definition) { d.Initial = "x" }, ErrUnknownStep},
		{"duplicate step", func(d *Definition) { d.Steps = append(d.Steps, "a") }, ErrDuplicateStep},
		{"unknown rule target", func(d *Definition) { d.Rules[0].To = "x" }, ErrUnknownStep},
		{"duplicate rule", func(d *Definition) { d.Rules = append(d.Rules, Rule{From: "a", To: "b"}) }, ErrDuplicateRule},
		{"terminal with rule", func(d *Definition) { d.Rules = append(d.Rules, Rule{From: "c", To: "a"}) }, ErrTerminalHasRules},
		{"dead end", func(d *Definition) {
			d.Steps = append(d.Steps, "d")
			d.Rules = append(d.Rules, Rule{From: "a", To: "d"})
		}, ErrDeadEndStep},
		{"unreachable", func(d *Definition) {
			d.Steps = append(d.Steps, "d")
			d.Rules = append(d.Rules, Rule{From: "d", To: "c"})
		}, ErrUnreachableStep},
		{"undeclared requirement", func(d *Definition) { d.Actions = nil }, ErrUnknownAction},
		{"unknown back target", func(d *Definition) { d.Back = map[Step]Step{"b": "x"} }, ErrUnknownStep},
		{"actions on unknown step", func(d *Definition) { d.Actions["x"] = []string{"go"} }, ErrUnknownStep},
		{"self loop", func(d *Definition) { d.Rules = append(d.Rules, Rule{From: "b", To: "b"}) }, ErrCyclicRules},
		{"forward cycle", func(d *Definition) { d.Rules = append(d.Rules, Rule{From: "b", To: "a"}) }, ErrCyclicRules},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := valid()
			tt.mutate(d)
			require.ErrorIs(t, d.Validate(), tt.want)
		})
	}
}

func TestBuilderRejectsCycle(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder("loop").
		WithInitialStep("details").
		AddStep("review").
		AddStep("confirm").
		WithTerminalStep("complete", "/done").
		AddTransition("details", "review").
		AddTransition("review", "confirm").
		AddTransition("confirm", "details").
		AddTransition("confirm", "complete").
		Build()
	require.ErrorIs(t, err, ErrCyclicRules)
	assert.ErrorContains(t, err, "confirm -> details")
}

func TestDefinitionLookups(t *testing.T) {
	t.Parallel()

	def, err := NewBuilder("lookups").
		WithInitialStep("initial").
		AddStep("initial", "passkey").
		AddStep("choice", "passkey", "import").
		WithTerminalStep("complete", "/dashboard").
		AddTransition("initial", "choice", Labeled("signup")).
		AddTransition("initial", "complete", Requires("passkey")).
		AddTransition("choice", "complete").
		Build()
	require.NoError(t, err)

	rule, ok := def.Rule("initial", "choice")
	require.True(t, ok)
	assert.Equal(t, "signup", rule.Label)

	_, ok = def.Rule("choice", "initial")
	assert.False(t, ok)

	assert.Len(t, def.RulesFrom("initial"), 2)
	assert.True(t, def.HasAction("choice", "import"))
	assert.False(t, def.HasAction("initial", "import"))
	assert.Equal(t, []string{"passkey", "import"}, def.ActionNames())
	assert.Equal(t, map[Step]bool{"initial": true, "choice": true, "complete": true}, def.Reachable())
	assert.Equal(t, "/dashboard", def.Destination)
}
