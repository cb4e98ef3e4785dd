package statemachine

import (
	"testing"
	"testing/fstest"

	"github.com/amp-labs/wizard/validate"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const signupYAML = `
name: signup
initial: initial
terminal: complete
destination: /dashboard
steps:
  - name: initial
  - name: wallet-choice
    actions: [passkey]
  - name: import-wallet
    actions: [import]
    back: wallet-choice
  - name: complete
transitions:
  - from: initial
    to: wallet-choice
    when: $.mode == signup
  - from: wallet-choice
    to: import-wallet
    when: $.walletChoice == "existing"
  - from: wallet-choice
    to: complete
    requires: passkey
  - from: import-wallet
    to: complete
    guards:
      - rule: wallet_credentials
    requires: import
`

func TestLoadDefinition(t *testing.T) {
	t.Parallel()

	def, err := LoadDefinition([]byte(signupYAML), validate.NewRegistry(testFunds))
	require.NoError(t, err)

	assert.Equal(t, "signup", def.Name)
	assert.Equal(t, Step("initial"), def.Initial)
	assert.Equal(t, Step("complete"), def.Terminal)
	assert.Equal(t, Step("wallet-choice"), def.Back["import-wallet"])
	assert.Equal(t, []string{"passkey", "import"}, def.ActionNames())

	rule, ok := def.Rule("import-wallet", "complete")
	require.True(t, ok)
	assert.Equal(t, "import", rule.Requires)
	assert.Equal(t, "wallet_credentials, after import", rule.Label)
	require.Len(t, rule.Guards, 1)

	err = rule.Guards[0](Fields{"importMethod": "secret", "secretKey": "short"})
	reason, _ := validate.ReasonOf(err)
	assert.Equal(t, validate.ReasonMalformedSecretKey, reason)
}

func TestLoadDefinitionSources(t *testing.T) {
	t.Parallel()

	reg := validate.NewRegistry(testFunds)

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/flows/signup.yaml", []byte(signupYAML), 0o600))

	def, err := LoadDefinitionFile(fsys, "/flows/signup.yaml", reg)
	require.NoError(t, err)
	assert.Equal(t, "signup", def.Name)

	_, err = LoadDefinitionFile(fsys, "/flows/missing.yaml", reg)
	require.Error(t, err)

	embedded := fstest.MapFS{"signup.yaml": {Data: []byte(signupYAML)}}

	def, err = LoadDefinitionFS(embedded, "signup.yaml", reg)
	require.NoError(t, err)
	assert.Len(t, def.Rules, 4)
}

func TestLoadDefinitionErrors(t *testing.T) {
	t.Parallel()

	reg := validate.NewRegistry(testFunds)

	tests := []struct {
		name string
		yaml string
		want error
	}{
		{
			name: "unknown guard",
			yaml: `
name: x
initial: a
terminal: b
steps: [{name: a}, {name: b}]
transitions:
  - {from: a, to: b, guards: [{rule: telepathy}]}
`,
			want: validate.ErrUnknownRule,
		},
		{
			name: "guard without field",
			yaml: `
name: x
initial: a
terminal: b
steps: [{name: a}, {name: b}]
transitions:
  - {from: a, to: b, guards: [{rule: amount}]}
`,
			want: validate.ErrFieldRequired,
		},
		{
			name: "bad condition",
			yaml: `
name: x
initial: a
terminal: b
steps: [{name: a}, {name: b}]
transitions:
  - {from: a, to: b, when: "$.mode"}
`,
			want: ErrInvalidCondition,
		},
		{
			name: "dead end",
			yaml: `
name: x
initial: a
terminal: b
steps: [{name: a}, {name: b}, {name: c}]
transitions:
  - {from: a, to: b}
  - {from: a, to: c}
`,
			want: ErrDeadEndStep,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := LoadDefinition([]byte(tt.yaml), reg)
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := LoadDefinition([]byte("name: [unterminated"), reg)
	require.Error(t, err)
}

func TestCompileCondition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr   string
		fields Fields
		pass   bool
	}{
		{"$.mode == signup", Fields{"mode": "signup"}, true},
		{"$.mode == signup", Fields{"mode": "signin"}, false},
		{"$.mode == signup", Fields{}, false},
		{"$.mode == ''", Fields{}, true},
		{`$.walletChoice != "existing"`, Fields{"walletChoice": "new"}, true},
		{`$.walletChoice != "existing"`, Fields{"walletChoice": "existing"}, false},
	}

	for _, tt := range tests {
		guard, err := CompileCondition(tt.expr)
		require.NoError(t, err, tt.expr)

		err = guard(tt.fields)
		if tt.pass {
			require.NoError(t, err, tt.expr)
		} else {
			require.ErrorIs(t, err, ErrConditionNotMet, tt.expr)
		}
	}
}

func TestConditionRejectionIsReported(t *testing.T) {
	t.Parallel()

	def, err := LoadDefinition([]byte(signupYAML), validate.NewRegistry(testFunds))
	require.NoError(t, err)

	m := newTestMachine(t, def, WithActions(newGate("passkey"), newGate("import")))
	require.NoError(t, m.SetField("mode", "signin"))

	err = m.RequestTransition(t.Context(), "wallet-choice")
	require.ErrorIs(t, err, ErrGuardRejected)
	require.ErrorIs(t, err, ErrConditionNotMet)
	assert.Equal(t, ReasonConditionNotMet, m.Snapshot().ErrorReason)

	require.NoError(t, m.SetField("mode", "signup"))
	require.NoError(t, m.RequestTransition(t.Context(), "wallet-choice"))
	assert.Equal(t, []Step{}, m.Allowed())

	require.NoError(t, m.SetField("walletChoice", "existing"))
	assert.Equal(t, []Step{"import-wallet"}, m.Allowed())
}
