package validate

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Spec names a rule and the field it applies to, as written in a flow definition file.
type Spec struct {
	Rule   string   `json:"rule"             yaml:"rule"`
	Field  string   `json:"field,omitempty"  yaml:"field,omitempty"`
	Values []string `json:"values,omitempty" yaml:"values,omitempty"`
}

// Builder turns a Spec into a check.
type Builder func(spec Spec) Func

type registration struct {
	build        Builder
	defaultField string
}

// Registry maps rule names to builders so definition files can refer to checks by name.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]registration
}

// NewRegistry returns a registry holding the built-in rules. Amount checks use funds.
func NewRegistry(funds Funds) *Registry {
	reg := &Registry{
		rules: make(map[string]registration),
	}

	reg.Register("secret_key", FieldSecretKey, func(s Spec) Func { return SecretKey(s.Field) })
	reg.Register("recovery_phrase", FieldSeedPhrase, func(s Spec) Func { return RecoveryPhrase(s.Field) })
	reg.Register("public_key", "", func(s Spec) Func { return PublicKey(s.Field) })
	reg.Register("amount", "", func(s Spec) Func { return Amount(s.Field, funds) })
	reg.Register("email", "email", func(s Spec) Func { return Email(s.Field) })
	reg.Register("one_of", "", func(s Spec) Func { return OneOf(s.Field, s.Values...) })
	reg.Register("required", "", func(s Spec) Func { return Required(s.Field) })
	reg.Register("wallet_credentials", FieldImportMethod, func(s Spec) Func {
		return WalletCredentials(s.Field, FieldSecretKey, FieldSeedPhrase)
	})

	return reg
}

// Register adds or replaces a rule. defaultField is used when a Spec leaves Field empty; an empty
// defaultField makes the field mandatory.
func (r *Registry) Register(name, defaultField string, build Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules[name] = registration{
		build:        build,
		defaultField: defaultField,
	}
}

// Build resolves a Spec into a check.
func (r *Registry) Build(spec Spec) (Func, error) {
	r.mu.RLock()
	reg, ok := r.rules[spec.Rule]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRule, spec.Rule)
	}

	if spec.Field == "" {
		spec.Field = reg.defaultField
	}

	if spec.Field == "" {
		return nil, fmt.Errorf("rule %q: %w", spec.Rule, ErrFieldRequired)
	}

	return reg.build(spec), nil
}

// Names lists the registered rule names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.rules))
}
