// Package flows holds the built-in wizard definitions and the collaborators that back them.
package flows

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"path"
	"slices"
	"strings"
	"time"

	"facette.io/natsort"
	"github.com/amp-labs/wizard/flows/auth"
	"github.com/amp-labs/wizard/flows/simulator"
	"github.com/amp-labs/wizard/statemachine"
	"github.com/amp-labs/wizard/validate"
)

// Built-in flow names.
const (
	Auth      = "auth"
	Simulator = "simulator"
)

// ErrUnknownFlow is returned for a name the catalog does not hold.
var ErrUnknownFlow = errors.New("unknown flow")

//go:embed definitions/*.yaml
var definitions embed.FS

// Options configures the collaborators behind the built-in flows.
type Options struct {
	Wallet        simulator.Wallet
	SubmitLatency time.Duration
	Auth          auth.Config
}

// DefaultOptions returns the demo settings. Session tokens are signed when tokens is not nil.
func DefaultOptions(tokens *auth.TokenIssuer) Options {
	return Options{
		Wallet:        simulator.DefaultWallet(),
		SubmitLatency: simulator.DefaultLatency,
		Auth:          auth.DefaultConfig(tokens),
	}
}

// Registry returns the guard registry used by the built-in flows: the validate built-ins plus
// recipient and wallet_choice.
func Registry(funds validate.Funds) *validate.Registry {
	reg := validate.NewRegistry(funds)

	reg.Register("recipient", simulator.FieldRecipient, func(s validate.Spec) validate.Func {
		return validate.PublicKey(s.Field)
	})
	reg.Register("wallet_choice", auth.FieldWalletChoice, func(s validate.Spec) validate.Func {
		values := s.Values
		if len(values) == 0 {
			values = []string{"new", "existing"}
		}

		return validate.OneOf(s.Field, values...)
	})

	return reg
}

type entry struct {
	source  []byte
	config  *statemachine.DefinitionConfig
	def     *statemachine.Definition
	actions []statemachine.Action
}

// Catalog holds compiled flows and their collaborators.
type Catalog struct {
	registry *validate.Registry
	flows    map[string]entry
}

// NewCatalog compiles the embedded definitions.
func NewCatalog(opts Options) (*Catalog, error) {
	c := &Catalog{
		registry: Registry(opts.Wallet.Funds()),
		flows:    make(map[string]entry),
	}

	actions := map[string][]statemachine.Action{
		Auth: auth.Actions(opts.Auth),
		Simulator: {simulator.Submitter{
			Wallet:  opts.Wallet,
			Latency: opts.SubmitLatency,
		}.Action()},
	}

	files, err := fs.Glob(definitions, "definitions/*.yaml")
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		name := strings.TrimSuffix(path.Base(file), ".yaml")

		if err := c.add(name, file, actions[name]); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Catalog) add(name, file string, actions []statemachine.Action) error {
	source, err := fs.ReadFile(definitions, file)
	if err != nil {
		return fmt.Errorf("flow %q: %w", name, err)
	}

	cfg, err := statemachine.ParseDefinitionConfig(source)
	if err != nil {
		return fmt.Errorf("flow %q: %w", name, err)
	}

	def, err := cfg.Compile(c.registry)
	if err != nil {
		return fmt.Errorf("flow %q: %w", name, err)
	}

	c.flows[name] = entry{source: source, config: cfg, def: def, actions: actions}

	return nil
}

func (c *Catalog) get(name string) (entry, error) {
	e, ok := c.flows[name]
	if !ok {
		return entry{}, fmt.Errorf("%w: %q", ErrUnknownFlow, name)
	}

	return e, nil
}

// Names lists the flows in natural order ("flow-2" before "flow-10").
func (c *Catalog) Names() []string {
	names := slices.Collect(maps.Keys(c.flows))
	natsort.Sort(names)

	return names
}

// Registry returns the guard registry the catalog compiled with.
func (c *Catalog) Registry() *validate.Registry {
	return c.registry
}

// Definition returns the compiled definition.
func (c *Catalog) Definition(name string) (*statemachine.Definition, error) {
	e, err := c.get(name)

	return e.def, err
}

// Config returns the parsed definition file.
func (c *Catalog) Config(name string) (*statemachine.DefinitionConfig, error) {
	e, err := c.get(name)

	return e.config, err
}

// Source returns the raw definition file.
func (c *Catalog) Source(name string) ([]byte, error) {
	e, err := c.get(name)
	if err != nil {
		return nil, err
	}

	return slices.Clone(e.source), nil
}

// NewMachine creates a session machine for the named flow with its collaborators wired in. The
// machine still needs Start.
func (c *Catalog) NewMachine(name string, opts ...statemachine.Option) (*statemachine.Machine, error) {
	e, err := c.get(name)
	if err != nil {
		return nil, err
	}

	all := make([]statemachine.Option, 0, len(opts)+1)
	all = append(all, statemachine.WithActions(e.actions...))
	all = append(all, opts...)

	return statemachine.NewMachine(e.def, all...)
}
