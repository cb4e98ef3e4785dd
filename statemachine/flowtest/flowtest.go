// Package flowtest provides test doubles for flow sessions: controllable actions, a recording
// navigator and a snapshot recorder.
package flowtest

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/amp-labs/wizard/statemachine"
	"github.com/stretchr/testify/require"
)

// NewMachine builds a machine for def and closes it when the test ends.
func NewMachine(t *testing.T, def *statemachine.Definition, opts ...statemachine.Option) *statemachine.Machine {
	t.Helper()

	m, err := statemachine.NewMachine(def, opts...)
	require.NoError(t, err, "failed to create machine")

	t.Cleanup(func() {
		_ = m.Close()
	})

	return m
}

// Call records one invocation of a Gate.
type Call struct {
	Payload statemachine.Fields
}

type outcome struct {
	data map[string]any
	err  error
}

// Gate is an action that blocks until the test releases it or its context ends.
type Gate struct {
	name    string
	release chan outcome
	started chan struct{}

	mu    sync.Mutex
	calls []Call
}

// NewGate creates a gate action.
func NewGate(name string) *Gate {
	return &Gate{
		name:    name,
		release: make(chan outcome, 1),
		started: make(chan struct{}, 16),
	}
}

func (g *Gate) Name() string {
	return g.name
}

func (g *Gate) Execute(ctx context.Context, payload statemachine.Fields) (map[string]any, error) {
	g.mu.Lock()
	g.calls = append(g.calls, Call{Payload: payload})
	g.mu.Unlock()

	g.started <- struct{}{}

	select {
	case out := <-g.release:
		return out.data, out.err
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

// Started is signalled every time Execute begins.
func (g *Gate) Started() <-chan struct{} {
	return g.started
}

// Succeed lets the blocked call return data.
func (g *Gate) Succeed(data map[string]any) {
	g.release <- outcome{data: data}
}

// Fail lets the blocked call return err.
func (g *Gate) Fail(err error) {
	g.release <- outcome{err: err}
}

// Calls returns the recorded invocations.
func (g *Gate) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()

	return slices.Clone(g.calls)
}

// Instant returns an action that answers immediately.
func Instant(name string, data map[string]any, err error) statemachine.Action {
	return statemachine.NewAction(name, func(context.Context, statemachine.Fields) (map[string]any, error) {
		return data, err
	})
}

// Navigator records destinations.
type Navigator struct {
	mu           sync.Mutex
	destinations []string
}

func (n *Navigator) Navigate(_ context.Context, destination string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.destinations = append(n.destinations, destination)
}

// Destinations returns every destination received.
func (n *Navigator) Destinations() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return slices.Clone(n.destinations)
}

// Recorder collects snapshots from WithObserver.
type Recorder struct {
	mu        sync.Mutex
	snapshots []statemachine.Snapshot
}

// Observe is the observer callback.
func (r *Recorder) Observe(s statemachine.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshots = append(r.snapshots, s)
}

// Option returns the machine option that wires the recorder in.
func (r *Recorder) Option() statemachine.Option {
	return statemachine.WithObserver(r.Observe)
}

// Snapshots returns everything recorded so far.
func (r *Recorder) Snapshots() []statemachine.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.snapshots)
}

// Steps returns the distinct steps seen, in order of first appearance.
func (r *Recorder) Steps() []statemachine.Step {
	var steps []statemachine.Step

	for _, s := range r.Snapshots() {
		if !slices.Contains(steps, s.Step) {
			steps = append(steps, s.Step)
		}
	}

	return steps
}

// Statuses returns the status of each snapshot in order.
func (r *Recorder) Statuses() []statemachine.Status {
	snaps := r.Snapshots()
	out := make([]statemachine.Status, 0, len(snaps))

	for _, s := range snaps {
		out = append(out, s.Status)
	}

	return out
}
