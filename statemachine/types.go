package statemachine

import (
	"context"
	"maps"
)

// Step is a named point in a flow's progression.
type Step string

// Status tracks the one external action a flow may have in flight.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Fields holds the values entered so far in a flow. Values are kept as entered (text) and parsed
// by the guards that need numbers.
type Fields map[string]string

// Clone returns an independent copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	maps.Copy(out, f)

	return out
}

// Guard is a precondition over the fields that must hold for a rule to fire. A nil return means
// the transition is allowed; a *validate.ValidationError return becomes a field-level message.
type Guard func(fields Fields) error

// Rule permits moving from one step to another.
type Rule struct {
	From   Step
	To     Step
	Guards []Guard

	// Requires names an action that must have completed successfully on From before the rule
	// may fire.
	Requires string

	// Label describes the guards for diagrams and lint output.
	Label string
}

// ResultKind tells a successful action result from a failed one.
type ResultKind string

const (
	ResultOK    ResultKind = "ok"
	ResultError ResultKind = "error"
)

// ActionResult is produced once per Run and handed to whoever awaits the Pending handle. The
// machine only keeps the resulting status.
type ActionResult struct {
	Kind    ResultKind     `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Message string         `json:"message,omitempty"`
}

// OK reports whether the action succeeded.
func (r ActionResult) OK() bool {
	return r.Kind == ResultOK
}

// Action is an external collaborator invoked by the runner: authentication, wallet import,
// transaction submission and so on. The payload is a copy of the fields at Run time.
// Implementations should return promptly once ctx is done.
type Action interface {
	Name() string
	Execute(ctx context.Context, payload Fields) (map[string]any, error)
}

// ActionFunc adapts a function into an Action.
type ActionFunc struct {
	name string
	fn   func(ctx context.Context, payload Fields) (map[string]any, error)
}

// NewAction wraps fn as an Action called name.
func NewAction(name string, fn func(ctx context.Context, payload Fields) (map[string]any, error)) *ActionFunc {
	return &ActionFunc{
		name: name,
		fn:   fn,
	}
}

func (a *ActionFunc) Name() string {
	return a.name
}

func (a *ActionFunc) Execute(ctx context.Context, payload Fields) (map[string]any, error) {
	return a.fn(ctx, payload)
}

// Navigator is told where to go once a flow reaches its terminal step. The machine never
// navigates by itself.
type Navigator interface {
	Navigate(ctx context.Context, destination string)
}

// NavigatorFunc adapts a function into a Navigator.
type NavigatorFunc func(ctx context.Context, destination string)

func (f NavigatorFunc) Navigate(ctx context.Context, destination string) {
	f(ctx, destination)
}

// Executor runs collaborator calls off the caller's goroutine.
type Executor interface {
	Go(task func()) error
}

type goroutineExecutor struct{}

func (goroutineExecutor) Go(task func()) error {
	go task()

	return nil
}
