package statemachine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultActionTimeout bounds a collaborator call when WithTimeout is not given.
const DefaultActionTimeout = 10 * time.Second

// Snapshot is the presentation view of a flow session.
type Snapshot struct {
	Flow         string `json:"flow"`
	SessionID    string `json:"sessionId"`
	Step         Step   `json:"step"`
	Fields       Fields `json:"fields"`
	Status       Status `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	ErrorField   string `json:"errorField,omitempty"`
	ErrorReason  string `json:"errorReason,omitempty"`

	// Action is the action in flight, or the last one settled on this step.
	Action   string   `json:"action,omitempty"`
	History  []Step   `json:"history"`
	Allowed  []Step   `json:"allowed"`
	Actions  []string `json:"actions"`
	Complete bool     `json:"complete"`
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger replaces the slog-backed default logger.
func WithLogger(logger Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithSlog sets the slog logger behind the default logger. The flow name and session id are
// added to every record. Ignored when WithLogger is also given.
func WithSlog(l *slog.Logger) Option {
	return func(m *Machine) {
		m.slogger = l
	}
}

// WithObserver registers a callback run after every state change. Callbacks may run on the
// goroutine that settles an action, so they must be safe for concurrent use.
func WithObserver(fn func(Snapshot)) Option {
	return func(m *Machine) {
		m.observers = append(m.observers, fn)
	}
}

// WithNavigator sets who is told about the destination once the terminal step is reached.
func WithNavigator(nav Navigator) Option {
	return func(m *Machine) {
		m.navigator = nav
	}
}

// WithTimeout bounds each action. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Machine) {
		m.timeout = d
	}
}

// WithExecutor runs collaborator calls on exec instead of bare goroutines.
func WithExecutor(exec Executor) Option {
	return func(m *Machine) {
		m.executor = exec
	}
}

// WithSessionID sets the session id used in logs, spans and snapshots.
func WithSessionID(id string) Option {
	return func(m *Machine) {
		m.sessionID = id
	}
}

// WithActions registers the collaborators behind the definition's action names.
func WithActions(actions ...Action) Option {
	return func(m *Machine) {
		for _, a := range actions {
			m.actions[a.Name()] = a
		}
	}
}

// Machine owns the state of one flow session. All methods are safe for concurrent use, but a
// session is meant to be driven by one presentation layer at a time.
type Machine struct {
	def       *Definition
	actions   map[string]Action
	logger    Logger
	slogger   *slog.Logger
	observers []func(Snapshot)
	navigator Navigator
	executor  Executor
	timeout   time.Duration
	sessionID string

	mu         sync.Mutex
	step       Step
	fields     Fields
	status     Status
	errMessage string
	errField   string
	errReason  string
	history    []Step
	succeeded  map[string]bool
	lastAction string
	pending    *Pending
	navigated  bool
	closed     bool
}

// NewMachine creates a machine for def positioned at the initial step. Every action the
// definition declares needs an implementation from WithActions.
func NewMachine(def *Definition, opts ...Option) (*Machine, error) {
	if def == nil {
		return nil, ErrDefinitionNameRequired
	}

	err := def.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid definition: %w", err)
	}

	m := &Machine{
		def:      def,
		actions:  make(map[string]Action),
		executor: goroutineExecutor{},
		timeout:  DefaultActionTimeout,
	}

	for _, opt := range opts {
		opt(m)
	}

	for _, name := range def.ActionNames() {
		if _, ok := m.actions[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingActionImpl, name)
		}
	}

	if m.sessionID == "" {
		m.sessionID = uuid.NewString()
	}

	if m.logger == nil {
		base := m.slogger
		if base == nil {
			base = slog.Default()
		}

		m.logger = NewDefaultLogger(base.With("flow", def.Name, "session_id", m.sessionID))
	}

	m.resetLocked()

	return m, nil
}

// Definition returns the flow definition the machine runs.
func (m *Machine) Definition() *Definition {
	return m.def
}

// SessionID returns the session id.
func (m *Machine) SessionID() string {
	return m.sessionID
}

// Start puts the machine at the initial step with no fields. Calling it again mid-flow resets the
// flow; an action in flight is cancelled and its result discarded.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()

		return ErrSessionClosed
	}

	abandoned := m.pending
	m.resetLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if abandoned != nil {
		abandoned.settle(cancelledResult(), outcomeCancelled, ErrActionCancelled)
	}

	m.logger.FlowStarted(ctx, snap.Step)
	m.notify(snap)

	return nil
}

// Reset is Start.
func (m *Machine) Reset(ctx context.Context) error {
	return m.Start(ctx)
}

func (m *Machine) resetLocked() {
	m.step = m.def.Initial
	m.fields = make(Fields)
	m.status = StatusIdle
	m.history = nil
	m.succeeded = make(map[string]bool)
	m.lastAction = ""
	m.pending = nil
	m.navigated = false
	m.clearErrorLocked()
}

func (m *Machine) clearErrorLocked() {
	m.errMessage = ""
	m.errField = ""
	m.errReason = ""
}

// SetField merges one value into the fields. It never validates and never changes the step.
func (m *Machine) SetField(name, value string) error {
	return m.SetFields(Fields{name: value})
}

// SetFields merges several values into the fields.
func (m *Machine) SetFields(values Fields) error {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()

		return ErrSessionClosed
	}

	for name, value := range values {
		m.fields[name] = value
	}

	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)

	return nil
}

// RequestTransition moves to step to if a rule allows it. A missing rule is ErrInvalidTransition
// and changes nothing. A failing guard is ErrGuardRejected; the step stays put and the machine
// reports the guard's message as failed status.
func (m *Machine) RequestTransition(ctx context.Context, to Step) (err error) {
	m.mu.Lock()

	from := m.step

	ctx, span := startTransitionSpan(ctx, m, from, to)

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "completed")
		}

		span.End()
	}()

	if m.closed {
		m.mu.Unlock()

		return ErrSessionClosed
	}

	if m.status == StatusPending {
		m.mu.Unlock()
		m.recordTransition(from, to, outcomeBusy)

		return wrapTransitionError(from, to, ErrActionAlreadyInProgress)
	}

	rule, ok := m.def.Rule(from, to)
	if !ok {
		m.mu.Unlock()
		m.recordTransition(from, to, outcomeInvalid)

		return wrapTransitionError(from, to, ErrInvalidTransition)
	}

	guardErr := m.checkLocked(rule)
	if guardErr != nil {
		message, reason, field := Rejection(guardErr)
		m.status = StatusFailed
		m.errMessage = message
		m.errReason = reason
		m.errField = field
		snap := m.snapshotLocked()
		m.mu.Unlock()

		span.SetAttributes(attribute.String("reason", reason))
		guardRejectionsTotal.WithLabelValues(sanitizeFlow(m.def.Name), string(from), sanitizeReason(reason)).Inc()
		m.recordTransition(from, to, outcomeRejected)

		err = wrapTransitionError(from, to, fmt.Errorf("%w: %w", ErrGuardRejected, guardErr))
		m.logger.TransitionRejected(ctx, from, to, err)
		m.notify(snap)

		return err
	}

	m.history = append(m.history, from)
	m.enterLocked(to)

	navigate := to == m.def.Terminal && !m.navigated
	if navigate {
		m.navigated = true
	}

	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.recordTransition(from, to, outcomeSuccess)
	m.logger.TransitionExecuted(ctx, from, to)
	m.notify(snap)

	if navigate {
		flowsCompletedTotal.WithLabelValues(sanitizeFlow(m.def.Name)).Inc()
		m.logger.FlowCompleted(ctx, m.def.Destination)

		if m.navigator != nil {
			m.navigator.Navigate(ctx, m.def.Destination)
		}
	}

	return nil
}

// checkLocked runs the rule's guards in order, then its action requirement.
func (m *Machine) checkLocked(rule Rule) error {
	for _, guard := range rule.Guards {
		err := guard(m.fields)
		if err != nil {
			return err
		}
	}

	if rule.Requires != "" && !m.succeeded[rule.Requires] {
		return fmt.Errorf("%w: %s", ErrActionRequired, rule.Requires)
	}

	return nil
}

func (m *Machine) enterLocked(step Step) {
	m.step = step
	m.status = StatusIdle
	m.succeeded = make(map[string]bool)
	m.lastAction = ""
	m.clearErrorLocked()
}

// GoBack returns to the previous step, keeping the fields. It fails with ErrNoPreviousStep at the
// start of the flow and with ErrFlowComplete once the terminal step is reached.
func (m *Machine) GoBack(ctx context.Context) error {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()

		return ErrSessionClosed
	}

	from := m.step

	if m.status == StatusPending {
		m.mu.Unlock()

		return wrapTransitionError(from, "", ErrActionAlreadyInProgress)
	}

	if from == m.def.Terminal {
		m.mu.Unlock()

		return wrapTransitionError(from, "", ErrFlowComplete)
	}

	target, ok := m.def.Back[from]
	if ok {
		if idx := slices.Index(m.history, target); idx >= 0 {
			m.history = m.history[:idx]
		}
	} else {
		if len(m.history) == 0 {
			m.mu.Unlock()

			return wrapTransitionError(from, "", ErrNoPreviousStep)
		}

		target = m.history[len(m.history)-1]
		m.history = m.history[:len(m.history)-1]
	}

	m.enterLocked(target)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.recordTransition(from, target, outcomeSuccess)
	m.logger.TransitionExecuted(ctx, from, target)
	m.notify(snap)

	return nil
}

// Allowed lists the steps RequestTransition would currently accept.
func (m *Machine) Allowed() []Step {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.allowedLocked()
}

func (m *Machine) allowedLocked() []Step {
	allowed := []Step{}

	if m.status == StatusPending {
		return allowed
	}

	for _, rule := range m.def.RulesFrom(m.step) {
		if m.checkLocked(rule) == nil {
			allowed = append(allowed, rule.To)
		}
	}

	return allowed
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	actions := slices.Clone(m.def.Actions[m.step])
	if actions == nil {
		actions = []string{}
	}

	return Snapshot{
		Flow:         m.def.Name,
		SessionID:    m.sessionID,
		Step:         m.step,
		Fields:       m.fields.Clone(),
		Status:       m.status,
		ErrorMessage: m.errMessage,
		ErrorField:   m.errField,
		ErrorReason:  m.errReason,
		Action:       m.lastAction,
		History:      append([]Step{}, m.history...),
		Allowed:      m.allowedLocked(),
		Actions:      actions,
		Complete:     m.step == m.def.Terminal,
	}
}

// Close cancels any action in flight and rejects further calls. It is idempotent.
func (m *Machine) Close() error {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()

		return nil
	}

	m.closed = true
	abandoned := m.pending
	m.pending = nil

	if abandoned != nil {
		m.status = StatusIdle
	}

	m.mu.Unlock()

	if abandoned != nil {
		abandoned.settle(cancelledResult(), outcomeCancelled, ErrActionCancelled)
	}

	return nil
}

func (m *Machine) notify(snap Snapshot) {
	for _, fn := range m.observers {
		fn(snap)
	}
}

func (m *Machine) recordTransition(from, to Step, outcome string) {
	transitionsTotal.WithLabelValues(sanitizeFlow(m.def.Name), string(from), string(to), outcome).Inc()
}
