package statemachine

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
)

// Pending is the handle of one action run. Its result is produced exactly once: by the
// collaborator, by the timeout, or by cancellation, whichever comes first.
type Pending struct {
	m       *Machine
	action  string
	step    Step
	started time.Time

	ctx    context.Context //nolint:containedctx // span context for the settle-time log lines
	span   trace.Span
	cancel context.CancelCauseFunc
	// stop unregisters the timeout watchdog. It is nil until Run has registered it, which may be
	// after an already expired watchdog has settled the action.
	stop *atomic.Pointer[func() bool]

	settled *atomic.Bool
	done    chan struct{}
	result  ActionResult
	err     error
}

// Action returns the name of the running action.
func (p *Pending) Action() string {
	return p.action
}

// Done is closed once the result is known.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Result returns the result if it is already known.
func (p *Pending) Result() (ActionResult, bool) {
	select {
	case <-p.done:
		return p.result, true
	default:
		return ActionResult{}, false
	}
}

// Await blocks until the action settles or ctx is done. A failed, timed out or cancelled action
// returns its result together with an *ActionError.
func (p *Pending) Await(ctx context.Context) (ActionResult, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return ActionResult{}, ctx.Err()
	}
}

// Cancel discards the action. The machine goes back to idle on the same step and the
// collaborator's context is cancelled. It reports whether this call settled the action.
func (p *Pending) Cancel() bool {
	return p.settle(cancelledResult(), outcomeCancelled, ErrActionCancelled)
}

func cancelledResult() ActionResult {
	return ActionResult{
		Kind:    ResultError,
		Reason:  ReasonCancelled,
		Message: "Action cancelled",
	}
}

func timeoutResult() ActionResult {
	return ActionResult{
		Kind:    ResultError,
		Reason:  ReasonTimeout,
		Message: "The request timed out. Please try again.",
	}
}

// Run starts the named action of the current step. The collaborator gets a copy of the fields and
// runs on the machine's executor; the returned handle reports its result. Only one action may be
// in flight: a second Run fails with ErrActionAlreadyInProgress and leaves the first untouched.
//
// The action outlives ctx's cancellation (it is bounded by the timeout and by Cancel instead),
// but inherits its values and trace.
func (m *Machine) Run(ctx context.Context, action string) (*Pending, error) {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()

		return nil, ErrSessionClosed
	}

	if m.status == StatusPending {
		m.mu.Unlock()

		return nil, &ActionError{
			Action:  action,
			Reason:  ReasonInProgress,
			Message: "An action is already in progress",
			Err:     ErrActionAlreadyInProgress,
		}
	}

	if !m.def.HasAction(m.step, action) {
		m.mu.Unlock()

		return nil, &ActionError{
			Action:  action,
			Reason:  ReasonUnknownAction,
			Message: "Action not available on step " + string(m.step),
			Err:     ErrUnknownAction,
		}
	}

	impl := m.actions[action]
	payload := m.fields.Clone()
	step := m.step

	spanCtx, span := startActionSpan(ctx, m, action, step)
	base := context.WithoutCancel(spanCtx)

	var (
		actCtx context.Context
		cancel context.CancelCauseFunc
	)

	if m.timeout > 0 {
		timeoutCtx, stopTimeout := context.WithTimeoutCause(base, m.timeout, ErrTimeout)
		actCtx, cancel = context.WithCancelCause(timeoutCtx)
		inner := cancel
		cancel = func(cause error) {
			inner(cause)
			stopTimeout()
		}
	} else {
		actCtx, cancel = context.WithCancelCause(base)
	}

	p := &Pending{
		m:       m,
		action:  action,
		step:    step,
		started: time.Now(),
		ctx:     spanCtx,
		span:    span,
		cancel:  cancel,
		settled: atomic.NewBool(false),
		stop:    atomic.NewPointer[func() bool](nil),
		done:    make(chan struct{}),
	}

	// The watchdog settles a timed out action even if the collaborator never returns.
	stop := context.AfterFunc(actCtx, func() {
		if errors.Is(context.Cause(actCtx), ErrTimeout) {
			p.settle(timeoutResult(), outcomeTimeout, ErrTimeout)
		}
	})
	p.stop.Store(&stop)

	m.pending = p
	m.status = StatusPending
	m.lastAction = action
	m.clearErrorLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	actionsInFlight.WithLabelValues(sanitizeFlow(m.def.Name)).Inc()
	m.logger.ActionStarted(spanCtx, action, step)
	m.notify(snap)

	err := m.executor.Go(func() {
		data, execErr := impl.Execute(actCtx, payload)
		p.complete(actCtx, data, execErr)
	})
	if err != nil {
		p.settle(ActionResult{
			Kind:    ResultError,
			Reason:  ReasonExecutorUnavailable,
			Message: "The service is busy. Please try again.",
		}, outcomeFailed, errors.Join(ErrExecutorUnavailable, err))
	}

	return p, nil
}

// Cancel cancels the action in flight, if any, and reports whether there was one.
func (m *Machine) Cancel() bool {
	m.mu.Lock()
	p := m.pending
	m.mu.Unlock()

	if p == nil {
		return false
	}

	return p.Cancel()
}

// Pending returns the handle of the action in flight.
func (m *Machine) Pending() (*Pending, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.pending, m.pending != nil
}

// complete converts the collaborator's return into a result.
func (p *Pending) complete(ctx context.Context, data map[string]any, err error) {
	if err == nil {
		p.settle(ActionResult{Kind: ResultOK, Payload: data}, outcomeSuccess, nil)

		return
	}

	if errors.Is(context.Cause(ctx), ErrTimeout) {
		p.settle(timeoutResult(), outcomeTimeout, ErrTimeout)

		return
	}

	var aerr *ActionError
	if errors.As(err, &aerr) {
		p.settle(ActionResult{
			Kind:    ResultError,
			Reason:  aerr.Reason,
			Message: aerr.Message,
		}, outcomeFailed, err)

		return
	}

	p.settle(ActionResult{
		Kind:    ResultError,
		Reason:  ReasonActionFailed,
		Message: err.Error(),
	}, outcomeFailed, err)
}

// settle records the result once. The machine is updated only if this action is still the one in
// flight; results of actions abandoned by Start, Reset or Close are dropped.
func (p *Pending) settle(result ActionResult, outcome string, cause error) bool {
	if !p.settled.CompareAndSwap(false, true) {
		return false
	}

	if stop := p.stop.Load(); stop != nil {
		(*stop)()
	}

	m := p.m

	m.mu.Lock()

	current := m.pending == p
	if current {
		m.pending = nil

		switch {
		case outcome == outcomeCancelled:
			m.status = StatusIdle
		case result.OK():
			m.status = StatusSuccess
			m.succeeded[p.action] = true
		default:
			m.status = StatusFailed
			m.errMessage = result.Message
			m.errReason = result.Reason
			m.errField = ""
		}
	}

	snap := m.snapshotLocked()
	m.mu.Unlock()

	p.result = result
	p.err = actionErr(p.action, result, cause)

	if cause == nil {
		cause = context.Canceled
	}

	p.cancel(cause)

	duration := time.Since(p.started)

	p.span.SetAttributes(
		attribute.Int64("duration_ms", duration.Milliseconds()),
		attribute.String("outcome", outcome),
	)

	if p.err != nil {
		p.span.RecordError(p.err)
		p.span.SetStatus(codes.Error, p.err.Error())
	} else {
		p.span.SetStatus(codes.Ok, "completed")
	}

	p.span.End()

	flow := sanitizeFlow(m.def.Name)
	actionsInFlight.WithLabelValues(flow).Dec()
	actionsTotal.WithLabelValues(flow, p.action, outcome).Inc()
	actionDuration.WithLabelValues(flow, p.action).Observe(duration.Seconds())
	m.logger.ActionCompleted(p.ctx, p.action, duration, result)

	if current {
		m.notify(snap)
	}

	// Observers have seen the settled state before any waiter wakes up.
	close(p.done)

	return true
}

func actionErr(action string, result ActionResult, cause error) error {
	if result.OK() {
		return nil
	}

	if cause == nil {
		cause = ErrActionFailed
	}

	if !errors.Is(cause, ErrActionFailed) && !errors.Is(cause, ErrTimeout) && !errors.Is(cause, ErrActionCancelled) {
		cause = errors.Join(ErrActionFailed, cause)
	}

	return &ActionError{
		Action:  action,
		Reason:  result.Reason,
		Message: result.Message,
		Err:     cause,
	}
}
