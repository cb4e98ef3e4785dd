package statemachine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// authDefinition is a single step whose only way forward is a successful "auth" action.
func authDefinition(t *testing.T, name string) *Definition {
	t.Helper()

	def, err := NewBuilder(name).
		WithInitialStep("initial").
		AddStep("initial", "auth").
		WithTerminalStep("complete", "/dashboard").
		AddTransition("initial", "complete", Requires("auth")).
		Build()
	require.NoError(t, err)

	return def
}

func TestCancelReturnsToIdle(t *testing.T) {
	t.Parallel()

	auth := newGate("auth")
	m := newTestMachine(t, authDefinition(t, "auth-cancel"), WithActions(auth))
	ctx := t.Context()

	p, err := m.Run(ctx, "auth")
	require.NoError(t, err)

	<-auth.started
	assert.Equal(t, StatusPending, m.Snapshot().Status)

	require.True(t, m.Cancel())
	assert.False(t, m.Cancel())
	assert.False(t, p.Cancel())

	snap := m.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Equal(t, Step("initial"), snap.Step)
	assert.Empty(t, snap.ErrorMessage)

	result, err := p.Await(ctx)
	require.ErrorIs(t, err, ErrActionCancelled)
	assert.Equal(t, ReasonCancelled, result.Reason)

	// The next run is allowed immediately.
	p2, err := m.Run(ctx, "auth")
	require.NoError(t, err)

	<-auth.started

	assert.Eventually(t, func() bool { return auth.cancelCount() == 1 }, time.Second, time.Millisecond)

	auth.release <- nil

	_, err = p2.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, m.Snapshot().Status)
	require.NoError(t, m.RequestTransition(ctx, "complete"))
}

func TestCancelledResultIsDiscarded(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	stubborn := NewAction("auth", func(context.Context, Fields) (map[string]any, error) {
		<-release

		return map[string]any{"late": true}, nil
	})

	m := newTestMachine(t, authDefinition(t, "auth-discard"), WithActions(stubborn))
	ctx := t.Context()

	p, err := m.Run(ctx, "auth")
	require.NoError(t, err)
	require.True(t, p.Cancel())

	close(release)

	result, err := p.Await(ctx)
	require.ErrorIs(t, err, ErrActionCancelled)
	assert.Nil(t, result.Payload)

	snap := m.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	require.ErrorIs(t, m.RequestTransition(ctx, "complete"), ErrActionRequired)
}

func TestRunWhilePending(t *testing.T) {
	t.Parallel()

	auth := newGate("auth")
	m := newTestMachine(t, authDefinition(t, "auth-busy"), WithActions(auth))
	ctx := t.Context()

	first, err := m.Run(ctx, "auth")
	require.NoError(t, err)

	<-auth.started

	second, err := m.Run(ctx, "auth")
	require.ErrorIs(t, err, ErrActionAlreadyInProgress)
	assert.Nil(t, second)

	_, done := first.Result()
	assert.False(t, done)

	current, ok := m.Pending()
	require.True(t, ok)
	assert.Same(t, first, current)

	auth.release <- nil

	result, err := first.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, result.Payload)

	_, ok = m.Pending()
	assert.False(t, ok)
}

func TestTimeoutForcesFailure(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	// Ignores its context entirely.
	hung := NewAction("auth", func(context.Context, Fields) (map[string]any, error) {
		<-release

		return nil, nil
	})

	m := newTestMachine(t, authDefinition(t, "auth-timeout"), WithActions(hung), WithTimeout(20*time.Millisecond))
	ctx := t.Context()

	p, err := m.Run(ctx, "auth")
	require.NoError(t, err)

	result, err := p.Await(ctx)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, ReasonTimeout, result.Reason)

	var aerr *ActionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "auth", aerr.Action)

	snap := m.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, ReasonTimeout, snap.ErrorReason)
	assert.NotEmpty(t, snap.ErrorMessage)
	assert.Equal(t, Step("initial"), snap.Step)
}

func TestTimeoutExpiringDuringRun(t *testing.T) {
	t.Parallel()

	// The watchdog may fire before Run returns.
	quick := NewAction("auth", func(ctx context.Context, _ Fields) (map[string]any, error) {
		<-ctx.Done()

		return nil, context.Cause(ctx)
	})

	for i := range 200 {
		m := newTestMachine(t, authDefinition(t, "auth-instant-timeout"), WithActions(quick), WithTimeout(time.Nanosecond))

		p, err := m.Run(t.Context(), "auth")
		require.NoError(t, err, "run %d", i)

		result, err := p.Await(t.Context())
		require.ErrorIs(t, err, ErrTimeout, "run %d", i)
		assert.Equal(t, ReasonTimeout, result.Reason)
		assert.Equal(t, StatusFailed, m.Snapshot().Status)
	}
}

func TestTimeoutSeenByCollaborator(t *testing.T) {
	t.Parallel()

	auth := newGate("auth")
	m := newTestMachine(t, authDefinition(t, "auth-timeout-ctx"), WithActions(auth), WithTimeout(10*time.Millisecond))

	p, err := m.Run(t.Context(), "auth")
	require.NoError(t, err)

	_, err = p.Await(t.Context())
	require.ErrorIs(t, err, ErrTimeout)
	assert.Eventually(t, func() bool { return auth.cancelCount() == 1 }, time.Second, time.Millisecond)
}

func TestRunUnknownAction(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, transferDefinition(t, "transfer-unknown"), WithActions(newGate("submit")))

	_, err := m.Run(t.Context(), "submit")
	require.ErrorIs(t, err, ErrUnknownAction)

	_, err = m.Run(t.Context(), "launch")
	require.ErrorIs(t, err, ErrUnknownAction)
	assert.Equal(t, StatusIdle, m.Snapshot().Status)
}

func TestPayloadIsACopy(t *testing.T) {
	t.Parallel()

	auth := newGate("auth")
	m := newTestMachine(t, authDefinition(t, "auth-payload"), WithActions(auth))
	ctx := t.Context()

	require.NoError(t, m.SetField("email", "a@example.com"))

	p, err := m.Run(ctx, "auth")
	require.NoError(t, err)

	payload := <-auth.started

	require.NoError(t, m.SetField("email", "b@example.com"))
	assert.Equal(t, "a@example.com", payload["email"])

	auth.release <- nil

	result, err := p.Await(ctx)
	require.NoError(t, err)

	// The result payload is handed to the caller, never merged into the fields.
	_, merged := m.Snapshot().Fields["ok"]
	assert.False(t, merged)
	assert.Equal(t, true, result.Payload["ok"])
}

func TestCallerCancellationDoesNotAbortAction(t *testing.T) {
	t.Parallel()

	auth := newGate("auth")
	m := newTestMachine(t, authDefinition(t, "auth-detached"), WithActions(auth))

	reqCtx, cancel := context.WithCancel(t.Context())

	p, err := m.Run(reqCtx, "auth")
	require.NoError(t, err)

	<-auth.started
	cancel()

	auth.release <- nil

	_, err = p.Await(t.Context())
	require.NoError(t, err)
	assert.Zero(t, auth.cancelCount())
}

type refusingExecutor struct{}

var errPoolStopped = errors.New("pool stopped")

func (refusingExecutor) Go(func()) error {
	return errPoolStopped
}

func TestExecutorRefusal(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, authDefinition(t, "auth-refused"), WithActions(newGate("auth")), WithExecutor(refusingExecutor{}))

	p, err := m.Run(t.Context(), "auth")
	require.NoError(t, err)

	result, err := p.Await(t.Context())
	require.ErrorIs(t, err, ErrExecutorUnavailable)
	require.ErrorIs(t, err, errPoolStopped)
	assert.Equal(t, ReasonExecutorUnavailable, result.Reason)
	assert.Equal(t, StatusFailed, m.Snapshot().Status)
}

func TestAwaitHonoursContext(t *testing.T) {
	t.Parallel()

	auth := newGate("auth")
	m := newTestMachine(t, authDefinition(t, "auth-await"), WithActions(auth))

	p, err := m.Run(t.Context(), "auth")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Millisecond)
	defer cancel()

	_, err = p.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	auth.release <- nil

	<-p.Done()

	result, ok := p.Result()
	require.True(t, ok)
	assert.True(t, result.OK())
}

func TestSleep(t *testing.T) {
	t.Parallel()

	require.NoError(t, Sleep(t.Context(), time.Millisecond))

	ctx, cancel := context.WithCancelCause(t.Context())
	cancel(ErrActionCancelled)

	require.ErrorIs(t, Sleep(ctx, time.Hour), ErrActionCancelled)
}
