package statemachine

import (
	"bytes"
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/amp-labs/wizard/validate"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferScenario(t *testing.T) {
	t.Parallel()

	submit := newGate("submit")
	nav := &recordingNavigator{}
	m := newTestMachine(t, transferDefinition(t, "transfer-scenario"),
		WithActions(submit),
		WithNavigator(nav),
		WithLogger(NewDefaultLogger(slogt.New(t))),
	)
	ctx := t.Context()

	require.NoError(t, m.SetField("amount", "50"))
	require.NoError(t, m.SetField("recipient", validRecipient))
	require.NoError(t, m.RequestTransition(ctx, "review"))

	p, err := m.Run(ctx, "submit")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, m.Snapshot().Status)

	submit.release <- nil

	result, err := p.Await(ctx)
	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.Equal(t, StatusSuccess, m.Snapshot().Status)

	require.NoError(t, m.RequestTransition(ctx, "complete"))

	snap := m.Snapshot()
	assert.Equal(t, Step("complete"), snap.Step)
	assert.True(t, snap.Complete)
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Equal(t, []string{"/dashboard"}, nav.destinations())
	assert.Equal(t, "50", snap.Fields["amount"])
}

func TestSlogCarriesSessionAttributes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	base := slog.New(slog.NewJSONHandler(&buf, nil)).With("component", "server")
	m := newTestMachine(t, transferDefinition(t, "transfer-slog"),
		WithActions(newGate("submit")),
		WithSessionID("session-42"),
		WithSlog(base),
	)
	require.NoError(t, m.SetField("amount", "500"))
	require.Error(t, m.RequestTransition(t.Context(), "review"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)

	for _, line := range lines {
		assert.Contains(t, line, `"component":"server"`)
		assert.Contains(t, line, `"flow":"transfer-slog"`)
		assert.Contains(t, line, `"session_id":"session-42"`)
	}
}

func TestImportRejectsShortSecretKey(t *testing.T) {
	t.Parallel()

	def, err := NewBuilder("import-scenario").
		WithInitialStep("import-wallet").
		WithTerminalStep("import-result", "/dashboard").
		AddTransition("import-wallet", "import-result", Guarded(Check(validate.SecretKey("secretKey")))).
		Build()
	require.NoError(t, err)

	m := newTestMachine(t, def)

	require.NoError(t, m.SetField("secretKey", "short"))

	err = m.RequestTransition(t.Context(), "import-result")
	require.ErrorIs(t, err, ErrGuardRejected)

	reason, ok := validate.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, validate.ReasonMalformedSecretKey, reason)

	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, Step("import-wallet"), terr.From)
	assert.Equal(t, Step("import-result"), terr.To)

	snap := m.Snapshot()
	assert.Equal(t, Step("import-wallet"), snap.Step)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.NotEmpty(t, snap.ErrorMessage)
	assert.Equal(t, "secretKey", snap.ErrorField)
	assert.Equal(t, string(validate.ReasonMalformedSecretKey), snap.ErrorReason)

	// Fixing the key clears the error on the successful transition.
	require.NoError(t, m.SetField("secretKey", validSecret))
	require.NoError(t, m.RequestTransition(t.Context(), "import-result"))
	assert.Empty(t, m.Snapshot().ErrorMessage)
}

func TestInsufficientFunds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		amount string
		reason validate.Reason
	}{
		{"whole balance plus fee", "125.06", validate.ReasonInsufficientFunds},
		{"just over", "125.059876", validate.ReasonInsufficientFunds},
		{"exactly fits", "125.059875", ""},
		{"zero", "0", validate.ReasonInvalidAmount},
		{"not a number", "ten", validate.ReasonInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newTestMachine(t, transferDefinition(t, "transfer-funds"), WithActions(newGate("submit")))
			require.NoError(t, m.SetFields(Fields{"recipient": validRecipient, "amount": tt.amount}))

			err := m.RequestTransition(t.Context(), "review")
			if tt.reason == "" {
				require.NoError(t, err)
				assert.Equal(t, Step("review"), m.Snapshot().Step)

				return
			}

			require.ErrorIs(t, err, ErrGuardRejected)

			reason, _ := validate.ReasonOf(err)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, Step("details"), m.Snapshot().Step)
		})
	}
}

func TestInvalidTransitionChangesNothing(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, transferDefinition(t, "transfer-invalid"), WithActions(newGate("submit")))
	require.NoError(t, m.SetField("amount", "1"))

	before := m.Snapshot()

	err := m.RequestTransition(t.Context(), "complete")
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.NotErrorIs(t, err, ErrGuardRejected)
	assert.Equal(t, before, m.Snapshot())

	err = m.RequestTransition(t.Context(), "nowhere")
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, before, m.Snapshot())
}

func TestRequiredActionGatesTransition(t *testing.T) {
	t.Parallel()

	submit := newGate("submit")
	m := newTestMachine(t, transferDefinition(t, "transfer-requires"), WithActions(submit))
	ctx := t.Context()

	require.NoError(t, m.SetFields(Fields{"recipient": validRecipient, "amount": "5"}))
	require.NoError(t, m.RequestTransition(ctx, "review"))

	err := m.RequestTransition(ctx, "complete")
	require.ErrorIs(t, err, ErrGuardRejected)
	require.ErrorIs(t, err, ErrActionRequired)
	assert.Equal(t, ReasonActionRequired, m.Snapshot().ErrorReason)

	p, err := m.Run(ctx, "submit")
	require.NoError(t, err)

	submit.release <- Fail("SUBMIT_FAILED", "Network error")

	result, err := p.Await(ctx)
	require.ErrorIs(t, err, ErrActionFailed)
	assert.Equal(t, "SUBMIT_FAILED", result.Reason)

	snap := m.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "Network error", snap.ErrorMessage)
	assert.Equal(t, Step("review"), snap.Step)

	err = m.RequestTransition(ctx, "complete")
	require.ErrorIs(t, err, ErrActionRequired)

	// The user retries by hand.
	p, err = m.Run(ctx, "submit")
	require.NoError(t, err)

	submit.release <- nil

	_, err = p.Await(ctx)
	require.NoError(t, err)
	require.NoError(t, m.RequestTransition(ctx, "complete"))
}

func TestTransitionWhilePending(t *testing.T) {
	t.Parallel()

	submit := newGate("submit")
	m := newTestMachine(t, transferDefinition(t, "transfer-busy"), WithActions(submit))
	ctx := t.Context()

	require.NoError(t, m.SetFields(Fields{"recipient": validRecipient, "amount": "5"}))
	require.NoError(t, m.RequestTransition(ctx, "review"))

	p, err := m.Run(ctx, "submit")
	require.NoError(t, err)

	<-submit.started

	require.ErrorIs(t, m.RequestTransition(ctx, "complete"), ErrActionAlreadyInProgress)
	require.ErrorIs(t, m.GoBack(ctx), ErrActionAlreadyInProgress)
	assert.Empty(t, m.Allowed())

	snap := m.Snapshot()
	assert.Equal(t, StatusPending, snap.Status)
	assert.Equal(t, "submit", snap.Action)

	submit.release <- nil

	_, err = p.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Step{"complete"}, m.Allowed())
}

func TestGoBack(t *testing.T) {
	t.Parallel()

	submit := newGate("submit")
	m := newTestMachine(t, transferDefinition(t, "transfer-back"), WithActions(submit))
	ctx := t.Context()

	require.ErrorIs(t, m.GoBack(ctx), ErrNoPreviousStep)

	require.NoError(t, m.SetFields(Fields{"recipient": validRecipient, "amount": "5", "memo": "rent"}))
	require.NoError(t, m.RequestTransition(ctx, "review"))
	assert.Equal(t, []Step{"details"}, m.Snapshot().History)

	require.NoError(t, m.GoBack(ctx))

	snap := m.Snapshot()
	assert.Equal(t, Step("details"), snap.Step)
	assert.Equal(t, "rent", snap.Fields["memo"])
	assert.Empty(t, snap.History)

	require.NoError(t, m.RequestTransition(ctx, "review"))

	p, err := m.Run(ctx, "submit")
	require.NoError(t, err)

	submit.release <- nil

	_, err = p.Await(ctx)
	require.NoError(t, err)
	require.NoError(t, m.RequestTransition(ctx, "complete"))

	require.ErrorIs(t, m.GoBack(ctx), ErrFlowComplete)
	assert.Equal(t, Step("complete"), m.Snapshot().Step)
}

func TestGoBackOverride(t *testing.T) {
	t.Parallel()

	def, err := NewBuilder("branching-back").
		WithInitialStep("initial").
		WithTerminalStep("complete", "/dashboard").
		AddTransition("initial", "choice").
		AddTransition("choice", "detail").
		AddTransition("detail", "complete").
		WithBack("detail", "initial").
		Build()
	require.NoError(t, err)

	m := newTestMachine(t, def)
	ctx := t.Context()

	require.NoError(t, m.RequestTransition(ctx, "choice"))
	require.NoError(t, m.RequestTransition(ctx, "detail"))
	require.NoError(t, m.GoBack(ctx))

	snap := m.Snapshot()
	assert.Equal(t, Step("initial"), snap.Step)
	assert.Empty(t, snap.History)
	require.ErrorIs(t, m.GoBack(ctx), ErrNoPreviousStep)
}

func TestResetClearsEverything(t *testing.T) {
	t.Parallel()

	submit := newGate("submit")
	m := newTestMachine(t, transferDefinition(t, "transfer-reset"), WithActions(submit))
	ctx := t.Context()

	require.NoError(t, m.SetFields(Fields{"recipient": validRecipient, "amount": "5"}))
	require.NoError(t, m.RequestTransition(ctx, "review"))

	p, err := m.Run(ctx, "submit")
	require.NoError(t, err)

	<-submit.started

	require.NoError(t, m.Reset(ctx))

	_, err = p.Await(ctx)
	require.ErrorIs(t, err, ErrActionCancelled)

	snap := m.Snapshot()
	assert.Equal(t, Step("details"), snap.Step)
	assert.Empty(t, snap.Fields)
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Empty(t, snap.ErrorMessage)
	assert.Empty(t, snap.History)
}

// Random operation sequences never leave the machine on a step outside the reachable set, and
// reset always restores the initial state.
func TestRandomSequencesStayReachable(t *testing.T) {
	t.Parallel()

	def := transferDefinition(t, "transfer-random")
	reachable := def.Reachable()
	targets := []Step{"details", "review", "complete", "wallet", ""}
	values := map[string][]string{
		"recipient": {validRecipient, "GSHORT", ""},
		"amount":    {"5", "500", "-1", "x"},
	}

	rng := rand.New(rand.NewPCG(1, 2)) //nolint:gosec // deterministic test input

	for range 20 {
		m := newTestMachine(t, def, WithActions(NewAction("submit", func(context.Context, Fields) (map[string]any, error) {
			return nil, nil
		})))
		ctx := t.Context()

		for range 50 {
			switch rng.IntN(5) {
			case 0:
				_ = m.RequestTransition(ctx, targets[rng.IntN(len(targets))])
			case 1:
				name := []string{"recipient", "amount"}[rng.IntN(2)]
				_ = m.SetField(name, values[name][rng.IntN(len(values[name]))])
			case 2:
				_ = m.GoBack(ctx)
			case 3:
				if p, err := m.Run(ctx, "submit"); err == nil {
					_, _ = p.Await(ctx)
				}
			case 4:
				require.NoError(t, m.Reset(ctx))

				snap := m.Snapshot()
				assert.Equal(t, def.Initial, snap.Step)
				assert.Empty(t, snap.Fields)
				assert.Equal(t, StatusIdle, snap.Status)
			}

			snap := m.Snapshot()
			assert.True(t, reachable[snap.Step], "unreachable step %q", snap.Step)
			assert.Equal(t, snap.Status == StatusFailed, snap.ErrorMessage != "")
		}
	}
}

func TestNavigatorCalledOncePerRun(t *testing.T) {
	t.Parallel()

	def, err := NewBuilder("nav-once").
		WithInitialStep("initial").
		WithTerminalStep("complete", "/dashboard").
		AddTransition("initial", "complete").
		Build()
	require.NoError(t, err)

	nav := &recordingNavigator{}
	m := newTestMachine(t, def, WithNavigator(NavigatorFunc(nav.Navigate)))
	ctx := t.Context()

	require.NoError(t, m.RequestTransition(ctx, "complete"))
	require.ErrorIs(t, m.RequestTransition(ctx, "complete"), ErrInvalidTransition)
	assert.Equal(t, []string{"/dashboard"}, nav.destinations())

	require.NoError(t, m.Reset(ctx))
	require.NoError(t, m.RequestTransition(ctx, "complete"))
	assert.Equal(t, []string{"/dashboard", "/dashboard"}, nav.destinations())
}

func TestObserverSeesEveryChange(t *testing.T) {
	t.Parallel()

	var statuses []Status

	submit := newGate("submit")
	m := newTestMachine(t, transferDefinition(t, "transfer-observer"),
		WithActions(submit),
		WithObserver(func(s Snapshot) { statuses = append(statuses, s.Status) }),
	)
	ctx := t.Context()

	require.NoError(t, m.SetFields(Fields{"recipient": validRecipient, "amount": "5"}))
	require.NoError(t, m.RequestTransition(ctx, "review"))

	p, err := m.Run(ctx, "submit")
	require.NoError(t, err)

	submit.release <- nil

	_, err = p.Await(ctx)
	require.NoError(t, err)

	// start, set fields, transition, pending, success
	assert.Equal(t, []Status{StatusIdle, StatusIdle, StatusIdle, StatusPending, StatusSuccess}, statuses)
}

func TestClosedMachineRejectsCalls(t *testing.T) {
	t.Parallel()

	submit := newGate("submit")
	m := newTestMachine(t, transferDefinition(t, "transfer-closed"), WithActions(submit))
	ctx := t.Context()

	require.NoError(t, m.SetFields(Fields{"recipient": validRecipient, "amount": "5"}))
	require.NoError(t, m.RequestTransition(ctx, "review"))

	p, err := m.Run(ctx, "submit")
	require.NoError(t, err)

	<-submit.started

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = p.Await(ctx)
	require.ErrorIs(t, err, ErrActionCancelled)

	assert.ErrorIs(t, m.Start(ctx), ErrSessionClosed)
	assert.ErrorIs(t, m.SetField("a", "b"), ErrSessionClosed)
	assert.ErrorIs(t, m.RequestTransition(ctx, "complete"), ErrSessionClosed)
	assert.ErrorIs(t, m.GoBack(ctx), ErrSessionClosed)

	_, err = m.Run(ctx, "submit")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestNewMachineNeedsActionImplementations(t *testing.T) {
	t.Parallel()

	_, err := NewMachine(transferDefinition(t, "transfer-missing"))
	require.ErrorIs(t, err, ErrMissingActionImpl)

	_, err = NewMachine(&Definition{})
	require.ErrorIs(t, err, ErrDefinitionNameRequired)
}
