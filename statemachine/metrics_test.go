package statemachine

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Each test uses its own flow name, so the label sets of the shared vectors do not overlap.
func TestTransitionMetrics(t *testing.T) {
	t.Parallel()

	const flow = "metrics-transitions"

	m := newTestMachine(t, transferDefinition(t, flow), WithActions(newGate("submit")))
	ctx := t.Context()

	_ = m.RequestTransition(ctx, "complete")
	_ = m.RequestTransition(ctx, "review")

	require.NoError(t, m.SetFields(Fields{"recipient": validRecipient, "amount": "5"}))
	require.NoError(t, m.RequestTransition(ctx, "review"))

	assert.InDelta(t, 1, testutil.ToFloat64(transitionsTotal.WithLabelValues(flow, "details", "complete", outcomeInvalid)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(transitionsTotal.WithLabelValues(flow, "details", "review", outcomeRejected)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(transitionsTotal.WithLabelValues(flow, "details", "review", outcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(guardRejectionsTotal.WithLabelValues(flow, "details", "MALFORMED_PUBLIC_KEY")), 0)
}

func TestActionMetrics(t *testing.T) {
	t.Parallel()

	const flow = "metrics-actions"

	auth := newGate("auth")
	m := newTestMachine(t, authDefinition(t, flow), WithActions(auth))
	ctx := t.Context()

	p, err := m.Run(ctx, "auth")
	require.NoError(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(actionsInFlight.WithLabelValues(flow)), 0)

	p.Cancel()
	assert.Eventually(t, func() bool { return auth.cancelCount() == 1 }, time.Second, time.Millisecond)

	p, err = m.Run(ctx, "auth")
	require.NoError(t, err)

	auth.release <- nil

	_, err = p.Await(ctx)
	require.NoError(t, err)
	require.NoError(t, m.RequestTransition(ctx, "complete"))

	assert.InDelta(t, 0, testutil.ToFloat64(actionsInFlight.WithLabelValues(flow)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(actionsTotal.WithLabelValues(flow, "auth", outcomeCancelled)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(actionsTotal.WithLabelValues(flow, "auth", outcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(flowsCompletedTotal.WithLabelValues(flow)), 0)
}

func TestSanitization(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unknown", sanitizeFlow(""))
	assert.Equal(t, "auth", sanitizeFlow("auth"))
	assert.Equal(t, "none", sanitizeReason(""))
	assert.Len(t, hashID("session"), 16)
	assert.Empty(t, hashID(""))
	assert.Equal(t, hashID("session"), hashID("session"))
}
