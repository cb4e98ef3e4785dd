package statemachine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric outcome labels.
const (
	outcomeSuccess   = "success"
	outcomeRejected  = "rejected"
	outcomeInvalid   = "invalid"
	outcomeBusy      = "busy"
	outcomeFailed    = "failed"
	outcomeTimeout   = "timeout"
	outcomeCancelled = "cancelled"
)

var (
	// transitionsTotal counts transition requests by flow, endpoints and outcome.
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_transitions_total",
		Help: "Total number of transition requests by flow, from_step, to_step and outcome",
	}, []string{"flow", "from_step", "to_step", "outcome"})

	// guardRejectionsTotal counts guard rejections by reason.
	guardRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_guard_rejections_total",
		Help: "Total number of transitions rejected by a guard, by flow, step and reason",
	}, []string{"flow", "step", "reason"})

	// actionsTotal counts settled actions by outcome.
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_actions_total",
		Help: "Total number of actions by flow, action and outcome (success, failed, timeout, cancelled)",
	}, []string{"flow", "action", "outcome"})

	// actionDuration tracks collaborator latency.
	actionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statemachine_action_duration_seconds",
		Help:    "Duration of action execution by flow and action",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"flow", "action"})

	// actionsInFlight is the number of pending actions.
	actionsInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "statemachine_actions_in_flight",
		Help: "Number of actions currently pending by flow",
	}, []string{"flow"})

	// flowsCompletedTotal counts flows that reached their terminal step.
	flowsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_flows_completed_total",
		Help: "Total number of flows that reached their terminal step",
	}, []string{"flow"})
)

func sanitizeFlow(flow string) string {
	if flow == "" {
		return "unknown"
	}

	return flow
}

func sanitizeReason(reason string) string {
	if reason == "" {
		return "none"
	}

	return reason
}
