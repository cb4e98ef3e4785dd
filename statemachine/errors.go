package statemachine

import (
	"errors"
	"fmt"

	"github.com/amp-labs/wizard/validate"
)

// Flow errors. InvalidTransition and GuardRejected are reported through *TransitionError, action
// failures through *ActionError; match either with errors.Is.
var (
	ErrInvalidTransition       = errors.New("invalid transition")
	ErrGuardRejected           = errors.New("guard rejected transition")
	ErrNoPreviousStep          = errors.New("no previous step")
	ErrFlowComplete            = errors.New("flow already complete")
	ErrActionAlreadyInProgress = errors.New("action already in progress")
	ErrActionRequired          = errors.New("required action has not succeeded")
	ErrActionFailed            = errors.New("action failed")
	ErrActionCancelled         = errors.New("action cancelled")
	ErrTimeout                 = errors.New("action timed out")
	ErrUnknownAction           = errors.New("unknown action")
	ErrConditionNotMet         = errors.New("condition not met")
	ErrExecutorUnavailable     = errors.New("executor unavailable")
	ErrSessionClosed           = errors.New("session closed")
)

// Definition errors.
var (
	ErrDefinitionNameRequired = errors.New("definition name is required")
	ErrInitialStepRequired    = errors.New("initial step is required")
	ErrTerminalStepRequired   = errors.New("terminal step is required")
	ErrUnknownStep            = errors.New("unknown step")
	ErrDuplicateStep          = errors.New("duplicate step")
	ErrDuplicateRule          = errors.New("duplicate transition rule")
	ErrDeadEndStep            = errors.New("non-terminal step has no outgoing rule")
	ErrUnreachableStep        = errors.New("step is not reachable from the initial step")
	ErrTerminalHasRules       = errors.New("terminal step has outgoing rules")
	ErrCyclicRules            = errors.New("transition rules form a cycle")
	ErrMissingActionImpl      = errors.New("no implementation registered for action")
	ErrInvalidCondition       = errors.New("invalid condition")
)

// Action failure reasons reported in ActionResult.Reason.
const (
	ReasonTimeout             = "TIMEOUT"
	ReasonCancelled           = "CANCELLED"
	ReasonActionFailed        = "ACTION_FAILED"
	ReasonExecutorUnavailable = "EXECUTOR_UNAVAILABLE"
	ReasonActionRequired      = "ACTION_REQUIRED"
	ReasonConditionNotMet     = "CONDITION_NOT_MET"
	ReasonInProgress          = "IN_PROGRESS"
	ReasonUnknownAction       = "UNKNOWN_ACTION"
)

// TransitionError wraps a rejected transition request with its endpoints.
type TransitionError struct {
	From Step
	To   Step
	Err  error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s: %v", e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// ActionError carries the reason an action failed. Collaborators return one through Fail to pick
// the reason the user sees.
type ActionError struct {
	Action  string
	Reason  string
	Message string
	Err     error
}

// Fail builds the error a collaborator returns to report a user-facing failure.
func Fail(reason, message string) *ActionError {
	return &ActionError{
		Reason:  reason,
		Message: message,
		Err:     ErrActionFailed,
	}
}

func (e *ActionError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Message)
	}

	return fmt.Sprintf("action %s: %s: %s", e.Action, e.Reason, e.Message)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

func wrapTransitionError(from, to Step, err error) error {
	if err == nil {
		return nil
	}

	return &TransitionError{
		From: from,
		To:   to,
		Err:  err,
	}
}

// Rejection explains a failed guard as a user-facing message, a reason code and the offending
// field. Field-level details come from a ValidationError when the guard returned one.
func Rejection(err error) (message, reason, field string) {
	var verr *validate.ValidationError
	if errors.As(err, &verr) {
		return verr.Message, string(verr.Reason), verr.Field
	}

	switch {
	case errors.Is(err, ErrActionRequired):
		return "Complete the previous action first", ReasonActionRequired, ""
	case errors.Is(err, ErrConditionNotMet):
		return "This step is not available for the current choices", ReasonConditionNotMet, ""
	default:
		return err.Error(), ReasonConditionNotMet, ""
	}
}
