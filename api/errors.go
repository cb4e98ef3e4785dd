package api

import (
	"errors"
	"net/http"

	"github.com/amp-labs/wizard/flows"
	"github.com/amp-labs/wizard/session"
	"github.com/amp-labs/wizard/statemachine"
)

var errBadRequest = errors.New("bad request")

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func describe(err error) (int, ErrorBody) {
	switch {
	case errors.Is(err, flows.ErrUnknownFlow):
		return http.StatusNotFound, ErrorBody{Code: "UNKNOWN_FLOW", Message: err.Error()}
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Code: "SESSION_NOT_FOUND", Message: err.Error()}
	case errors.Is(err, statemachine.ErrSessionClosed):
		return http.StatusGone, ErrorBody{Code: "SESSION_CLOSED", Message: err.Error()}
	case errors.Is(err, statemachine.ErrGuardRejected):
		message, reason, field := statemachine.Rejection(err)

		return http.StatusUnprocessableEntity, ErrorBody{Code: reason, Message: message, Field: field}
	case errors.Is(err, statemachine.ErrActionAlreadyInProgress):
		return http.StatusConflict, ErrorBody{Code: statemachine.ReasonInProgress, Message: "An action is already in progress"}
	case errors.Is(err, statemachine.ErrUnknownAction):
		return http.StatusNotFound, ErrorBody{Code: statemachine.ReasonUnknownAction, Message: err.Error()}
	case errors.Is(err, statemachine.ErrInvalidTransition):
		return http.StatusConflict, ErrorBody{Code: "INVALID_TRANSITION", Message: err.Error()}
	case errors.Is(err, statemachine.ErrNoPreviousStep):
		return http.StatusConflict, ErrorBody{Code: "NO_PREVIOUS_STEP", Message: err.Error()}
	case errors.Is(err, statemachine.ErrFlowComplete):
		return http.StatusConflict, ErrorBody{Code: "FLOW_COMPLETE", Message: err.Error()}
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, ErrorBody{Code: "BAD_REQUEST", Message: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorBody{Code: "INTERNAL", Message: "Something went wrong. Please try again."}
	}
}
