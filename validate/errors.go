package validate

import (
	"errors"
	"fmt"
)

// Reason is a machine-readable rejection code carried by a ValidationError.
type Reason string

const (
	ReasonMalformedSecretKey      Reason = "MALFORMED_SECRET_KEY"
	ReasonMalformedRecoveryPhrase Reason = "MALFORMED_RECOVERY_PHRASE"
	ReasonMalformedPublicKey      Reason = "MALFORMED_PUBLIC_KEY"
	ReasonInvalidAmount           Reason = "INVALID_AMOUNT"
	ReasonInsufficientFunds       Reason = "INSUFFICIENT_FUNDS"
	ReasonInvalidEmail            Reason = "INVALID_EMAIL"
	ReasonInvalidChoice           Reason = "INVALID_CHOICE"
	ReasonRequired                Reason = "REQUIRED"
)

var (
	// ErrInvalid is wrapped by every ValidationError so callers can match any rejection with errors.Is.
	ErrInvalid = errors.New("validation failed")

	// ErrUnknownRule is returned by Registry.Build for a rule name nobody registered.
	ErrUnknownRule = errors.New("unknown validation rule")

	// ErrFieldRequired is returned by Registry.Build when a rule has no field to check.
	ErrFieldRequired = errors.New("rule needs a field")
)

// ValidationError is a field-level rejection. Message is meant for the person filling in the
// field; Reason is meant for code.
type ValidationError struct {
	Field   string `json:"field"`
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

// Reject builds a ValidationError.
func Reject(field string, reason Reason, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Reason:  reason,
		Message: message,
	}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}

// ReasonOf extracts the rejection reason from anywhere in an error chain.
func ReasonOf(err error) (Reason, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Reason, true
	}

	return "", false
}
