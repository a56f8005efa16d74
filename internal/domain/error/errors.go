package error

import (
	"errors"
	"fmt"
)

// Error codes for standardized API responses
const (
	// 4xxx - Client errors
	CodeValidation               = 4001
	CodeMalformedPayload         = 4002
	CodeSignatureInvalid         = 4010
	CodeForbidden                = 4030
	CodeTransactionNotFound      = 4040
	CodeInvalidTransition        = 4090
	CodeAlreadyAccepted          = 4091
	CodeConcurrencyConflict      = 4092
	CodeDuplicateTransaction     = 4093
	CodeCancellationWindowClosed = 4220

	// 5xxx - Server errors
	CodeInternalServer      = 5000
	CodeUnknownLegacyStatus = 5001
	CodeDatabaseConnection  = 5030
)

// Base error types
var (
	// ErrValidation is returned for malformed input; it never reaches the state machine
	ErrValidation = errors.New("validation error")

	// ErrInvalidTransition is returned when an event is not legal for the current status
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrSignatureInvalid is returned when a webhook payload cannot be authenticated
	ErrSignatureInvalid = errors.New("webhook signature invalid")

	// ErrMalformedPayload is returned when an authenticated webhook payload cannot be decoded
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrAlreadyAccepted is returned when a different seller already holds the transaction
	ErrAlreadyAccepted = errors.New("transaction already accepted by another seller")

	// ErrCancellationWindowClosed is returned when a cancellation is outside the allowed window
	ErrCancellationWindowClosed = errors.New("cancellation window closed")

	// ErrConcurrencyConflict is returned when an optimistic version check loses a race
	ErrConcurrencyConflict = errors.New("concurrent modification detected")

	// ErrTransactionNotFound is returned when the requested transaction doesn't exist
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrUnknownLegacyStatus is returned when a stored status string has no canonical mapping
	ErrUnknownLegacyStatus = errors.New("unknown legacy status")

	// ErrForbidden is returned when the acting identity may not issue the event
	ErrForbidden = errors.New("actor not permitted for this operation")

	// ErrDuplicateTransaction is returned when a transaction with the same external payment reference exists
	ErrDuplicateTransaction = errors.New("transaction with this payment reference already exists")

	// ErrDatabaseConnection is returned when there's a problem talking to the store
	ErrDatabaseConnection = errors.New("database connection error")

	// ErrInternalServer is returned for unexpected server-side errors
	ErrInternalServer = errors.New("internal server error")
)

// ErrorCode returns standardized error codes for known errors
func ErrorCode(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrMalformedPayload):
		return CodeMalformedPayload
	case errors.Is(err, ErrSignatureInvalid):
		return CodeSignatureInvalid
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrTransactionNotFound):
		return CodeTransactionNotFound
	case errors.Is(err, ErrAlreadyAccepted):
		return CodeAlreadyAccepted
	case errors.Is(err, ErrCancellationWindowClosed):
		return CodeCancellationWindowClosed
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrConcurrencyConflict):
		return CodeConcurrencyConflict
	case errors.Is(err, ErrDuplicateTransaction):
		return CodeDuplicateTransaction
	case errors.Is(err, ErrUnknownLegacyStatus):
		return CodeUnknownLegacyStatus
	case errors.Is(err, ErrDatabaseConnection):
		return CodeDatabaseConnection
	default:
		return CodeInternalServer
	}
}

// ValidationError names the offending field of a rejected request
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Reason)
}

// Is checks if the target error is an ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a field-level validation error
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransitionError represents a rejected lifecycle event
type TransitionError struct {
	TransactionID string
	From          string
	Event         string
	Reason        string
	Err           error
}

// Error implements the error interface for TransitionError
func (e *TransitionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transaction %s: event %s rejected in status %s: %v",
			e.TransactionID, e.Event, e.From, e.Err)
	}
	return fmt.Sprintf("transaction %s: event %s rejected in status %s (%s): %v",
		e.TransactionID, e.Event, e.From, e.Reason, e.Err)
}

// Unwrap returns the underlying error
func (e *TransitionError) Unwrap() error {
	return e.Err
}

// LogFields returns a map of fields for structured logging
func (e *TransitionError) LogFields() map[string]any {
	return map[string]any{
		"error_type":     "transition_error",
		"transaction_id": e.TransactionID,
		"from":           e.From,
		"event":          e.Event,
		"reason":         e.Reason,
		"error":          e.Err.Error(),
		"error_code":     ErrorCode(e.Err),
	}
}

// NewTransitionError creates a detailed lifecycle rejection wrapping one of the base errors
func NewTransitionError(transactionID, from, event, reason string, err error) error {
	return &TransitionError{
		TransactionID: transactionID,
		From:          from,
		Event:         event,
		Reason:        reason,
		Err:           err,
	}
}

// UnknownLegacyStatusError carries the unmapped vocabulary and value
type UnknownLegacyStatusError struct {
	Vocabulary string
	Status     string
}

// Error implements the error interface
func (e *UnknownLegacyStatusError) Error() string {
	return fmt.Sprintf("unknown legacy status %q in %s vocabulary", e.Status, e.Vocabulary)
}

// Is checks if the target error is an ErrUnknownLegacyStatus
func (e *UnknownLegacyStatusError) Is(target error) bool {
	return target == ErrUnknownLegacyStatus
}

// IsConcurrencyConflict checks if the error is an optimistic-lock loss
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrTransactionNotFound)
}

// IsClientError reports whether the error is a business-rule or input rejection
func IsClientError(err error) bool {
	code := ErrorCode(err)
	return code >= 4000 && code < 5000
}
