// Package apperr defines the error taxonomy shared by the conversation flow,
// the matching engine and the command handlers.
package apperr

import (
	"errors"
	"fmt"
)

// ErrTransient marks failures of a backend (store or generation) that may
// succeed on a later attempt.
var ErrTransient = errors.New("transient backend failure")

type transientError struct {
	op  string
	err error
}

func (e *transientError) Error() string {
	if e.err == nil {
		return e.op + ": " + ErrTransient.Error()
	}
	return fmt.Sprintf("%s: %s: %v", e.op, ErrTransient.Error(), e.err)
}

func (e *transientError) Unwrap() []error { return []error{ErrTransient, e.err} }

// Code implements the error code contract used by handler summaries.
func (e *transientError) Code() string { return "TRANSIENT_BACKEND" }

// Transient wraps err so that errors.Is(err, ErrTransient) holds.
// A nil err yields nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return err
	}
	return &transientError{op: op, err: err}
}

// IsTransient reports whether err carries ErrTransient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// ValidationError reports a missing precondition the user can fix.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// Code implements the error code contract used by handler summaries.
func (e *ValidationError) Code() string { return "VALIDATION" }

// Validation constructs a ValidationError.
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// AsValidation extracts a ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// NotificationError reports that the transport failed to deliver a match
// notification to UserID.
type NotificationError struct {
	UserID int64
	Err    error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify user %d: %v", e.UserID, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// Code implements the error code contract used by handler summaries.
func (e *NotificationError) Code() string { return "NOTIFICATION_FAILURE" }
