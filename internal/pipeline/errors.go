package pipeline

import (
	"errors"
	"fmt"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

// Error is the typed failure raised by pipeline stages. Kind maps onto the
// client-visible error taxonomy; Stage names where the failure happened.
type Error struct {
	Kind      models.ErrorKind
	Stage     string
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Kind, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Stage, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a stage error wrapping an underlying cause.
func NewError(kind models.ErrorKind, stage, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Stage:   stage,
		Message: message,
		Err:     err,
	}
}

// PreconditionError marks a stage's missing input artifact. Not retryable.
func PreconditionError(stage, message string) *Error {
	return &Error{
		Kind:    models.ErrPreconditionMissing,
		Stage:   stage,
		Message: message,
	}
}

// ModelError marks a model call that exhausted its retry budget.
func ModelError(stage string, err error) *Error {
	return &Error{
		Kind:      models.ErrModelUnavailable,
		Stage:     stage,
		Message:   "model call failed after retries",
		Retryable: true,
		Err:       err,
	}
}

// AsJobError converts any pipeline error into the structured job error
// recorded on failed jobs. Untyped errors become StageFailed.
func AsJobError(err error) *models.JobError {
	var perr *Error
	if errors.As(err, &perr) {
		return &models.JobError{
			Kind:      perr.Kind,
			Message:   perr.Error(),
			Retryable: perr.Retryable,
		}
	}
	return &models.JobError{
		Kind:    models.ErrStageFailed,
		Message: err.Error(),
	}
}
