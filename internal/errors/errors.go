package errors

import (
	"errors"
)

// Kind classifies a failure for logging and client messaging
type Kind string

const (
	KindEngineUnreachable Kind = "engine_unreachable"
	KindValidation        Kind = "validation"
	KindUnknownSubmission Kind = "unknown_submission"
	KindUnknownTransport  Kind = "unknown_transport"
	KindJobInProgress     Kind = "job_in_progress"
	KindServerBusy        Kind = "server_busy"
	KindInvalidGraph      Kind = "invalid_graph"
	KindUnknown           Kind = "unknown"
)

// UserError represents an error with both technical and user-friendly messages
type UserError struct {
	Kind      Kind
	Err       error
	UserMsg   string
	Retryable bool
}

func (e *UserError) Error() string {
	return e.Err.Error()
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a UserError of the same kind, so wrapped
// errors still match the predefined sentinels below.
func (e *UserError) Is(target error) bool {
	t, ok := target.(*UserError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined errors
var (
	ErrEngineUnreachable = &UserError{
		Kind:      KindEngineUnreachable,
		Err:       errors.New("generation engine unreachable"),
		UserMsg:   "Could not connect to the generation engine. Make sure it is running and reachable at the configured address.",
		Retryable: true,
	}

	ErrValidation = &UserError{
		Kind:      KindValidation,
		Err:       errors.New("job graph rejected by engine"),
		UserMsg:   "The engine rejected the job. Some nodes required by this workflow may be disabled or unavailable; enable them and try again.",
		Retryable: false,
	}

	ErrUnknownSubmission = &UserError{
		Kind:      KindUnknownSubmission,
		Err:       errors.New("job submission failed"),
		UserMsg:   "The engine could not accept the job. Check the server logs for details.",
		Retryable: true,
	}

	ErrUnknownTransport = &UserError{
		Kind:      KindUnknownTransport,
		Err:       errors.New("engine transport error"),
		UserMsg:   "An unexpected error occurred while running the job. Check the server logs for details.",
		Retryable: true,
	}

	ErrJobInProgress = &UserError{
		Kind:      KindJobInProgress,
		Err:       errors.New("job already in progress on channel"),
		UserMsg:   "A job is already running on this connection. Wait for it to finish before submitting another.",
		Retryable: true,
	}

	ErrServerBusy = &UserError{
		Kind:      KindServerBusy,
		Err:       errors.New("concurrent job limit reached"),
		UserMsg:   "The server is running too many jobs right now. Please try again shortly.",
		Retryable: true,
	}

	ErrInvalidGraph = &UserError{
		Kind:      KindInvalidGraph,
		Err:       errors.New("invalid job graph"),
		UserMsg:   "The submitted job graph is not a valid JSON object.",
		Retryable: false,
	}
)

// Wrap wraps a technical error with a user message
func Wrap(err error, userMsg string, retryable bool) *UserError {
	return &UserError{
		Kind:      KindUnknown,
		Err:       err,
		UserMsg:   userMsg,
		Retryable: retryable,
	}
}

// WithCause returns a copy of base carrying err as its technical cause
func WithCause(base *UserError, err error) *UserError {
	if err == nil {
		err = base.Err
	}
	return &UserError{
		Kind:      base.Kind,
		Err:       err,
		UserMsg:   base.UserMsg,
		Retryable: base.Retryable,
	}
}

// GetUserMessage extracts user-friendly message from error
func GetUserMessage(err error) string {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.UserMsg
	}
	// Default message for unexpected errors
	return ErrUnknownTransport.UserMsg
}

// KindOf returns the kind of the first UserError in the chain
func KindOf(err error) Kind {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.Kind
	}
	return KindUnknown
}

// IsRetryable checks if an error can be retried
func IsRetryable(err error) bool {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.Retryable
	}
	return false
}
