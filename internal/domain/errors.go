package domain

import "errors"

var (
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrEngine       = errors.New("engine error")
	ErrConnection   = errors.New("engine connection error")
	ErrTimeout      = errors.New("engine timeout")
	ErrInternal     = errors.New("internal error")

	// ErrJobFinalized is returned by conditional store writes when the job
	// already reached a terminal state.
	ErrJobFinalized = errors.New("job already finalized")
	// ErrTransitionRejected is returned when the job is not in the status a
	// conditional write expected.
	ErrTransitionRejected = errors.New("job transition rejected")
)
