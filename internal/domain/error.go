package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound          = errors.New("entity not found")
	ErrAlreadyExists     = errors.New("entity already exists")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrRateLimited       = errors.New("too many requests")
	ErrQueueFull         = errors.New("worker queue full")

	// Synchronous request errors: the job is never created.
	ErrAuth       = errors.New("authentication failed")
	ErrValidation = errors.New("validation failed")

	// Pipeline errors: recorded on the job, never returned to a caller.
	ErrExtraction       = errors.New("content extraction failed")
	ErrSummarization    = errors.New("summarization failed")
	ErrSynthesisTimeout = errors.New("speech synthesis timeout")
	ErrSynthesis        = errors.New("speech synthesis failed")
	ErrStorage          = errors.New("audio storage failed")
)

// StageError ties a pipeline failure to the stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Validationf wraps a field-level message in ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ErrInvalidExecContext is returned when a repository receives a tx handle it
// cannot execute on.
var ErrInvalidExecContext = errors.New("invalid execution context")
