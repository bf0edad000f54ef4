package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the referenced job or account does not exist.
	ErrNotFound = errors.New("not found")

	// ErrQuotaExceeded means the owning account has no remaining job allowance.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrInvalidInput means the source URL failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidState means an operation ran against a job outside its
	// precondition state, e.g. submitting a job twice.
	ErrInvalidState = errors.New("invalid job state")
)

// PublishError wraps a queue transport failure. The job is already marked
// failed by the time a caller sees this.
type PublishError struct {
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("queue publish failed: %v", e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
