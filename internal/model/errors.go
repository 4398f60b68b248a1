package model

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoPosition          = errors.New("no position")
	ErrSourceUnavailable   = errors.New("decision source unavailable")
	ErrTransient           = errors.New("transient io error")

	// ErrInvariantViolation marks a programming bug. It is the only error
	// that stops a scheduler.
	ErrInvariantViolation = errors.New("invariant violation")
)

// ValidationError reports a decision that is not internally consistent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid decision: %s: %s", e.Field, e.Reason)
}
