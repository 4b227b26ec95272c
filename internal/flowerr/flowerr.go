// Package flowerr defines the error taxonomy shared across the engine.
//
// Failures fall into two camps. Classified errors carry a target naming the
// component they were diagnosed against and are propagated to callers
// unchanged. Anything else is wrapped into an "unexpected" classified error
// that preserves the original error's dynamic type name and message, so an
// operator can tell "the system misbehaved" apart from "the flow's own logic
// failed".
package flowerr

import (
	"errors"
	"fmt"
)

// Target names the component an error was classified against.
type Target string

const (
	TargetBatch    Target = "batch"
	TargetFlow     Target = "flow"
	TargetInputs   Target = "inputs"
	TargetExecutor Target = "executor"
	TargetStorage  Target = "storage"
)

// Error is a classified failure. Once an error is an *Error it is considered
// diagnosed: callers propagate it as-is rather than re-wrapping.
type Error struct {
	// Target is the component the failure was classified against.
	Target Target
	// Message is the operator-facing description.
	Message string
	// Cause is the underlying error, preserved for diagnostics. May be nil.
	Cause error
	// Unexpected marks errors produced by Unexpected, i.e. failures that
	// were not recognized by any classification rule.
	Unexpected bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Target, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Target, e.Message)
}

// Unwrap exposes the cause to errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a classified error for the given target.
func New(target Target, format string, args ...any) *Error {
	return &Error{Target: target, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error against the given target.
func Wrap(target Target, cause error, format string, args ...any) *Error {
	return &Error{Target: target, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Unexpected wraps an unclassified error, recording the original error's
// dynamic type name and message as diagnostic text. If err is already
// classified it is returned unchanged.
func Unexpected(target Target, err error) *Error {
	if classified, ok := As(err); ok {
		return classified
	}
	return &Error{
		Target:     target,
		Message:    fmt.Sprintf("unexpected error (%T) %v", err, err),
		Cause:      err,
		Unexpected: true,
	}
}

// As reports whether err is (or wraps) a classified error, returning it.
func As(err error) (*Error, bool) {
	var classified *Error
	if errors.As(err, &classified) {
		return classified, true
	}
	return nil, false
}
