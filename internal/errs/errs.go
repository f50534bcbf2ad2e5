// Package errs defines the typed error taxonomy shared by the service
// layer, the HTTP handlers and the realtime hub.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	// KindValidation covers malformed or conflicting input.
	KindValidation Kind = iota
	// KindAuthorization covers callers that are not members of the
	// resource they touch. Deliberately indistinguishable from a
	// missing resource.
	KindAuthorization
	// KindConflict covers state-machine transitions attempted from an
	// incompatible state.
	KindConflict
	// KindPayload covers oversized or unsupported uploads.
	KindPayload
	// KindExternal covers datastore, conversion and transcription
	// failures. Safe to retry.
	KindExternal
)

// Error is a classified error with a caller-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a validation error with a formatted message.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Authorization returns the uniform authorization error. The message is
// constant so that a missing resource and a foreign resource look alike.
func Authorization() error {
	return &Error{Kind: KindAuthorization, Message: "not authorized"}
}

// Conflict returns a conflict error with a formatted message.
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Payload returns a payload error with a formatted message.
func Payload(format string, args ...any) error {
	return &Error{Kind: KindPayload, Message: fmt.Sprintf(format, args...)}
}

// External wraps a dependency failure.
func External(msg string, err error) error {
	return &Error{Kind: KindExternal, Message: msg, Err: err}
}

// KindOf extracts the Kind of err. Unclassified errors report as
// KindExternal so they surface as retryable dependency failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindExternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
