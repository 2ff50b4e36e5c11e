// Package daqerr defines the single error taxonomy used across the
// component tree, signal pipeline, module manager, and config
// protocol (spec §7), replacing the source's mixed ErrCode/exception
// conventions with one wrapped-error mechanism.
package daqerr

import (
	"errors"
	"fmt"
)

// Kind is one of the surface error kinds from §7.
type Kind string

const (
	InvalidParameter     Kind = "InvalidParameter"
	NotFound             Kind = "NotFound"
	DuplicateItem        Kind = "DuplicateItem"
	InvalidValue         Kind = "InvalidValue"
	AccessDenied         Kind = "AccessDenied"
	DeviceLocked         Kind = "DeviceLocked"
	ComponentRemoved     Kind = "ComponentRemoved"
	ConnectionLost       Kind = "ConnectionLost"
	AuthenticationFailed Kind = "AuthenticationFailed"
	ControlClientRejected Kind = "ControlClientRejected"
	ConnectionLimitReached Kind = "ConnectionLimitReached"
	ServerVersionTooLow  Kind = "ServerVersionTooLow"
	SignalNotAccepted   Kind = "SignalNotAccepted"
	PartialSuccess      Kind = "PartialSuccess"
)

// Error is the single error type returned by every operation in this
// module that can fail with a §7 kind. It carries the global id of the
// component the failure originated from, for diagnostic logging.
type Error struct {
	Kind     Kind
	GlobalID string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.GlobalID != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s (%s): %v", e.Kind, e.Message, e.GlobalID, e.Cause)
		}
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.GlobalID)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an Error with no wrapped cause.
func New(kind Kind, globalID, message string) *Error {
	return &Error{Kind: kind, GlobalID: globalID, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, globalID, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, GlobalID: globalID, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that wraps cause.
func Wrap(kind Kind, globalID string, cause error, message string) *Error {
	return &Error{Kind: kind, GlobalID: globalID, Message: message, Cause: cause}
}

// Is reports whether err (or something it wraps) has the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, or "" if err is not (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
